package spacebee

import "context"
import "fmt"
import "io"

import "github.com/emicklei/dot"

// Graph writes the view's current tree in graphviz dot format, to understand
// any issues. Nodes are labelled with their key, rank and the record they
// are stored in, edges with l or r.
func (d *DB) Graph(ctx context.Context, w io.Writer) error {
	if d.closed.Load() {
		return ErrClosed
	}
	t := d.tree(true)
	g := dot.NewGraph(dot.Directed)

	root, err := t.root(ctx)
	if err != nil {
		return err
	}

	var graph func(p pointer, parent *dot.Node, direction string) error
	graph = func(p pointer, parent *dot.Node, direction string) error {
		if p.isNull() {
			return nil
		}
		r, err := t.resolve(ctx, p)
		if err != nil {
			return err
		}
		n := g.Node(fmt.Sprintf("%d.%d", p.seq, p.index)).
			Label(fmt.Sprintf("%q\nrank %d seq %d", r.key(), r.rank, r.keySeq))
		if parent != nil {
			parent.Edge(n, direction)
		}
		if err := graph(r.left, &n, "l"); err != nil {
			return err
		}
		return graph(r.right, &n, "r")
	}
	if err := graph(root, nil, ""); err != nil {
		return err
	}

	_, err = io.WriteString(w, g.String())
	return err
}
