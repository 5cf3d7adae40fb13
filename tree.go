package spacebee

import "bytes"
import "context"

import "golang.org/x/xerrors"

// tree is the index as it stood at one log length.
//
// Every node record carries the levels of a persistent search tree that is
// the binary form of a deterministic skip list: nodes are ordered by key and
// heap ordered by (rank desc, key asc), where the rank of a key is its
// levelCount. For a given key set the shape is therefore unique, whatever
// order the keys arrived in. A mutation copies only the path it touches into
// the new record, untouched subtrees stay referenced by (seq, index).
// The root for length L is level 0 of record L-1. A record with no levels
// stands for the empty tree.
type tree struct {
	nodes  nodeReader
	length uint64
	wait   bool
}

// ref is a stored tree node resolved together with the entry holding its key.
type ref struct {
	level
	entry *entry
}

func (r *ref) key() []byte {
	return r.entry.key
}

// draft is a tree node being built for the next record.
type draft struct {
	keySeq uint64
	rank   uint8
	key    []byte
	left   child
	right  child
}

// child is either a stored subtree or a draft, never both.
type child struct {
	ptr pointer
	d   *draft
}

func (c child) isNull() bool {
	return c.d == nil && c.ptr.isNull()
}

// higher reports whether a belongs above b
func higher(arank uint8, akey []byte, brank uint8, bkey []byte) bool {
	return arank > brank || (arank == brank && bytes.Compare(akey, bkey) < 0)
}

func (t *tree) root(ctx context.Context) (pointer, error) {
	if t.length < 2 {
		return pointer{}, nil
	}
	seq := t.length - 1
	n, err := t.nodes.getNode(ctx, seq, t.wait)
	if err != nil {
		return pointer{}, err
	}
	if len(n.levels) == 0 {
		return pointer{}, nil
	}
	return pointer{seq: seq}, nil
}

func (t *tree) resolve(ctx context.Context, p pointer) (*ref, error) {
	n, err := t.nodes.getNode(ctx, p.seq, t.wait)
	if err != nil {
		return nil, err
	}
	if int(p.index) >= len(n.levels) {
		return nil, xerrors.Errorf("%w: pointer %d/%d past %d levels", ErrMalformedNode, p.seq, p.index, len(n.levels))
	}
	l := n.levels[p.index]

	kn := n
	if l.keySeq != n.seq {
		if kn, err = t.nodes.getNode(ctx, l.keySeq, t.wait); err != nil {
			return nil, err
		}
	}
	if kn.entry == nil || kn.entry.deleted {
		return nil, xerrors.Errorf("%w: level %d/%d keyed by seq %d which holds no live entry", ErrMalformedNode, p.seq, p.index, l.keySeq)
	}
	return &ref{level: l, entry: kn.entry}, nil
}

// get descends from the root, a missing key is not an error.
func (t *tree) get(ctx context.Context, key []byte) (*ref, error) {
	p, err := t.root(ctx)
	if err != nil {
		return nil, err
	}
	for !p.isNull() {
		r, err := t.resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		switch c := bytes.Compare(key, r.key()); {
		case c == 0:
			return r, nil
		case c < 0:
			p = r.left
		default:
			p = r.right
		}
	}
	return nil, nil
}

// load turns a child into a draft which may be modified freely
func (t *tree) load(ctx context.Context, c child) (*draft, error) {
	if c.d != nil {
		return c.d, nil
	}
	r, err := t.resolve(ctx, c.ptr)
	if err != nil {
		return nil, err
	}
	return &draft{
		keySeq: r.keySeq,
		rank:   r.rank,
		key:    r.key(),
		left:   child{ptr: r.left},
		right:  child{ptr: r.right},
	}, nil
}

// put builds record seq, which stores key and value and carries the new tree.
func (t *tree) put(ctx context.Context, seq uint64, key, value []byte, hasValue bool) (*node, error) {
	root, err := t.root(ctx)
	if err != nil {
		return nil, err
	}
	x := &draft{keySeq: seq, rank: levelCount(key), key: key}
	nr, err := t.insert(ctx, child{ptr: root}, x)
	if err != nil {
		return nil, err
	}
	return &node{
		seq:    seq,
		entry:  &entry{key: key, value: value, hasValue: hasValue},
		levels: layout(seq, nr),
	}, nil
}

func (t *tree) insert(ctx context.Context, c child, x *draft) (child, error) {
	if c.isNull() {
		return child{d: x}, nil
	}
	n, err := t.load(ctx, c)
	if err != nil {
		return child{}, err
	}

	cmp := bytes.Compare(x.key, n.key)
	if cmp == 0 { // overwrite, same key means same rank and so the same place
		x.left, x.right = n.left, n.right
		return child{d: x}, nil
	}
	if higher(x.rank, x.key, n.rank, n.key) {
		if x.left, x.right, err = t.split(ctx, c, x.key); err != nil {
			return child{}, err
		}
		return child{d: x}, nil
	}

	if cmp < 0 {
		n.left, err = t.insert(ctx, n.left, x)
	} else {
		n.right, err = t.insert(ctx, n.right, x)
	}
	return child{d: n}, err
}

// split divides subtree c into keys below key and keys above it.
func (t *tree) split(ctx context.Context, c child, key []byte) (l, r child, err error) {
	if c.isNull() {
		return
	}
	n, err := t.load(ctx, c)
	if err != nil {
		return
	}
	switch cmp := bytes.Compare(key, n.key); {
	case cmp == 0:
		return n.left, n.right, nil
	case cmp < 0:
		l, n.left, err = t.split(ctx, n.left, key)
		return l, child{d: n}, err
	default:
		n.right, r, err = t.split(ctx, n.right, key)
		return child{d: n}, r, err
	}
}

// del builds the tombstone record seq for key. It returns nil if key is not
// in the tree, deleting an absent key appends nothing.
func (t *tree) del(ctx context.Context, seq uint64, key []byte) (*node, error) {
	root, err := t.root(ctx)
	if err != nil {
		return nil, err
	}
	nr, found, err := t.remove(ctx, child{ptr: root}, key)
	if err != nil || !found {
		return nil, err
	}

	// the record must carry its own root, copy it if the removal left a stored one on top
	if nr.d == nil && !nr.isNull() {
		d, err := t.load(ctx, nr)
		if err != nil {
			return nil, err
		}
		nr = child{d: d}
	}
	return &node{
		seq:    seq,
		entry:  &entry{key: key, deleted: true},
		levels: layout(seq, nr),
	}, nil
}

func (t *tree) remove(ctx context.Context, c child, key []byte) (child, bool, error) {
	if c.isNull() {
		return c, false, nil
	}
	n, err := t.load(ctx, c)
	if err != nil {
		return c, false, err
	}

	var found bool
	switch cmp := bytes.Compare(key, n.key); {
	case cmp == 0:
		m, err := t.merge(ctx, n.left, n.right)
		return m, err == nil, err
	case cmp < 0:
		var nl child
		if nl, found, err = t.remove(ctx, n.left, key); found {
			n.left = nl
		}
	default:
		var nr child
		if nr, found, err = t.remove(ctx, n.right, key); found {
			n.right = nr
		}
	}
	if err != nil || !found {
		return c, false, err
	}
	return child{d: n}, true, nil
}

// merge joins two subtrees where every key of a sorts before every key of b.
func (t *tree) merge(ctx context.Context, a, b child) (child, error) {
	if a.isNull() {
		return b, nil
	}
	if b.isNull() {
		return a, nil
	}
	an, err := t.load(ctx, a)
	if err != nil {
		return child{}, err
	}
	bn, err := t.load(ctx, b)
	if err != nil {
		return child{}, err
	}
	if higher(an.rank, an.key, bn.rank, bn.key) {
		an.right, err = t.merge(ctx, an.right, child{d: bn})
		return child{d: an}, err
	}
	bn.left, err = t.merge(ctx, child{d: an}, bn.left)
	return child{d: bn}, err
}

// layout numbers the drafts of root in pre-order, so the root is level 0 and
// every pointer inside the record leads to a higher index.
func layout(seq uint64, root child) []level {
	if root.isNull() {
		return nil
	}
	var levels []level
	var emit func(c child) pointer
	emit = func(c child) pointer {
		if c.d == nil {
			return c.ptr
		}
		idx := len(levels)
		levels = append(levels, level{keySeq: c.d.keySeq, rank: c.d.rank})
		left := emit(c.d.left)
		right := emit(c.d.right)
		levels[idx].left, levels[idx].right = left, right
		return pointer{seq: seq, index: uint32(idx)}
	}
	emit(root)
	return levels
}
