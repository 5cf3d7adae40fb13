package spacebee

import "bytes"
import "context"

// bound is one side of a key range over physical keys. A nil bound is unbounded.
type bound struct {
	key       []byte
	inclusive bool
}

// admitsLower reports whether key lies above lower bound b
func (b *bound) admitsLower(key []byte) bool {
	if b == nil {
		return true
	}
	c := bytes.Compare(key, b.key)
	return c > 0 || (c == 0 && b.inclusive)
}

func (b *bound) admitsUpper(key []byte) bool {
	if b == nil {
		return true
	}
	c := bytes.Compare(key, b.key)
	return c < 0 || (c == 0 && b.inclusive)
}

// RangeOptions selects the entries a read stream yields. Of GT and GTE (LT and
// LTE) at most one is used, GT (LT) wins if both are set.
type RangeOptions struct {
	GT, GTE interface{}
	LT, LTE interface{}

	Reverse bool
	Limit   int // 0 means no limit

	KeyEncoding   Encoding
	ValueEncoding Encoding
	NoWait        bool
}

//Cursor is an iterator over the entries of one tree version in key order, or
//reverse key order. It keeps the path from the root to the next entry and
//reads each node at most once. Once a key past the far bound is seen the
//cursor is exhausted and reads nothing more.
//Cursors read a pinned tree version, later writes are never observed.
type Cursor struct {
	view *DB
	t    *tree
	enc  opOptions

	lower, upper *bound
	reverse      bool
	limit        int

	stack   []*ref
	pending pointer // subtree whose near spine is pushed on the next call
	seeked  bool
	done    bool
	count   int
}

// Next returns the next entry, or ErrNoMoreKeys once the range is exhausted.
func (c *Cursor) Next(ctx context.Context) (*Entry, error) {
	r, err := c.next(ctx)
	if err != nil {
		return nil, err
	}
	return c.view.decodeEntry(r.keySeq, r.entry, c.enc)
}

func (c *Cursor) next(ctx context.Context) (*ref, error) {
	if c.done {
		return nil, ErrNoMoreKeys
	}
	if c.limit > 0 && c.count >= c.limit {
		c.finish()
		return nil, ErrNoMoreKeys
	}

	// a failed descent is undone so the call can be retried
	depth := len(c.stack)
	if !c.seeked {
		if err := c.seek(ctx); err != nil {
			c.stack = c.stack[:depth]
			return nil, err
		}
		c.seeked = true
	} else if !c.pending.isNull() {
		if err := c.spine(ctx, c.pending); err != nil {
			c.stack = c.stack[:depth]
			return nil, err
		}
		c.pending = pointer{}
	}

	if len(c.stack) == 0 {
		c.finish()
		return nil, ErrNoMoreKeys
	}
	r := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]

	if c.reverse {
		if !c.lower.admitsLower(r.key()) {
			c.finish()
			return nil, ErrNoMoreKeys
		}
		c.pending = r.left
	} else {
		if !c.upper.admitsUpper(r.key()) {
			c.finish()
			return nil, ErrNoMoreKeys
		}
		c.pending = r.right
	}
	c.count++
	return r, nil
}

// seek descends once from the root, keeping every node at or past the near bound.
func (c *Cursor) seek(ctx context.Context) error {
	p, err := c.t.root(ctx)
	if err != nil {
		return err
	}
	for !p.isNull() {
		r, err := c.t.resolve(ctx, p)
		if err != nil {
			return err
		}
		if c.reverse {
			if c.upper.admitsUpper(r.key()) {
				c.stack = append(c.stack, r)
				p = r.right
			} else {
				p = r.left
			}
		} else {
			if c.lower.admitsLower(r.key()) {
				c.stack = append(c.stack, r)
				p = r.left
			} else {
				p = r.right
			}
		}
	}
	return nil
}

// spine pushes the nodes from p down its near edge, all past the near bound already
func (c *Cursor) spine(ctx context.Context, p pointer) error {
	for !p.isNull() {
		r, err := c.t.resolve(ctx, p)
		if err != nil {
			return err
		}
		c.stack = append(c.stack, r)
		if c.reverse {
			p = r.right
		} else {
			p = r.left
		}
	}
	return nil
}

func (c *Cursor) finish() {
	c.done = true
	c.stack = nil
	c.pending = pointer{}
}

// Close releases the traversal state. Cursors hold no log session.
func (c *Cursor) Close() error {
	c.finish()
	return nil
}

// Collect drains the cursor.
func (c *Cursor) Collect(ctx context.Context) ([]*Entry, error) {
	var entries []*Entry
	for {
		e, err := c.Next(ctx)
		if err == ErrNoMoreKeys {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}

// CreateReadStream returns a cursor over the view's entries within opts.
// nil opts reads everything in key order.
func (d *DB) CreateReadStream(opts *RangeOptions) (*Cursor, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if opts == nil {
		opts = &RangeOptions{}
	}
	enc := d.opOptions(nil)
	if opts.KeyEncoding != nil {
		enc.keyEnc = opts.KeyEncoding
	}
	if opts.ValueEncoding != nil {
		enc.valueEnc = opts.ValueEncoding
	}
	if opts.NoWait {
		enc.wait = false
	}

	lower, err := d.encodeBound(enc.keyEnc, opts.GT, opts.GTE)
	if err != nil {
		return nil, err
	}
	upper, err := d.encodeBound(enc.keyEnc, opts.LT, opts.LTE)
	if err != nil {
		return nil, err
	}
	lower, upper = d.clip(lower, upper)

	return &Cursor{
		view:    d,
		t:       d.tree(enc.wait),
		enc:     enc,
		lower:   lower,
		upper:   upper,
		reverse: opts.Reverse,
		limit:   opts.Limit,
	}, nil
}

func (d *DB) encodeBound(enc Encoding, exclusive, inclusive interface{}) (*bound, error) {
	key, incl := exclusive, false
	if key == nil {
		key, incl = inclusive, true
	}
	if key == nil {
		return nil, nil
	}
	k, err := encodeKey(enc, key)
	if err != nil {
		return nil, err
	}
	return &bound{key: d.prefixed(k), inclusive: incl}, nil
}

// clip restricts a range to the view's prefix. Keys of the namespace are
// exactly those in [prefix, prefixEnd(prefix)).
func (d *DB) clip(lower, upper *bound) (*bound, *bound) {
	if len(d.prefix) == 0 {
		return lower, upper
	}
	if lower == nil {
		lower = &bound{key: d.prefix, inclusive: true}
	}
	if upper == nil {
		if end := prefixEnd(d.prefix); end != nil {
			upper = &bound{key: end}
		}
	}
	return lower, upper
}

// prefixEnd is the smallest key greater than every key starting with prefix,
// or nil if there is none (prefix is all 0xff).
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Peek returns the first entry of the range, or nil if it is empty.
func (d *DB) Peek(ctx context.Context, opts *RangeOptions) (*Entry, error) {
	o := RangeOptions{}
	if opts != nil {
		o = *opts
	}
	o.Limit = 1
	c, err := d.CreateReadStream(&o)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	e, err := c.Next(ctx)
	if err == ErrNoMoreKeys {
		return nil, nil
	}
	return e, err
}
