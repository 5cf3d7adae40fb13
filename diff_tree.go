package spacebee

import "bytes"
import "context"

// All changes are reported of this type, deleted, modified, inserted.
// modified receives the value from head.
type DiffHandler func(k, v interface{})

// diffTree walks two cursors side by side
type diffTree struct {
	base, head *Cursor
}

// Diff reports every key that differs between base and head, two views of
// the same index (typically two checkouts, or a checkout and the live DB),
// restricted to opts. Keys are decoded with head's encodings, deleted
// entries with base's. Entries written by the same record in both versions
// are skipped without decoding. Any handler may be nil.
func Diff(ctx context.Context, base, head *DB, deleted, modified, inserted DiffHandler, opts *RangeOptions) (err error) {
	dt := diffTree{}
	if dt.base, err = base.CreateReadStream(opts); err != nil {
		return
	}
	defer dt.base.Close()
	if dt.head, err = head.CreateReadStream(opts); err != nil {
		return
	}
	defer dt.head.Close()
	return dt.changes(ctx, deleted, modified, inserted)
}

func (dt *diffTree) changes(ctx context.Context, deleted, modified, inserted DiffHandler) error {
	b, err := dt.step(ctx, dt.base)
	if err != nil {
		return err
	}
	h, err := dt.step(ctx, dt.head)
	if err != nil {
		return err
	}

	for b != nil || h != nil {
		var cmp int
		switch {
		case b == nil:
			cmp = 1
		case h == nil:
			cmp = -1
		default:
			cmp = bytes.Compare(b.key(), h.key())
		}

		switch {
		case cmp < 0:
			if err = dt.report(deleted, dt.base, b); err != nil {
				return err
			}
			b, err = dt.step(ctx, dt.base)
		case cmp > 0:
			if err = dt.report(inserted, dt.head, h); err != nil {
				return err
			}
			h, err = dt.step(ctx, dt.head)
		default:
			if b.keySeq != h.keySeq && !sameValue(b.entry, h.entry) {
				if err = dt.report(modified, dt.head, h); err != nil {
					return err
				}
			}
			if b, err = dt.step(ctx, dt.base); err == nil {
				h, err = dt.step(ctx, dt.head)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// step returns the next raw entry of c, nil at the end
func (dt *diffTree) step(ctx context.Context, c *Cursor) (*ref, error) {
	r, err := c.next(ctx)
	if err == ErrNoMoreKeys {
		return nil, nil
	}
	return r, err
}

func (dt *diffTree) report(handler DiffHandler, c *Cursor, r *ref) error {
	if handler == nil {
		return nil
	}
	e, err := c.view.decodeEntry(r.keySeq, r.entry, c.enc)
	if err != nil {
		return err
	}
	handler(e.Key, e.Value)
	return nil
}

func sameValue(a, b *entry) bool {
	return a.hasValue == b.hasValue && bytes.Equal(a.value, b.value)
}
