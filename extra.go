package spacebee

import "context"
import "crypto/rand"
import "math"
import "math/big"

// Random returns a random entry of the view, provided it has keys.
// the following are limitations
// an empty view returns ErrNoMoreKeys
// randomness depends on the tree shape, one entry of a random root to leaf path is picked uniformly
func (d *DB) Random(ctx context.Context, opts ...OpOption) (*Entry, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	o := d.opOptions(opts)
	c, err := d.CreateReadStream(&RangeOptions{KeyEncoding: o.keyEnc, ValueEncoding: o.valueEnc, NoWait: !o.wait})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	// candidates are the nodes inside the namespace on one random root to leaf path
	var pick *ref
	var seen int
	p, err := c.t.root(ctx)
	if err != nil {
		return nil, err
	}
	for !p.isNull() {
		r, err := c.t.resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		var rbyte [1]byte
		if _, err = rand.Read(rbyte[:]); err != nil {
			return nil, err
		}

		switch {
		case !c.lower.admitsLower(r.key()):
			p = r.right
			continue
		case !c.upper.admitsUpper(r.key()):
			p = r.left
			continue
		}
		// reservoir sampling, every candidate on the path is equally likely
		seen++
		replace, err := rand.Int(rand.Reader, big.NewInt(int64(seen)))
		if err != nil {
			return nil, err
		}
		if replace.Sign() == 0 {
			pick = r
		}
		if rbyte[0]&0x80 != 0 {
			p = r.right
		} else {
			p = r.left
		}
	}
	if pick == nil {
		return nil, ErrNoMoreKeys
	}
	return d.decodeEntry(pick.keySeq, pick.entry, o)
}

// KeyCountEstimate estimates the number of keys in the whole tree from the
// rank of its root, the height of the tallest tower in the skip list.
// very crude but only used for display
func (d *DB) KeyCountEstimate(ctx context.Context) (int64, error) {
	t := d.tree(true)
	p, err := t.root(ctx)
	if err != nil || p.isNull() {
		return 0, err
	}
	r, err := t.resolve(ctx, p)
	if err != nil {
		return 0, err
	}
	return int64(math.Exp2(float64(r.rank))), nil
}
