package spacebee

import "golang.org/x/xerrors"

// Sub opens a namespace view. Its keys are stored as the parent prefix, name
// and the separator followed by the key, and reads through it never see keys
// outside that prefix. Subs nest, and inherit the parent's version pin.
// Closing a sub releases only its own session.
func (d *DB) Sub(name string, opts *SubOptions) (*DB, error) {
	v, err := d.derive()
	if err != nil {
		return nil, err
	}
	if opts != nil {
		if opts.KeyEncoding != nil {
			v.keyEnc = opts.KeyEncoding
		}
		if opts.ValueEncoding != nil {
			v.valueEnc = opts.ValueEncoding
		}
		if opts.Sep != nil {
			v.sep = opts.Sep
		}
	}

	prefix := make([]byte, 0, len(d.prefix)+len(name)+len(v.sep))
	prefix = append(prefix, d.prefix...)
	prefix = append(prefix, name...)
	v.prefix = append(prefix, v.sep...)
	return v, nil
}

// Checkout opens a read only view of the tree as it was at log length length.
// Checking out a pinned view pins to the smaller of both lengths, the
// namespace is kept. On a live view length may not exceed the current version.
func (d *DB) Checkout(length uint64, opts *CheckoutOptions) (*DB, error) {
	if opts != nil && opts.Writable {
		return nil, xerrors.Errorf("%w: writable checkouts are not supported", ErrReadOnly)
	}
	if d.pinned {
		if d.version < length {
			length = d.version
		}
	} else if version := d.Version(); length > version {
		return nil, xerrors.Errorf("%w: checkout at %d, version %d", ErrOutOfRange, length, version)
	}

	v, err := d.derive()
	if err != nil {
		return nil, err
	}
	v.version = length
	v.pinned = true
	v.readonly = true
	if opts != nil {
		if opts.KeyEncoding != nil {
			v.keyEnc = opts.KeyEncoding
		}
		if opts.ValueEncoding != nil {
			v.valueEnc = opts.ValueEncoding
		}
	}
	return v, nil
}

// Snapshot is a checkout at the view's current version.
func (d *DB) Snapshot(opts *CheckoutOptions) (*DB, error) {
	return d.Checkout(d.Version(), opts)
}
