package spacebee

import "context"

import "golang.org/x/xerrors"

// Batch collects mutations and appends them to the log in a single call.
// The first mutation takes the writer lock of the DB, which is held until
// Flush or Destroy, so concurrent batches are serialized and each one builds
// on the result of the previous. Reads through the batch see its pending
// mutations. A Batch is not safe for concurrent use.
type Batch struct {
	db     *DB
	locked bool

	base   uint64   // log length when the lock was taken
	blocks [][]byte // encoded records to append, header first when the log is empty
	nodes  []*node  // decoded form of blocks, nil for the header
}

// Batch starts a batch on the view. Keys are relative to the view's namespace.
func (d *DB) Batch() *Batch {
	return &Batch{db: d}
}

func (b *Batch) lock(ctx context.Context) error {
	if b.locked {
		return nil
	}
	d := b.db
	select {
	case d.s.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.locked = true
	b.base = d.log.Length()

	if b.base == 0 {
		hdr, err := encodeHeader(&Header{Protocol: Protocol, Metadata: d.s.metadata})
		if err != nil {
			b.release()
			return err
		}
		b.blocks = append(b.blocks, hdr)
		b.nodes = append(b.nodes, nil)
		return nil
	}

	// never extend a log that holds something else
	if _, err := d.getHeader(ctx, true); err != nil {
		b.release()
		return err
	}
	return nil
}

func (b *Batch) release() {
	if b.locked {
		b.locked = false
		<-b.db.s.lock
	}
	b.blocks = nil
	b.nodes = nil
}

// length is the log length once the pending records are appended
func (b *Batch) length() uint64 {
	return b.base + uint64(len(b.blocks))
}

// getNode serves pending records before they reach the log.
func (b *Batch) getNode(ctx context.Context, seq uint64, wait bool) (*node, error) {
	if b.locked && seq >= b.base && seq < b.length() {
		if n := b.nodes[seq-b.base]; n != nil {
			return n, nil
		}
		return nil, xerrors.Errorf("%w: seq %d is the pending header", ErrMalformedNode, seq)
	}
	return b.db.nodes.getNode(ctx, seq, wait)
}

func (b *Batch) tree(wait bool) *tree {
	if !b.locked {
		return b.db.tree(wait)
	}
	return &tree{nodes: b, length: b.length(), wait: wait}
}

func (b *Batch) writable() error {
	if b.db.closed.Load() {
		return ErrClosed
	}
	if b.db.readonly || !b.db.log.Writable() {
		return ErrReadOnly
	}
	return nil
}

func (b *Batch) push(n *node) error {
	buf, err := n.MarshalBinary()
	if err != nil {
		return err
	}
	b.blocks = append(b.blocks, buf)
	b.nodes = append(b.nodes, n)
	return nil
}

func (b *Batch) Put(ctx context.Context, key, value interface{}, opts ...OpOption) error {
	if err := b.writable(); err != nil {
		return err
	}
	o := b.db.opOptions(opts)
	k, err := encodeKey(o.keyEnc, key)
	if err != nil {
		return err
	}
	v, hasValue, err := encodeValue(o.valueEnc, value)
	if err != nil {
		return err
	}
	if err := b.lock(ctx); err != nil {
		return err
	}

	// pending nodes end up in the session cache, they must not share the caller's buffers
	k = append([]byte(nil), b.db.prefixed(k)...)
	if hasValue {
		v = append([]byte{}, v...)
	}

	seq := b.length()
	n, err := b.tree(true).put(ctx, seq, k, v, hasValue)
	if err != nil {
		return err
	}
	return b.push(n)
}

// Del removes key. A missing key leaves the batch unchanged.
func (b *Batch) Del(ctx context.Context, key interface{}, opts ...OpOption) error {
	if err := b.writable(); err != nil {
		return err
	}
	o := b.db.opOptions(opts)
	k, err := encodeKey(o.keyEnc, key)
	if err != nil {
		return err
	}
	if err := b.lock(ctx); err != nil {
		return err
	}

	seq := b.length()
	n, err := b.tree(true).del(ctx, seq, append([]byte(nil), b.db.prefixed(k)...))
	if err != nil || n == nil {
		return err
	}
	return b.push(n)
}

// Get reads key including the batch's pending mutations.
func (b *Batch) Get(ctx context.Context, key interface{}, opts ...OpOption) (*Entry, error) {
	d := b.db
	if d.closed.Load() {
		return nil, ErrClosed
	}
	o := d.opOptions(opts)
	k, err := encodeKey(o.keyEnc, key)
	if err != nil {
		return nil, err
	}
	r, err := b.tree(o.wait).get(ctx, d.prefixed(k))
	if err != nil || r == nil {
		return nil, err
	}
	return d.decodeEntry(r.keySeq, r.entry, o)
}

// Flush appends every pending record in one log append and releases the
// writer lock. A batch without mutations appends nothing, not even the header.
func (b *Batch) Flush() error {
	defer b.release()
	if !b.locked {
		return nil
	}

	records := 0
	for _, n := range b.nodes {
		if n != nil {
			records++
		}
	}
	if records == 0 {
		return nil
	}

	d := b.db
	if length := d.log.Length(); length != b.base {
		return xerrors.Errorf("%w: log length %d, batch built on %d", ErrConcurrentAppend, length, b.base)
	}
	length, err := d.nodes.appendNodes(b.blocks)
	if err != nil {
		return xerrors.Errorf("flush %d records at %d: %w", len(b.blocks), b.base, err)
	}
	if length != b.length() {
		d.s.logger.Error().Uint64("expected", b.length()).Uint64("length", length).Msg("log grew outside the writer lock")
		return xerrors.Errorf("%w: expected length %d, got %d", ErrConcurrentAppend, b.length(), length)
	}

	pending := make([]*node, 0, records)
	for _, n := range b.nodes {
		if n != nil {
			pending = append(pending, n)
		}
	}
	d.nodes.add(pending)

	if b.nodes[0] == nil && b.base == 0 {
		d.s.logger.Info().Interface("metadata", d.s.metadata).Msg("header written")
	}
	d.s.metrics.RecordsAppended.Add(float64(len(b.blocks)))
	d.s.metrics.BatchFlushes.Inc()
	d.s.logger.Debug().Int("records", len(b.blocks)).Uint64("length", length).Msg("batch flushed")
	return nil
}

// Destroy drops the pending mutations and releases the writer lock.
func (b *Batch) Destroy() {
	b.release()
}
