package spacebee

import "bytes"
import "context"
import "sync/atomic"

import "github.com/rs/zerolog"
import "golang.org/x/xerrors"

import "github.com/deroproject/spacebee/core"

// Entry is a key and its value as of one log record.
type Entry struct {
	Seq   uint64
	Key   interface{}
	Value interface{} // nil for a key stored without value, and for tombstones
}

// state shared by a DB and every view derived from it
type shared struct {
	lock      chan struct{} // single writer, held from a batch's first mutation until flush
	header    atomic.Pointer[Header]
	metadata  map[string]interface{}
	cacheSize int
	logger    zerolog.Logger
	metrics   *Metrics
}

// DB is a view of a spacebee index: the whole key space or a sub namespace,
// following the log or pinned to one length. Every view reads through its own
// log session and node cache. Views are safe for concurrent use.
type DB struct {
	log   core.Log // this view's session
	nodes *nodeStore
	s     *shared

	keyEnc   Encoding
	valueEnc Encoding
	sep      []byte
	prefix   []byte

	version  uint64 // only meaningful when pinned
	pinned   bool
	readonly bool

	closed atomic.Bool
}

// New opens an index over log. The DB holds a session on log, closing the DB
// releases that session only, the log stays open.
func New(log core.Log, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	s := &shared{
		lock:      make(chan struct{}, 1),
		metadata:  opts.Metadata,
		cacheSize: opts.CacheSize,
		logger:    zerolog.Nop(),
		metrics:   opts.Metrics,
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("module", "spacebee").Logger()
	}
	if s.metrics == nil {
		s.metrics = defaultMetrics
	}

	d := &DB{
		s:        s,
		keyEnc:   opts.KeyEncoding,
		valueEnc: opts.ValueEncoding,
		sep:      opts.Sep,
		readonly: opts.Readonly,
	}
	if d.keyEnc == nil {
		d.keyEnc = Binary
	}
	if d.valueEnc == nil {
		d.valueEnc = Binary
	}
	if d.sep == nil {
		d.sep = DefaultSep
	}
	if err := d.open(log); err != nil {
		return nil, err
	}
	return d, nil
}

// open takes a session on log for d
func (d *DB) open(log core.Log) error {
	session, err := log.Session()
	if err != nil {
		return err
	}
	if d.nodes, err = newNodeStore(session, d.s.cacheSize, d.s.metrics, d.s.logger); err != nil {
		session.Close()
		return err
	}
	d.log = session
	d.s.metrics.OpenSessions.Inc()
	return nil
}

// derive opens a new view sharing d's writer lock and header.
func (d *DB) derive() (*DB, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	v := &DB{
		s:        d.s,
		keyEnc:   d.keyEnc,
		valueEnc: d.valueEnc,
		sep:      d.sep,
		prefix:   d.prefix,
		version:  d.version,
		pinned:   d.pinned,
		readonly: d.readonly,
	}
	if err := v.open(d.log); err != nil {
		return nil, err
	}
	return v, nil
}

// Ready checks the header of a non empty log. It never writes, the header is
// appended with the first mutation.
func (d *DB) Ready(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.log.Length() == 0 {
		return nil
	}
	_, err := d.getHeader(ctx, true)
	return err
}

func (d *DB) getHeader(ctx context.Context, wait bool) (*Header, error) {
	if h := d.s.header.Load(); h != nil {
		return h, nil
	}
	buf, err := d.log.Get(ctx, 0, wait)
	if err != nil {
		return nil, err
	}
	h, err := decodeHeader(buf)
	if err != nil {
		d.s.logger.Error().Err(err).Msg("log does not hold a spacebee index")
		return nil, err
	}
	d.s.header.Store(h)
	return h, nil
}

// GetHeader returns the header record, or nil if the view's version is 0.
func (d *DB) GetHeader(ctx context.Context, opts ...OpOption) (*Header, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if d.Version() == 0 {
		return nil, nil
	}
	return d.getHeader(ctx, d.opOptions(opts).wait)
}

// Version is the log length the view reads at.
func (d *DB) Version() uint64 {
	if d.pinned {
		return d.version
	}
	return d.log.Length()
}

func (d *DB) Readonly() bool {
	return d.readonly
}

func (d *DB) Writable() bool {
	return !d.readonly && d.log.Writable()
}

// Log returns the session this view reads through.
func (d *DB) Log() core.Log {
	return d.log
}

type identified interface {
	Key() []byte
	DiscoveryKey() []byte
	ID() string
}

// identity finds the core behind the view's session
func (d *DB) identity() identified {
	if s, ok := d.log.(interface{ Core() *core.Core }); ok {
		return s.Core()
	}
	if l, ok := d.log.(identified); ok {
		return l
	}
	return nil
}

// Key is the key of the underlying log, nil if the log has none.
func (d *DB) Key() []byte {
	if l := d.identity(); l != nil {
		return l.Key()
	}
	return nil
}

func (d *DB) DiscoveryKey() []byte {
	if l := d.identity(); l != nil {
		return l.DiscoveryKey()
	}
	return nil
}

// ID is the printable identifier of the underlying log.
func (d *DB) ID() string {
	if l := d.identity(); l != nil {
		return l.ID()
	}
	return ""
}

func (d *DB) opOptions(opts []OpOption) opOptions {
	o := opOptions{keyEnc: d.keyEnc, valueEnc: d.valueEnc, wait: true}
	for _, f := range opts {
		f(&o)
	}
	return o
}

func (d *DB) prefixed(key []byte) []byte {
	if len(d.prefix) == 0 {
		return key
	}
	k := make([]byte, 0, len(d.prefix)+len(key))
	k = append(k, d.prefix...)
	return append(k, key...)
}

// EncodeKey returns the key as it is physically stored, namespace prefix included.
func (d *DB) EncodeKey(key interface{}, opts ...OpOption) ([]byte, error) {
	k, err := encodeKey(d.opOptions(opts).keyEnc, key)
	if err != nil {
		return nil, err
	}
	return d.prefixed(k), nil
}

func (d *DB) tree(wait bool) *tree {
	return &tree{nodes: d.nodes, length: d.Version(), wait: wait}
}

func (d *DB) decodeEntry(seq uint64, e *entry, o opOptions) (*Entry, error) {
	if !bytes.HasPrefix(e.key, d.prefix) {
		return nil, xerrors.Errorf("%w: key %x outside namespace %x", ErrNoEntry, e.key, d.prefix)
	}
	k, err := o.keyEnc.Decode(e.key[len(d.prefix):])
	if err != nil {
		return nil, err
	}
	out := &Entry{Seq: seq, Key: k}
	if e.hasValue {
		if out.Value, err = o.valueEnc.Decode(e.value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Get returns the entry stored under key, or nil if there is none.
func (d *DB) Get(ctx context.Context, key interface{}, opts ...OpOption) (*Entry, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	o := d.opOptions(opts)
	k, err := encodeKey(o.keyEnc, key)
	if err != nil {
		return nil, err
	}
	r, err := d.tree(o.wait).get(ctx, d.prefixed(k))
	if err != nil || r == nil {
		return nil, err
	}
	return d.decodeEntry(r.keySeq, r.entry, o)
}

// Put stores value under key in a batch of its own.
func (d *DB) Put(ctx context.Context, key, value interface{}, opts ...OpOption) error {
	b := d.Batch()
	if err := b.Put(ctx, key, value, opts...); err != nil {
		b.Destroy()
		return err
	}
	return b.Flush()
}

// Del removes key in a batch of its own. Removing a missing key succeeds and appends nothing.
func (d *DB) Del(ctx context.Context, key interface{}, opts ...OpOption) error {
	b := d.Batch()
	if err := b.Del(ctx, key, opts...); err != nil {
		b.Destroy()
		return err
	}
	return b.Flush()
}

// GetBySeq returns the entry written by record seq, whatever happened to the
// key since. A tombstone yields the deleted key with a nil value.
func (d *DB) GetBySeq(ctx context.Context, seq uint64, opts ...OpOption) (*Entry, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if seq >= d.Version() {
		return nil, xerrors.Errorf("%w: seq %d, version %d", ErrOutOfRange, seq, d.Version())
	}
	if seq == 0 {
		return nil, xerrors.Errorf("%w: seq 0 is the header", ErrNoEntry)
	}
	o := d.opOptions(opts)
	n, err := d.nodes.getNode(ctx, seq, o.wait)
	if err != nil {
		return nil, err
	}
	if n.entry == nil {
		return nil, xerrors.Errorf("%w: seq %d", ErrNoEntry, seq)
	}
	return d.decodeEntry(seq, n.entry, o)
}

// Close releases the view's session and cache. Other views and the log are unaffected.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.s.metrics.OpenSessions.Dec()
	return d.nodes.close()
}
