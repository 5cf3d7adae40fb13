// Package core implements the append-only, replicable record log that a
// spacebee index is built on.
//
// A Core stores opaque binary records addressed by a sequence number. Records
// are immutable once appended. A Core has a known length, which on a replica
// may run ahead of the records that are locally present; reads of a missing
// record either suspend until it arrives or fail with ErrBlockUnavailable.
package core

import "context"
import "crypto/rand"
import "encoding/base32"
import "strings"
import "sync"

import "github.com/rs/zerolog"
import "golang.org/x/crypto/blake2s"
import "golang.org/x/xerrors"

// KeySize is the size of a core key and of its discovery key.
const KeySize = 32

var discoveryNamespace = []byte("spacebee-discovery")

// Log is the contract an index needs from the underlying record log.
type Log interface {
	// Length is the known number of records, including ones not yet local.
	Length() uint64
	Writable() bool
	// Append stores all blocks at contiguous sequence numbers, or none of them.
	// It returns the new length.
	Append(blocks ...[]byte) (uint64, error)
	// Get returns record seq. When the record is not local it waits for it if
	// wait is set, otherwise it returns ErrBlockUnavailable.
	Get(ctx context.Context, seq uint64, wait bool) ([]byte, error)
	Has(seq uint64) bool
	// Session opens a new counted handle on the same log.
	Session() (Log, error)
	Close() error
}

// Core is a Log backed by one of the storage backends.
type Core struct {
	store    blockStore
	backend  Backend
	writable bool
	log      zerolog.Logger

	mu       sync.Mutex
	length   uint64
	changed  chan struct{} // closed and replaced whenever a record lands or the length grows
	key      [KeySize]byte
	sessions int
	closed   bool
}

var _ Log = (*Core)(nil)

// Open opens or creates a core as described by opts. nil opts opens a memory core.
func Open(opts *Options) (*Core, error) {
	if opts == nil {
		opts = &Options{}
	}

	var store blockStore
	var err error
	switch opts.Backend {
	case Memory:
		store = newMemoryStore()
	case Disk:
		store, err = newDiskStore(opts.Directory, opts.Compress)
	case LevelDB:
		store, err = newLevelDBStore(opts.Directory)
	default:
		err = xerrors.Errorf("%w: %d", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	c := &Core{
		store:    store,
		backend:  opts.Backend,
		writable: !opts.Readonly,
		log:      opts.logger(),
		changed:  make(chan struct{}),
		length:   store.length(),
	}

	if err := c.loadKey(opts.Key); err != nil {
		store.close()
		return nil, err
	}

	c.log.Debug().
		Str("backend", c.backend.String()).
		Str("id", c.ID()).
		Uint64("length", c.length).
		Bool("writable", c.writable).
		Msg("core opened")
	return c, nil
}

// NewMemory opens a writable in-memory core, useful for tests and temporary use.
func NewMemory() (*Core, error) {
	return Open(&Options{Backend: Memory})
}

// NewDisk opens or creates a writable core in basepath using the split data file layout.
func NewDisk(basepath string) (*Core, error) {
	return Open(&Options{Backend: Disk, Directory: basepath})
}

// NewLevelDB opens or creates a writable core stored in a LevelDB database at path.
func NewLevelDB(path string) (*Core, error) {
	return Open(&Options{Backend: LevelDB, Directory: path})
}

// NewReplica opens an empty, non-writable memory core that replicates the core with the given key.
func NewReplica(key []byte) (*Core, error) {
	return Open(&Options{Backend: Memory, Key: key, Readonly: true})
}

func (c *Core) loadKey(want []byte) error {
	stored, err := c.store.loadKey()
	if err != nil {
		return err
	}

	switch {
	case len(stored) == KeySize:
		if want != nil && string(want) != string(stored) {
			return xerrors.Errorf("%w: stored key %x, requested %x", ErrKeyMismatch, stored, want)
		}
		copy(c.key[:], stored)
		return nil
	case len(stored) != 0:
		return xerrors.Errorf("%w: key record is %d bytes", ErrCorruption, len(stored))
	case want != nil:
		if len(want) != KeySize {
			return xerrors.Errorf("%w: key must be %d bytes, got %d", ErrKeyMismatch, KeySize, len(want))
		}
		copy(c.key[:], want)
	default:
		if _, err := rand.Read(c.key[:]); err != nil {
			return err
		}
	}
	return c.store.storeKey(c.key[:])
}

// Key is the public identifier of the log.
func (c *Core) Key() []byte {
	k := c.key
	return k[:]
}

// DiscoveryKey is a keyed hash of the key that can be announced without revealing it.
func (c *Core) DiscoveryKey() []byte {
	h, _ := blake2s.New256(c.key[:])
	h.Write(discoveryNamespace)
	return h.Sum(nil)
}

// ID is the key in unpadded lowercase base32, 52 characters long.
func (c *Core) ID() string {
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(c.key[:]))
}

func (c *Core) Backend() Backend {
	return c.backend
}

func (c *Core) Writable() bool {
	return c.writable
}

func (c *Core) Length() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}

// Sessions is the number of sessions currently open on the core.
func (c *Core) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}

func (c *Core) Has(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	return c.store.has(seq)
}

func (c *Core) Append(blocks ...[]byte) (uint64, error) {
	if !c.writable {
		return 0, ErrReadonly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if len(blocks) == 0 {
		return c.length, nil
	}

	start := c.length
	if err := c.store.putBatch(start, blocks); err != nil {
		return 0, xerrors.Errorf("append at %d: %w", start, err)
	}
	c.length += uint64(len(blocks))
	c.notify()
	return c.length, nil
}

func (c *Core) Get(ctx context.Context, seq uint64, wait bool) ([]byte, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		data, ok, err := c.store.get(seq)
		if err != nil {
			c.mu.Unlock()
			c.log.Error().Err(err).Uint64("seq", seq).Msg("record read failed")
			return nil, err
		}
		if ok {
			c.mu.Unlock()
			return data, nil
		}
		if !wait {
			c.mu.Unlock()
			return nil, xerrors.Errorf("%w: seq %d", ErrBlockUnavailable, seq)
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Session opens a counted handle on the core.
func (c *Core) Session() (Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.sessions++
	s := newSession(c)
	c.log.Debug().Str("session", s.ID()).Int("sessions", c.sessions).Msg("session opened")
	return s, nil
}

func (c *Core) releaseSession(s *Session) {
	c.mu.Lock()
	c.sessions--
	n := c.sessions
	c.mu.Unlock()
	c.log.Debug().Str("session", s.ID()).Int("sessions", n).Msg("session closed")
}

// Close closes the storage backend. Open sessions fail with ErrClosed afterwards.
func (c *Core) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.notify()
	c.log.Debug().Str("id", c.ID()).Uint64("length", c.length).Msg("core closed")
	return c.store.close()
}

// ingest stores a replicated record, which may land beyond the current length.
func (c *Core) ingest(seq uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.store.has(seq) {
		return nil
	}
	if err := c.store.putBatch(seq, [][]byte{data}); err != nil {
		return err
	}
	if seq+1 > c.length {
		c.length = seq + 1
	}
	c.notify()
	return nil
}

// adoptLength grows the known length without making records available.
func (c *Core) adoptLength(length uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if length > c.length {
		c.length = length
		c.notify()
	}
}

// must be called with mu held
func (c *Core) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}
