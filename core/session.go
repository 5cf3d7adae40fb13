package core

import "context"
import "sync/atomic"

import "github.com/google/uuid"

// Session is a counted handle on a Core. Closing it releases only the handle.
type Session struct {
	core   *Core
	id     uuid.UUID
	closed atomic.Bool
}

var _ Log = (*Session)(nil)

func newSession(c *Core) *Session {
	return &Session{core: c, id: uuid.New()}
}

func (s *Session) ID() string {
	return s.id.String()
}

// Core returns the core the session was opened on.
func (s *Session) Core() *Core {
	return s.core
}

func (s *Session) Length() uint64 {
	return s.core.Length()
}

func (s *Session) Writable() bool {
	return s.core.Writable()
}

func (s *Session) Has(seq uint64) bool {
	if s.closed.Load() {
		return false
	}
	return s.core.Has(seq)
}

func (s *Session) Append(blocks ...[]byte) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	return s.core.Append(blocks...)
}

func (s *Session) Get(ctx context.Context, seq uint64, wait bool) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return s.core.Get(ctx, seq, wait)
}

func (s *Session) Session() (Log, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return s.core.Session()
}

func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.core.releaseSession(s)
	}
	return nil
}
