package core

import "errors"

var (
	ErrBlockUnavailable = errors.New("block is not available")
	ErrReadonly         = errors.New("core is not writable")
	ErrClosed           = errors.New("core is closed")
	ErrSessionClosed    = errors.New("session is closed")
	ErrCorruption       = errors.New("data corruption")
	ErrUnknownBackend   = errors.New("unknown storage backend")
	ErrKeyMismatch      = errors.New("core key mismatch")
	ErrNotReplica       = errors.New("a writable core cannot replicate")
)
