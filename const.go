package spacebee

import "errors"

import "github.com/deroproject/spacebee/core"

const (
	Protocol          = "spacebee" // protocol tag of the header record
	NODE_VERSION      = 1          // first byte of every node record
	MAX_RANK          = 65         // levelCount can never exceed this, 64 trailing ones + 1
	DEFAULT_CACHESIZE = 65536      // decoded nodes cached per session
)

// DefaultSep separates sub namespace names from each other and from keys.
var DefaultSep = []byte{0x00}

var (
	ErrBlockUnavailable = core.ErrBlockUnavailable // re-exported, record not local and waiting was not requested
	ErrReadOnly         = errors.New("database is read-only")
	ErrMalformedNode    = errors.New("malformed node record")
	ErrInvalidHeader    = errors.New("invalid header record")
	ErrNoEntry          = errors.New("record holds no entry")
	ErrOutOfRange       = errors.New("sequence out of range")
	ErrNoMoreKeys       = errors.New("no more keys exist")
	ErrEncoding         = errors.New("encoding error")
	ErrClosed           = errors.New("database is closed")
	ErrConcurrentAppend = errors.New("log was appended outside the writer lock")
)
