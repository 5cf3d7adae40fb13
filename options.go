package spacebee

import "github.com/rs/zerolog"

// Options configure a DB. The zero value is usable.
type Options struct {
	KeyEncoding   Encoding // default Binary
	ValueEncoding Encoding // default Binary

	// Sep joins sub namespace names, default DefaultSep
	Sep []byte

	// Readonly disables the header write and every mutation.
	Readonly bool

	// CacheSize is the number of decoded nodes each session keeps, default DEFAULT_CACHESIZE.
	CacheSize int

	// Metadata is stored in the header when this DB writes it.
	Metadata map[string]interface{}

	Logger  *zerolog.Logger
	Metrics *Metrics
}

// SubOptions override the encodings and separator of a sub namespace.
// Unset fields are inherited from the parent view.
type SubOptions struct {
	KeyEncoding   Encoding
	ValueEncoding Encoding
	Sep           []byte
}

// CheckoutOptions override the encodings of a pinned view.
type CheckoutOptions struct {
	KeyEncoding   Encoding
	ValueEncoding Encoding

	// Writable asks for a checkout that can be appended to. Forking history
	// is not supported and such a checkout fails with ErrReadOnly.
	Writable bool
}

type opOptions struct {
	keyEnc   Encoding
	valueEnc Encoding
	wait     bool
}

// OpOption changes a single call.
type OpOption func(*opOptions)

func WithKeyEncoding(e Encoding) OpOption {
	return func(o *opOptions) { o.keyEnc = e }
}

func WithValueEncoding(e Encoding) OpOption {
	return func(o *opOptions) { o.valueEnc = e }
}

// NoWait makes reads of records that are not local yet fail with
// ErrBlockUnavailable instead of waiting for them.
func NoWait() OpOption {
	return func(o *opOptions) { o.wait = false }
}

// HistoryOptions select the records a history stream replays. Sequence
// numbers are log positions.
type HistoryOptions struct {
	Start   uint64 // first seq, default 1
	End     uint64 // seq after the last one, default the view's version
	Reverse bool
	Limit   int // 0 means no limit

	// Live keeps a forward stream open, yielding records as they are
	// appended. End is ignored. Pinned views are never live.
	Live bool

	KeyEncoding   Encoding
	ValueEncoding Encoding
	NoWait        bool
}
