package core

import "github.com/rs/zerolog"

// Backend selects where a core keeps its records.
type Backend int8

const (
	Memory  Backend = iota // non persistent, default
	Disk                   // split data files under Options.Directory
	LevelDB                // a LevelDB database at Options.Directory
)

func (b Backend) String() string {
	switch b {
	case Memory:
		return "memory"
	case Disk:
		return "disk"
	case LevelDB:
		return "leveldb"
	default:
		return "unknown"
	}
}

// ParseBackend maps "memory", "disk" or "leveldb" to a Backend.
func ParseBackend(name string) (Backend, bool) {
	for _, b := range []Backend{Memory, Disk, LevelDB} {
		if b.String() == name {
			return b, true
		}
	}
	return Memory, false
}

type Options struct {
	Backend   Backend
	Directory string

	// Key opens the core as a copy of an existing log. When empty a stored key
	// is loaded, or a fresh one generated.
	Key []byte

	// Readonly disables Append. Replicas are readonly.
	Readonly bool

	// Compress stores disk frames snappy compressed when that makes them smaller.
	Compress bool

	Logger *zerolog.Logger
}

func (o *Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return o.Logger.With().Str("module", "core").Logger()
}
