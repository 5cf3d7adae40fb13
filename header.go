package spacebee

import "context"
import "errors"

import "golang.org/x/xerrors"

import "github.com/deroproject/spacebee/core"

// Header is record 0 of every spacebee log.
type Header struct {
	Protocol string                 `cbor:"protocol"`
	Metadata map[string]interface{} `cbor:"metadata,omitempty"`
}

func encodeHeader(h *Header) ([]byte, error) {
	return cborEnc.Marshal(h)
}

func decodeHeader(buf []byte) (*Header, error) {
	var h Header
	if err := cborDec.Unmarshal(buf, &h); err != nil {
		return nil, xerrors.Errorf("%w: %s", ErrInvalidHeader, err)
	}
	if h.Protocol != Protocol {
		return nil, xerrors.Errorf("%w: protocol %q", ErrInvalidHeader, h.Protocol)
	}
	return &h, nil
}

// IsSpacebee reports whether log holds a spacebee index. An empty log is not
// one yet. When record 0 is not local and wait is false it fails with
// ErrBlockUnavailable instead of answering.
func IsSpacebee(ctx context.Context, log core.Log, wait bool) (bool, error) {
	if log.Length() == 0 && !wait {
		return false, xerrors.Errorf("%w: log is empty", ErrBlockUnavailable)
	}
	buf, err := log.Get(ctx, 0, wait)
	if err != nil {
		return false, err
	}
	if _, err := decodeHeader(buf); err != nil {
		if errors.Is(err, ErrInvalidHeader) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
