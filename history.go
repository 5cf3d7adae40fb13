package spacebee

import "bytes"
import "context"

// HistoryType tells what a record did to its key.
type HistoryType uint8

const (
	HistoryPut HistoryType = iota
	HistoryDel
)

func (t HistoryType) String() string {
	if t == HistoryDel {
		return "del"
	}
	return "put"
}

type HistoryEntry struct {
	Type HistoryType
	Entry
}

// HistoryStream replays node records by sequence, independent of the tree.
// In a sub namespace records of other keys are skipped.
type HistoryStream struct {
	view *DB
	enc  opOptions

	next, end uint64 // next seq to read, and the bound on the far side
	reverse   bool
	live      bool
	limit     int
	count     int
	done      bool
}

// CreateHistoryStream returns a stream over the records in [Start, End) of
// the view, oldest first unless Reverse is set.
func (d *DB) CreateHistoryStream(opts *HistoryOptions) (*HistoryStream, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if opts == nil {
		opts = &HistoryOptions{}
	}
	enc := d.opOptions(nil)
	if opts.KeyEncoding != nil {
		enc.keyEnc = opts.KeyEncoding
	}
	if opts.ValueEncoding != nil {
		enc.valueEnc = opts.ValueEncoding
	}
	if opts.NoWait {
		enc.wait = false
	}

	start, end := opts.Start, opts.End
	if start < 1 {
		start = 1
	}
	if version := d.Version(); end == 0 || end > version {
		end = version
	}

	h := &HistoryStream{
		view:    d,
		enc:     enc,
		reverse: opts.Reverse,
		live:    opts.Live && !opts.Reverse && !d.pinned,
		limit:   opts.Limit,
	}
	if h.reverse {
		// walks down from end-1 to start
		h.next, h.end = end, start
	} else {
		h.next, h.end = start, end
	}
	return h, nil
}

// Next returns the next record's entry, or ErrNoMoreKeys at the end of the
// range. A live stream waits for records instead of ending.
func (h *HistoryStream) Next(ctx context.Context) (*HistoryEntry, error) {
	for {
		if h.done || (h.limit > 0 && h.count >= h.limit) {
			h.done = true
			return nil, ErrNoMoreKeys
		}

		var seq uint64
		if h.reverse {
			if h.next <= h.end {
				h.done = true
				return nil, ErrNoMoreKeys
			}
			seq = h.next - 1
		} else {
			if !h.live && h.next >= h.end {
				h.done = true
				return nil, ErrNoMoreKeys
			}
			seq = h.next
		}

		n, err := h.view.nodes.getNode(ctx, seq, h.enc.wait || h.live)
		if err != nil {
			return nil, err
		}
		if h.reverse {
			h.next--
		} else {
			h.next++
		}
		if n.entry == nil || !bytes.HasPrefix(n.entry.key, h.view.prefix) {
			continue
		}

		e, err := h.view.decodeEntry(seq, n.entry, h.enc)
		if err != nil {
			return nil, err
		}
		h.count++
		he := &HistoryEntry{Type: HistoryPut, Entry: *e}
		if n.entry.deleted {
			he.Type = HistoryDel
		}
		return he, nil
	}
}

func (h *HistoryStream) Close() error {
	h.done = true
	return nil
}

// Collect drains a stream that is not live.
func (h *HistoryStream) Collect(ctx context.Context) ([]*HistoryEntry, error) {
	var entries []*HistoryEntry
	for {
		e, err := h.Next(ctx)
		if err == ErrNoMoreKeys {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
