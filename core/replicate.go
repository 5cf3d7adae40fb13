package core

import "context"

import "golang.org/x/xerrors"

// Download copies records [start, end) of src into c. An end of 0 means the
// length of src at call time. The length of src is adopted first, so records
// outside the range are known to exist but stay unavailable.
func (c *Core) Download(ctx context.Context, src Log, start, end uint64) error {
	if c.writable {
		return ErrNotReplica
	}
	c.adoptLength(src.Length())
	if end == 0 {
		end = src.Length()
	}

	for seq := start; seq < end; seq++ {
		if c.Has(seq) {
			continue
		}
		data, err := src.Get(ctx, seq, true)
		if err != nil {
			return xerrors.Errorf("download seq %d: %w", seq, err)
		}
		if err := c.ingest(seq, data); err != nil {
			return err
		}
	}
	c.log.Debug().Uint64("start", start).Uint64("end", end).Msg("download complete")
	return nil
}

// Replicate follows src, copying every record as it is appended, until ctx is
// done or either side fails. It returns ctx.Err() on cancellation.
func (c *Core) Replicate(ctx context.Context, src Log) error {
	if c.writable {
		return ErrNotReplica
	}

	for seq := uint64(0); ; seq++ {
		if c.Has(seq) {
			continue
		}
		data, err := src.Get(ctx, seq, true)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return xerrors.Errorf("replicate seq %d: %w", seq, err)
		}
		c.adoptLength(src.Length())
		if err := c.ingest(seq, data); err != nil {
			return err
		}
		if seq%1024 == 0 {
			c.log.Debug().Uint64("seq", seq).Msg("replication progress")
		}
	}
}
