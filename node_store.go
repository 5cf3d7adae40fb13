package spacebee

import "context"
import "errors"
import "strconv"

import lru "github.com/hashicorp/golang-lru/v2"
import "github.com/rs/zerolog"
import "golang.org/x/sync/singleflight"

import "github.com/deroproject/spacebee/core"

// nodeReader is what the tree engine descends through.
// batches overlay their pending records on top of a nodeStore.
type nodeReader interface {
	getNode(ctx context.Context, seq uint64, wait bool) (*node, error)
}

// nodeStore reads node records through one log session. Decoded nodes are
// immutable, so the cache never needs invalidation, only purging on close.
type nodeStore struct {
	log     core.Log
	cache   *lru.Cache[uint64, *node]
	group   singleflight.Group
	metrics *Metrics
	logger  zerolog.Logger
}

func newNodeStore(log core.Log, cachesize int, metrics *Metrics, logger zerolog.Logger) (*nodeStore, error) {
	if cachesize <= 0 {
		cachesize = DEFAULT_CACHESIZE
	}
	cache, err := lru.New[uint64, *node](cachesize)
	if err != nil {
		return nil, err
	}
	return &nodeStore{log: log, cache: cache, metrics: metrics, logger: logger}, nil
}

func (s *nodeStore) getNode(ctx context.Context, seq uint64, wait bool) (*node, error) {
	if n, ok := s.cache.Get(seq); ok {
		s.metrics.CacheHit.Inc()
		return n, nil
	}
	s.metrics.CacheMiss.Inc()

	key := strconv.FormatUint(seq, 10)
	if wait {
		key += "w"
	}

	for {
		ch := s.group.DoChan(key, func() (interface{}, error) {
			return s.load(ctx, seq, wait)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				// the shared read was abandoned by whoever started it, not by us
				if isContextError(r.Err) && ctx.Err() == nil {
					continue
				}
				return nil, r.Err
			}
			return r.Val.(*node), nil
		}
	}
}

func (s *nodeStore) load(ctx context.Context, seq uint64, wait bool) (*node, error) {
	buf, err := s.log.Get(ctx, seq, wait)
	if err != nil {
		return nil, err
	}
	n, err := decodeNode(seq, buf)
	if err != nil {
		s.logger.Error().Err(err).Uint64("seq", seq).Msg("malformed node record")
		return nil, err
	}
	s.cache.Add(seq, n)
	return n, nil
}

// add seeds the cache with records this session just appended.
func (s *nodeStore) add(nodes []*node) {
	for _, n := range nodes {
		s.cache.Add(n.seq, n)
	}
}

// appendNodes writes all records in one all-or-nothing log append and returns
// the new log length. blocks may start with the header record.
func (s *nodeStore) appendNodes(blocks [][]byte) (uint64, error) {
	return s.log.Append(blocks...)
}

func (s *nodeStore) close() error {
	s.cache.Purge()
	return s.log.Close()
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
