package spacebee

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func collectKeys(t testing.TB, db *DB, opts *RangeOptions) []string {
	c, err := db.CreateReadStream(opts)
	require.NoError(t, err)
	defer c.Close()
	entries, err := c.Collect(ctx)
	require.NoError(t, err)
	keys := []string{}
	for _, e := range entries {
		switch k := e.Key.(type) {
		case string:
			keys = append(keys, k)
		case []byte:
			keys = append(keys, string(k))
		}
	}
	return keys
}

func TestCursorEmpty(t *testing.T) {
	db, _ := utf8DB(t)

	c, err := db.CreateReadStream(nil)
	require.NoError(t, err)
	_, err = c.Next(ctx)
	require.ErrorIs(t, err, ErrNoMoreKeys) // since tree is empty we must receive err
	_, err = c.Next(ctx)
	require.ErrorIs(t, err, ErrNoMoreKeys)

	require.NoError(t, db.Put(ctx, "key", "value"))
	c, err = db.CreateReadStream(nil)
	require.NoError(t, err)
	e, err := c.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "key", e.Key)
	require.Equal(t, "value", e.Value)
}

func TestOutOfBoundsIterator(t *testing.T) {
	db, _ := newTestDB(t, nil)

	b := db.Batch()
	require.NoError(t, b.Put(ctx, "a", nil))
	require.NoError(t, b.Put(ctx, "b", nil))
	require.NoError(t, b.Put(ctx, "c", nil))
	require.NoError(t, b.Flush())

	require.Empty(t, collectKeys(t, db, &RangeOptions{GT: []byte("c")}), "no out of bounds reads")
	require.Empty(t, collectKeys(t, db, &RangeOptions{LT: []byte("a")}))
	require.Empty(t, collectKeys(t, db, &RangeOptions{GT: []byte("c"), Reverse: true}))
	require.Empty(t, collectKeys(t, db, &RangeOptions{GT: []byte("a"), LT: []byte("b")}))
}

func TestOutOfBoundsIteratorLargerDB(t *testing.T) {
	db, _ := utf8DB(t)

	b := db.Batch()
	for i := 0; i < 8; i++ {
		require.NoError(t, b.Put(ctx, fmt.Sprintf("%d", i), nil))
	}
	require.NoError(t, b.Flush())

	require.Empty(t, collectKeys(t, db, &RangeOptions{GT: "8"}))
	require.Equal(t, []string{"7"}, collectKeys(t, db, &RangeOptions{GT: "6"}))
}

// a cursor past its far bound stops without reading anything more
func TestCursorStopsAtBound(t *testing.T) {
	db, _ := utf8DB(t)
	for i := 0; i < 500; i++ {
		require.NoError(t, db.Put(ctx, fmt.Sprintf("%03d", i), "v"))
	}

	c, err := db.CreateReadStream(&RangeOptions{GTE: "100", LT: "103"})
	require.NoError(t, err)
	entries, err := c.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	misses := db.s.metrics
	before := metricValue(t, misses.CacheMiss) + metricValue(t, misses.CacheHit)
	_, err = c.Next(ctx)
	require.ErrorIs(t, err, ErrNoMoreKeys)
	require.Equal(t, before, metricValue(t, misses.CacheMiss)+metricValue(t, misses.CacheHit))
}

func TestCursorLimitAndPeek(t *testing.T) {
	db, _ := utf8DB(t)
	for _, k := range []string{"d", "b", "a", "c"} {
		require.NoError(t, db.Put(ctx, k, k+k))
	}

	require.Equal(t, []string{"a", "b"}, collectKeys(t, db, &RangeOptions{Limit: 2}))
	require.Equal(t, []string{"d", "c"}, collectKeys(t, db, &RangeOptions{Limit: 2, Reverse: true}))

	e, err := db.Peek(ctx, &RangeOptions{GT: "b"})
	require.NoError(t, err)
	require.Equal(t, "c", e.Key)
	require.Equal(t, "cc", e.Value)

	e, err = db.Peek(ctx, &RangeOptions{Reverse: true})
	require.NoError(t, err)
	require.Equal(t, "d", e.Key)

	e, err = db.Peek(ctx, &RangeOptions{GT: "d"})
	require.NoError(t, err)
	require.Nil(t, e)
}

// the cursor reads the version it was created at
func TestCursorIsPinned(t *testing.T) {
	db, _ := utf8DB(t)
	require.NoError(t, db.Put(ctx, "a", "1"))
	require.NoError(t, db.Put(ctx, "c", "3"))

	c, err := db.CreateReadStream(nil)
	require.NoError(t, err)
	e, err := c.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", e.Key)

	require.NoError(t, db.Put(ctx, "b", "2"))
	rest, err := c.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "c", rest[0].Key)
}

func expectedRange(keys []string, lower, upper string, lowerIncl, upperIncl, reverse bool) []string {
	out := []string{}
	for _, k := range keys {
		if k < lower || (k == lower && !lowerIncl) {
			continue
		}
		if k > upper || (k == upper && !upperIncl) {
			continue
		}
		out = append(out, k)
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func rangeOptions(lower, upper string, lowerIncl, upperIncl, reverse bool) *RangeOptions {
	o := &RangeOptions{Reverse: reverse}
	if lowerIncl {
		o.GTE = lower
	} else {
		o.GT = lower
	}
	if upperIncl {
		o.LTE = upper
	} else {
		o.LT = upper
	}
	return o
}

func testShortIterators(t *testing.T, db *DB, put func(k string)) {
	var keys []string
	for size := 1; size <= 25; size++ {
		k := fmt.Sprintf("%02d", size-1)
		put(k)
		keys = append(keys, k)
		sort.Strings(keys)

		require.Equal(t, keys, collectKeys(t, db, nil))

		for i := 0; i < size; i++ {
			for j := i; j < size; j++ {
				for _, lowerIncl := range []bool{false, true} {
					for _, upperIncl := range []bool{false, true} {
						for _, reverse := range []bool{false, true} {
							opts := rangeOptions(keys[i], keys[j], lowerIncl, upperIncl, reverse)
							want := expectedRange(keys, keys[i], keys[j], lowerIncl, upperIncl, reverse)
							require.Equal(t, want, collectKeys(t, db, opts), "size %d range %s..%s incl %v %v reverse %v", size, keys[i], keys[j], lowerIncl, upperIncl, reverse)
						}
					}
				}
			}
		}
	}
}

func TestAllShortIterators(t *testing.T) {
	db, _ := utf8DB(t)
	testShortIterators(t, db, func(k string) {
		require.NoError(t, db.Put(ctx, k, "value-"+k))
	})
}

func TestAllShortIteratorsSub(t *testing.T) {
	db, _ := utf8DB(t)
	sub, err := db.Sub("sub", nil)
	require.NoError(t, err)
	defer sub.Close()

	testShortIterators(t, sub, func(k string) {
		// neighbours on both sides of the namespace
		require.NoError(t, db.Put(ctx, "sua"+k, "outside"))
		require.NoError(t, db.Put(ctx, "suc"+k, "outside"))
		require.NoError(t, db.Put(ctx, "a"+k, "outside"))
		require.NoError(t, sub.Put(ctx, k, "value-"+k))
	})
}

func TestNoSessionLeak(t *testing.T) {
	db, log := utf8DB(t)
	require.NoError(t, db.Put(ctx, "e1", "entry1"))
	require.NoError(t, db.Put(ctx, "e2", "entry2"))

	checkout, err := db.Checkout(2, nil)
	require.NoError(t, err)
	defer checkout.Close()

	sessions := log.Sessions()
	for i := 0; i < 10; i++ {
		require.Len(t, collectKeys(t, db, nil), 2) // sanity check
		require.Len(t, collectKeys(t, checkout, nil), 1)
		h, err := db.CreateHistoryStream(nil)
		require.NoError(t, err)
		_, err = h.Collect(ctx)
		require.NoError(t, err)
		require.NoError(t, h.Close())
	}
	require.Equal(t, sessions, log.Sessions())
}

func TestPrefixEnd(t *testing.T) {
	require.Equal(t, []byte("ab"), prefixEnd([]byte("aa")))
	require.Equal(t, []byte("b"), prefixEnd([]byte{'a', 0xff}))
	require.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00}))
	require.Nil(t, prefixEnd([]byte{0xff, 0xff}))
	require.Nil(t, prefixEnd(nil))
}
