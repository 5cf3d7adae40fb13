package spacebee

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deroproject/spacebee/core"
)

func TestBatchReadsOwnWrites(t *testing.T) {
	db, log := utf8DB(t)
	require.NoError(t, db.Put(ctx, "a", "1"))

	b := db.Batch()
	require.NoError(t, b.Put(ctx, "b", "2"))
	require.NoError(t, b.Put(ctx, "a", "changed"))
	require.NoError(t, b.Del(ctx, "missing"))

	e, err := b.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "2", e.Value)
	e, err = b.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "changed", e.Value)

	// nothing reached the log yet
	require.Equal(t, uint64(2), log.Length())
	e, err = db.Get(ctx, "b")
	require.NoError(t, err)
	require.Nil(t, e)

	require.NoError(t, b.Del(ctx, "b"))
	e, err = b.Get(ctx, "b")
	require.NoError(t, err)
	require.Nil(t, e)

	require.NoError(t, b.Flush())
	require.Equal(t, uint64(5), log.Length()) // three records in one append

	e, err = db.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, &Entry{Seq: 3, Key: "a", Value: "changed"}, e)
	e, err = db.Get(ctx, "b")
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestBatchDestroy(t *testing.T) {
	db, log := utf8DB(t)

	b := db.Batch()
	require.NoError(t, b.Put(ctx, "a", "1"))
	b.Destroy()
	require.Equal(t, uint64(0), log.Length())

	// the lock was released
	require.NoError(t, db.Put(ctx, "b", "2"))
	require.Equal(t, []string{"b"}, collectKeys(t, db, nil))
}

// callers may reuse their key and value buffers as soon as a call returns
func TestBatchCopiesCallerBuffers(t *testing.T) {
	db, log := newTestDB(t, nil)
	key, value := []byte("hello"), []byte("world")

	b := db.Batch()
	require.NoError(t, b.Put(ctx, key, value))
	copy(key, "zzzzz")
	copy(value, "XXXXX")
	require.NoError(t, b.Put(ctx, key, []byte("other")))

	e, err := b.Get(ctx, []byte("hello"))
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, []byte("world"), e.Value)
	require.NoError(t, b.Flush())

	key = []byte("gone!")
	require.NoError(t, db.Put(ctx, key, []byte("v")))
	b = db.Batch()
	require.NoError(t, b.Del(ctx, key))
	copy(key, "aaaaa")
	require.NoError(t, b.Flush())

	for _, view := range []*DB{db, mustNew(t, log)} {
		e, err := view.Get(ctx, []byte("hello"))
		require.NoError(t, err)
		require.NotNil(t, e)
		require.Equal(t, []byte("world"), e.Value)

		e, err = view.Get(ctx, []byte("gone!"))
		require.NoError(t, err)
		require.Nil(t, e)
		require.Equal(t, []string{"hello", "zzzzz"}, checkInvariants(t, view))
	}
}

func mustNew(t testing.TB, log *core.Core) *DB {
	db, err := New(log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmptyBatchWritesNothing(t *testing.T) {
	db, log := utf8DB(t)
	b := db.Batch()
	require.NoError(t, b.Del(ctx, "nothing"))
	require.NoError(t, b.Flush())
	require.Equal(t, uint64(0), log.Length())

	require.NoError(t, db.Batch().Flush())
	require.Equal(t, uint64(0), log.Length())
}

func TestBatchLockHonoursContext(t *testing.T) {
	db, _ := utf8DB(t)

	held := db.Batch()
	require.NoError(t, held.Put(ctx, "a", "1"))

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := db.Put(cctx, "b", "2")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Flush())
	require.NoError(t, db.Put(ctx, "b", "2"))
}

func TestConcurrentBatchesAreSerialized(t *testing.T) {
	db, log := utf8DB(t)
	sub, err := db.Sub("s", nil)
	require.NoError(t, err)
	defer sub.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		view := db
		if w%2 == 1 {
			view = sub
		}
		wg.Add(1)
		go func(w int, view *DB) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				b := view.Batch()
				require.NoError(t, b.Put(ctx, fmt.Sprintf("w%d-%d-a", w, i), "v"))
				require.NoError(t, b.Put(ctx, fmt.Sprintf("w%d-%d-b", w, i), "v"))
				require.NoError(t, b.Flush())
			}
		}(w, view)
	}
	wg.Wait()

	require.Equal(t, uint64(1+8*20*2), log.Length())
	require.Len(t, collectKeys(t, db, nil), 8*20*2)
	require.Len(t, collectKeys(t, sub, nil), 4*20*2)
	checkInvariants(t, db)
}

func TestFlushDetectsForeignAppend(t *testing.T) {
	db, log := utf8DB(t)
	require.NoError(t, db.Put(ctx, "a", "1"))

	b := db.Batch()
	require.NoError(t, b.Put(ctx, "b", "2"))
	_, err := log.Append([]byte("not through the index"))
	require.NoError(t, err)

	require.ErrorIs(t, b.Flush(), ErrConcurrentAppend)
	require.Equal(t, uint64(3), log.Length()) // the batch was dropped

	// the lock was released, but the foreign record now poisons the index
	require.ErrorIs(t, db.Put(ctx, "c", "3"), ErrMalformedNode)
}

func TestBatchRefusesForeignLog(t *testing.T) {
	db, log := utf8DB(t)
	_, err := log.Append([]byte("something else"))
	require.NoError(t, err)

	require.ErrorIs(t, db.Put(ctx, "a", "1"), ErrInvalidHeader)
	require.Equal(t, uint64(1), log.Length())
}
