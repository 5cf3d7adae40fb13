package spacebee

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func historyKeys(t testing.TB, db *DB, opts *HistoryOptions) []string {
	h, err := db.CreateHistoryStream(opts)
	require.NoError(t, err)
	defer h.Close()
	entries, err := h.Collect(ctx)
	require.NoError(t, err)
	keys := []string{}
	for _, e := range entries {
		keys = append(keys, e.Type.String()+":"+e.Key.(string))
	}
	return keys
}

func TestHistoryStreamReverse(t *testing.T) {
	db, _ := utf8DB(t)
	require.NoError(t, db.Put(ctx, "a", "1"))
	require.NoError(t, db.Put(ctx, "b", "2"))
	require.NoError(t, db.Put(ctx, "c", "3"))

	h, err := db.CreateHistoryStream(&HistoryOptions{Reverse: true})
	require.NoError(t, err)
	entries, err := h.Collect(ctx)
	require.NoError(t, err)

	var keys string
	for _, e := range entries {
		keys += e.Key.(string)
	}
	require.Equal(t, "cba", keys)
}

func TestHistoryStream(t *testing.T) {
	db, _ := utf8DB(t)
	require.NoError(t, db.Put(ctx, "a", "1"))
	require.NoError(t, db.Put(ctx, "b", "2"))
	require.NoError(t, db.Del(ctx, "a"))
	require.NoError(t, db.Del(ctx, "a")) // appends nothing
	require.NoError(t, db.Put(ctx, "a", "3"))

	require.Equal(t, []string{"put:a", "put:b", "del:a", "put:a"}, historyKeys(t, db, nil))
	require.Equal(t, []string{"put:b", "del:a"}, historyKeys(t, db, &HistoryOptions{Start: 2, End: 4}))
	require.Equal(t, []string{"put:a", "del:a"}, historyKeys(t, db, &HistoryOptions{Reverse: true, Limit: 2}))
	require.Equal(t, []string{"del:a", "put:b"}, historyKeys(t, db, &HistoryOptions{Start: 2, End: 4, Reverse: true}))

	h, err := db.CreateHistoryStream(&HistoryOptions{Start: 3, End: 4})
	require.NoError(t, err)
	e, err := h.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, HistoryDel, e.Type)
	require.Equal(t, uint64(3), e.Seq)
	require.Nil(t, e.Value)
}

func TestHistoryStreamSub(t *testing.T) {
	db, _ := utf8DB(t)
	sub, err := db.Sub("s", nil)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, db.Put(ctx, "a", "1"))
	require.NoError(t, sub.Put(ctx, "x", "2"))
	require.NoError(t, db.Put(ctx, "b", "3"))

	require.Equal(t, []string{"put:x"}, historyKeys(t, sub, nil))
}

func TestHistoryStreamOnCheckout(t *testing.T) {
	db, _ := utf8DB(t)
	require.NoError(t, db.Put(ctx, "a", "1"))
	require.NoError(t, db.Put(ctx, "b", "2"))
	snap, err := db.Snapshot(nil)
	require.NoError(t, err)
	defer snap.Close()
	require.NoError(t, db.Put(ctx, "c", "3"))

	require.Equal(t, []string{"put:a", "put:b"}, historyKeys(t, snap, &HistoryOptions{Live: true}))
}

func TestHistoryStreamLive(t *testing.T) {
	db, _ := utf8DB(t)
	require.NoError(t, db.Put(ctx, "a", "1"))

	h, err := db.CreateHistoryStream(&HistoryOptions{Live: true})
	require.NoError(t, err)
	defer h.Close()

	e, err := h.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", e.Key)

	go func() {
		time.Sleep(10 * time.Millisecond)
		db.Put(ctx, "b", "2")
	}()
	e, err = h.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", e.Key)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = h.Next(cctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
