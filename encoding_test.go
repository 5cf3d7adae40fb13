package spacebee

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

var jsonEncoding = EncodingFuncs{
	EncodeFunc: func(v interface{}) ([]byte, error) { return json.Marshal(v) },
	DecodeFunc: func(b []byte) (interface{}, error) {
		var v interface{}
		err := json.Unmarshal(b, &v)
		return v, err
	},
}

func TestCustomEncoding(t *testing.T) {
	db, _ := newTestDB(t, &Options{ValueEncoding: jsonEncoding})

	require.NoError(t, db.Put(ctx, "hi", map[string]interface{}{"a": 1.0}))
	e, err := db.Get(ctx, "hi")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), e.Key)
	require.Equal(t, map[string]interface{}{"a": 1.0}, e.Value)

	e, err = db.Get(ctx, "hi", WithValueEncoding(UTF8))
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, e.Value)
}

func TestPerOperationEncoding(t *testing.T) {
	db, _ := newTestDB(t, nil)
	require.NoError(t, db.Put(ctx, "k", "v", WithKeyEncoding(UTF8), WithValueEncoding(UTF8)))

	e, err := db.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, &Entry{Seq: 1, Key: []byte("k"), Value: []byte("v")}, e)

	e, err = db.Get(ctx, []byte("k"), WithKeyEncoding(UTF8), WithValueEncoding(UTF8))
	require.NoError(t, err)
	require.Equal(t, &Entry{Seq: 1, Key: "k", Value: "v"}, e)
}

func TestCustomKeyEncodingInRange(t *testing.T) {
	db, _ := newTestDB(t, &Options{KeyEncoding: CBOR, ValueEncoding: UTF8})
	for i := uint64(0); i < 20; i++ {
		require.NoError(t, db.Put(ctx, i, "v"))
	}

	c, err := db.CreateReadStream(&RangeOptions{GTE: uint64(5), LT: uint64(9)})
	require.NoError(t, err)
	entries, err := c.Collect(ctx)
	require.NoError(t, err)

	var keys []interface{}
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	require.Equal(t, []interface{}{uint64(5), uint64(6), uint64(7), uint64(8)}, keys)
}

func TestCBOREncoding(t *testing.T) {
	db, _ := newTestDB(t, &Options{ValueEncoding: CBOR})
	v := map[string]interface{}{"name": "bee", "tags": []interface{}{"a", "b"}}
	require.NoError(t, db.Put(ctx, "k", v))

	e, err := db.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, v, e.Value)

	// canonical encoding makes equal values byte identical
	a, err := CBOR.Encode(map[string]interface{}{"x": 1, "y": 2})
	require.NoError(t, err)
	b, err := CBOR.Encode(map[string]interface{}{"y": 2, "x": 1})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBinaryEncoding(t *testing.T) {
	b, err := Binary.Encode("str")
	require.NoError(t, err)
	require.Equal(t, []byte("str"), b)

	v, err := Binary.Decode(b)
	require.NoError(t, err)
	b[0] = 'x'
	require.Equal(t, []byte("str"), v) // decode copies

	_, err = Binary.Encode(12)
	require.ErrorIs(t, err, ErrEncoding)
	_, err = UTF8.Encode(12.5)
	require.ErrorIs(t, err, ErrEncoding)
}

func TestNilKeyAndValue(t *testing.T) {
	db, _ := newTestDB(t, nil)
	require.ErrorIs(t, db.Put(ctx, nil, "v"), ErrEncoding)
	_, err := db.Get(ctx, nil)
	require.ErrorIs(t, err, ErrEncoding)

	// a nil value is stored as no value
	require.NoError(t, db.Put(ctx, "empty", nil))
	e, err := db.Get(ctx, "empty")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Nil(t, e.Value)

	require.NoError(t, db.Put(ctx, "zero", []byte{}))
	e, err = db.Get(ctx, "zero")
	require.NoError(t, err)
	require.Equal(t, []byte{}, e.Value)
}
