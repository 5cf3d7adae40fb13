package spacebee

import "reflect"

import "github.com/fxamacker/cbor/v2"
import "golang.org/x/xerrors"

// Encoding converts caller keys and values to the bytes stored in the log and back.
// Keys are ordered by their encoded bytes.
type Encoding interface {
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte) (interface{}, error)
}

// EncodingFuncs adapts a pair of plain functions to Encoding.
type EncodingFuncs struct {
	EncodeFunc func(v interface{}) ([]byte, error)
	DecodeFunc func(b []byte) (interface{}, error)
}

func (e EncodingFuncs) Encode(v interface{}) ([]byte, error) { return e.EncodeFunc(v) }
func (e EncodingFuncs) Decode(b []byte) (interface{}, error) { return e.DecodeFunc(b) }

var (
	// Binary accepts []byte or string and decodes to []byte.
	Binary Encoding = binaryEncoding{}

	// UTF8 accepts string or []byte and decodes to string.
	UTF8 Encoding = utf8Encoding{}

	// CBOR stores any value as canonical CBOR. Maps decode as map[string]interface{}.
	CBOR Encoding = cborEncoding{}
)

type binaryEncoding struct{}

func (binaryEncoding) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	return nil, xerrors.Errorf("%w: binary cannot encode %T", ErrEncoding, v)
}

func (binaryEncoding) Decode(b []byte) (interface{}, error) {
	return append([]byte{}, b...), nil
}

type utf8Encoding struct{}

func (utf8Encoding) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	}
	return nil, xerrors.Errorf("%w: utf-8 cannot encode %T", ErrEncoding, v)
}

func (utf8Encoding) Decode(b []byte) (interface{}, error) {
	return string(b), nil
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode

	mapStringInterface = reflect.TypeOf(map[string]interface{}(nil))
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	dopts := cbor.DecOptions{DefaultMapType: mapStringInterface}
	if cborDec, err = dopts.DecMode(); err != nil {
		panic(err)
	}
}

type cborEncoding struct{}

func (cborEncoding) Encode(v interface{}) ([]byte, error) {
	b, err := cborEnc.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("%w: %s", ErrEncoding, err)
	}
	return b, nil
}

func (cborEncoding) Decode(b []byte) (interface{}, error) {
	var v interface{}
	if err := cborDec.Unmarshal(b, &v); err != nil {
		return nil, xerrors.Errorf("%w: %s", ErrEncoding, err)
	}
	return v, nil
}

func encodeKey(enc Encoding, key interface{}) ([]byte, error) {
	if key == nil {
		return nil, xerrors.Errorf("%w: nil key", ErrEncoding)
	}
	return enc.Encode(key)
}

// encodeValue reports ok false for a nil value, which is stored as no value at all.
func encodeValue(enc Encoding, value interface{}) (b []byte, ok bool, err error) {
	if value == nil {
		return nil, false, nil
	}
	if b, err = enc.Encode(value); err != nil {
		return nil, false, err
	}
	return b, true, nil
}
