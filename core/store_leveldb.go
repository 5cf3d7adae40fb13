package core

import "encoding/binary"

import "github.com/syndtr/goleveldb/leveldb"
import "github.com/syndtr/goleveldb/leveldb/opt"
import "github.com/syndtr/goleveldb/leveldb/util"
import "golang.org/x/xerrors"

var (
	levelBlockPrefix = []byte{'b'}
	levelKeyRecord   = []byte{'k'}
)

// levelStore keeps each record under 'b' followed by its big-endian seq, so
// LevelDB's key order is sequence order.
type levelStore struct {
	db      *leveldb.DB
	highest uint64
}

func newLevelDBStore(path string) (*levelStore, error) {
	if path == "" {
		return nil, xerrors.Errorf("leveldb backend requires a directory")
	}
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, xerrors.Errorf("open leveldb %s: %w", path, err)
	}
	s := &levelStore{db: db}

	it := db.NewIterator(util.BytesPrefix(levelBlockPrefix), nil)
	if it.Last() {
		k := it.Key()
		if len(k) != 1+8 {
			it.Release()
			db.Close()
			return nil, xerrors.Errorf("%w: leveldb block key %x", ErrCorruption, k)
		}
		s.highest = binary.BigEndian.Uint64(k[1:]) + 1
	}
	it.Release()
	if err := it.Error(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func blockKey(seq uint64) []byte {
	var k [9]byte
	k[0] = levelBlockPrefix[0]
	binary.BigEndian.PutUint64(k[1:], seq)
	return k[:]
}

func (s *levelStore) putBatch(start uint64, blocks [][]byte) error {
	batch := new(leveldb.Batch)
	for i, b := range blocks {
		batch.Put(blockKey(start+uint64(i)), b)
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return err
	}
	if end := start + uint64(len(blocks)); end > s.highest {
		s.highest = end
	}
	return nil
}

func (s *levelStore) get(seq uint64) ([]byte, bool, error) {
	data, err := s.db.Get(blockKey(seq), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

func (s *levelStore) has(seq uint64) bool {
	ok, err := s.db.Has(blockKey(seq), nil)
	return err == nil && ok
}

func (s *levelStore) length() uint64 {
	return s.highest
}

func (s *levelStore) loadKey() ([]byte, error) {
	key, err := s.db.Get(levelKeyRecord, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return key, err
}

func (s *levelStore) storeKey(key []byte) error {
	return s.db.Put(levelKeyRecord, key, &opt.WriteOptions{Sync: true})
}

func (s *levelStore) close() error {
	return s.db.Close()
}
