package core

// blockStore is the storage backend of a core. Callers serialise access.
type blockStore interface {
	// putBatch writes blocks at start, start+1, ... and either stores all of them or none.
	putBatch(start uint64, blocks [][]byte) error
	get(seq uint64) ([]byte, bool, error)
	has(seq uint64) bool
	// length is one past the highest stored sequence number.
	length() uint64
	loadKey() ([]byte, error)
	storeKey(key []byte) error
	close() error
}

type memoryStore struct {
	blocks [][]byte // nil entries are holes left by sparse replication
	key    []byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (m *memoryStore) putBatch(start uint64, blocks [][]byte) error {
	end := start + uint64(len(blocks))
	for uint64(len(m.blocks)) < end {
		m.blocks = append(m.blocks, nil)
	}
	for i, b := range blocks {
		buf := make([]byte, len(b))
		copy(buf, b)
		m.blocks[start+uint64(i)] = buf
	}
	return nil
}

func (m *memoryStore) get(seq uint64) ([]byte, bool, error) {
	if seq >= uint64(len(m.blocks)) || m.blocks[seq] == nil {
		return nil, false, nil
	}
	return m.blocks[seq], true, nil
}

func (m *memoryStore) has(seq uint64) bool {
	return seq < uint64(len(m.blocks)) && m.blocks[seq] != nil
}

func (m *memoryStore) length() uint64 {
	return uint64(len(m.blocks))
}

func (m *memoryStore) loadKey() ([]byte, error) {
	return m.key, nil
}

func (m *memoryStore) storeKey(key []byte) error {
	m.key = append([]byte(nil), key...)
	return nil
}

func (m *memoryStore) close() error {
	m.blocks = nil
	return nil
}
