package spacebee

import "encoding/binary"

import "golang.org/x/xerrors"

// record flags
const (
	flagEntry byte = 1 << iota
	flagValue
	flagDeleted
)

// pointer addresses one level of one node record. seq 0 is the header record
// and never holds levels, so the zero pointer is null.
type pointer struct {
	seq   uint64
	index uint32
}

func (p pointer) isNull() bool {
	return p.seq == 0
}

// level is one node of the tree as stored inside a record.
// the key and value live in the record at keySeq.
type level struct {
	keySeq      uint64
	rank        uint8
	left, right pointer
}

type entry struct {
	key      []byte
	value    []byte
	hasValue bool
	deleted  bool // tombstone written by a delete, never referenced by a level
}

// node is a decoded node record, it is immutable once built
//
//	[version][flags][keylen uvarint][key][valuelen uvarint][value][level count uvarint]
//	per level: [keyseq uvarint][rank byte][left ptr][right ptr]
//	ptr: [seq uvarint] followed by [index uvarint] only if seq != 0
type node struct {
	seq    uint64
	entry  *entry
	levels []level
}

func (n *node) size() int {
	s := 2 + binary.MaxVarintLen64 + len(n.levels)*(1+5*binary.MaxVarintLen64)
	if n.entry != nil {
		s += 2*binary.MaxVarintLen64 + len(n.entry.key) + len(n.entry.value)
	}
	return s
}

func (n *node) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, n.size())
	buf = append(buf, NODE_VERSION)

	var flags byte
	if e := n.entry; e != nil {
		flags |= flagEntry
		if e.hasValue {
			flags |= flagValue
		}
		if e.deleted {
			flags |= flagDeleted
		}
	}
	buf = append(buf, flags)

	if e := n.entry; e != nil {
		buf = binary.AppendUvarint(buf, uint64(len(e.key)))
		buf = append(buf, e.key...)
		if e.hasValue {
			buf = binary.AppendUvarint(buf, uint64(len(e.value)))
			buf = append(buf, e.value...)
		}
	}

	buf = binary.AppendUvarint(buf, uint64(len(n.levels)))
	for _, l := range n.levels {
		buf = binary.AppendUvarint(buf, l.keySeq)
		buf = append(buf, l.rank)
		buf = appendPointer(buf, l.left)
		buf = appendPointer(buf, l.right)
	}
	return buf, nil
}

func appendPointer(buf []byte, p pointer) []byte {
	buf = binary.AppendUvarint(buf, p.seq)
	if p.seq != 0 {
		buf = binary.AppendUvarint(buf, uint64(p.index))
	}
	return buf
}

// record reader, the first failure sticks
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = xerrors.New("truncated varint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) byte() byte {
	if d.err != nil {
		return 0
	}
	if len(d.buf) < 1 {
		d.err = xerrors.New("truncated record")
		return 0
	}
	b := d.buf[0]
	d.buf = d.buf[1:]
	return b
}

func (d *decoder) bytes() []byte {
	l := d.uvarint()
	if d.err != nil {
		return nil
	}
	if l > uint64(len(d.buf)) {
		d.err = xerrors.Errorf("field of %d bytes overruns record", l)
		return nil
	}
	b := make([]byte, l)
	copy(b, d.buf[:l])
	d.buf = d.buf[l:]
	return b
}

func (d *decoder) pointer() pointer {
	p := pointer{seq: d.uvarint()}
	if p.seq != 0 {
		idx := d.uvarint()
		if idx > uint64(^uint32(0)) {
			d.err = xerrors.Errorf("level index %d too large", idx)
		}
		p.index = uint32(idx)
	}
	return p
}

// decodeNode parses record seq and checks that every pointer leads strictly
// towards earlier records (or later levels of the same record), so any descent terminates.
func decodeNode(seq uint64, buf []byte) (*node, error) {
	d := &decoder{buf: buf}
	if v := d.byte(); d.err == nil && v != NODE_VERSION {
		return nil, xerrors.Errorf("%w: seq %d has version %d", ErrMalformedNode, seq, v)
	}
	flags := d.byte()

	n := &node{seq: seq}
	if flags&flagEntry != 0 {
		e := &entry{deleted: flags&flagDeleted != 0, hasValue: flags&flagValue != 0}
		e.key = d.bytes()
		if e.hasValue {
			e.value = d.bytes()
		}
		n.entry = e
	}

	count := d.uvarint()
	if d.err == nil && count > uint64(len(d.buf)) { // every level takes at least 4 bytes
		return nil, xerrors.Errorf("%w: seq %d claims %d levels", ErrMalformedNode, seq, count)
	}
	if count > 0 {
		n.levels = make([]level, count)
	}
	for i := range n.levels {
		l := &n.levels[i]
		l.keySeq = d.uvarint()
		l.rank = d.byte()
		l.left = d.pointer()
		l.right = d.pointer()
		if d.err != nil {
			break
		}
		if l.keySeq == 0 || l.keySeq > seq || l.rank == 0 || l.rank > MAX_RANK {
			return nil, xerrors.Errorf("%w: seq %d level %d key seq %d rank %d", ErrMalformedNode, seq, i, l.keySeq, l.rank)
		}
		if !descends(seq, uint32(i), l.left) || !descends(seq, uint32(i), l.right) {
			return nil, xerrors.Errorf("%w: seq %d level %d points backwards", ErrMalformedNode, seq, i)
		}
	}

	if d.err == nil && len(d.buf) != 0 {
		d.err = xerrors.Errorf("%d trailing bytes", len(d.buf))
	}
	if d.err != nil {
		return nil, xerrors.Errorf("%w: seq %d: %s", ErrMalformedNode, seq, d.err)
	}
	return n, nil
}

func descends(seq uint64, index uint32, p pointer) bool {
	return p.isNull() || p.seq < seq || (p.seq == seq && p.index > index)
}
