package core

import "os"
import "fmt"
import "path/filepath"
import "encoding/binary"

import "github.com/golang/snappy"
import "golang.org/x/crypto/blake2s"
import "golang.org/x/xerrors"

const (
	MAX_FILE_SIZE  = 2 * 1024 * 1024 * 1024 // 2GB since we use split files to store data chunks
	CHECKSUM_SIZE  = 16                     // truncated blake2s-256 of the frame
	KEY_FILE_NAME  = "core.key"
	frameSnappy    = 1 << 0
	frameBatchEnd  = 1 << 1 // set on the last frame of every batch
	maxFrameHeader = binary.MaxVarintLen64 + 1 + binary.MaxVarintLen32
)

// all file operations will go through this
type file struct {
	diskfile *os.File
	size     uint32
}

// location of a frame inside the split files
type location struct {
	findex, fpos uint32
	length       uint32
}

// diskStore keeps records as checksummed frames appended to split data files.
// each file is upto 2 GB in size, this limit has been placed to support FAT32 which restricts files to 4GB
//
// frame layout: [seq uvarint][flags byte][payload length uvarint][payload][checksum]
// a batch is only visible once its last frame, the one carrying frameBatchEnd, is on disk
type diskStore struct {
	base_directory string
	compress       bool

	files  map[uint32]*file
	findex uint32

	index   map[uint64]location
	highest uint64 // one past the highest stored seq
}

func newDiskStore(basepath string, compress bool) (*diskStore, error) {
	if basepath == "" {
		return nil, xerrors.Errorf("disk backend requires a directory")
	}
	if err := os.MkdirAll(basepath, 0700); err != nil {
		return nil, xerrors.Errorf("directory creation err %s  dirpath %s", err, basepath)
	}
	s := &diskStore{base_directory: basepath, compress: compress, files: map[uint32]*file{}, index: map[uint64]location{}}
	if err := s.loadfiles(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// 4 billion files  each of 2 GB seems to be enough for quite some time, we will run out of handles much earlier
func (s *diskStore) uint_to_filename(n uint32) string {
	d, c, b, a := n>>24, ((n >> 16) & 0xff), ((n >> 8) & 0xff), n
	return filepath.Join(s.base_directory, fmt.Sprintf("%d", d), fmt.Sprintf("%d", c), fmt.Sprintf("%d", b), fmt.Sprintf("%d", a)+".dfs")
}

// load all files from the disk and rebuild the frame index
func (s *diskStore) loadfiles() error {
	for i := uint32(0); i < (4*1024*1024*1024)-1; i++ {
		filename := s.uint_to_filename(i)

		finfo, err := os.Stat(filename)
		if os.IsNotExist(err) {
			break
		}
		if finfo != nil && finfo.IsDir() {
			return xerrors.Errorf("expected file but found directory at path %s", filename)
		}

		file_handle, err := os.OpenFile(filename, os.O_RDWR, 0600)
		if err != nil {
			return xerrors.Errorf("%s: filename:%s", err, filename)
		}
		s.files[i] = &file{diskfile: file_handle, size: uint32(finfo.Size())}
		s.findex = i

		if err := s.scanfile(i); err != nil {
			return err
		}
	}

	if len(s.files) == 0 {
		return s.create_first_file()
	}
	return nil
}

// scanfile indexes every complete batch of a data file, an incomplete batch at the tail is cut off
func (s *diskStore) scanfile(findex uint32) error {
	cfile := s.files[findex]
	buf, err := os.ReadFile(s.uint_to_filename(findex))
	if err != nil {
		return xerrors.Errorf("%w: index %d", err, findex)
	}

	pos := uint32(0)
	if findex == 0 {
		pos = 1 // first byte marks 0,0 as invalid
	}
	committed := pos

	type pendingFrame struct {
		seq uint64
		loc location
	}
	var pending []pendingFrame
	for pos < uint32(len(buf)) {
		seq, flags, length, ok := parseFrameHeader(buf[pos:])
		if !ok {
			break
		}
		pending = append(pending, pendingFrame{seq: seq, loc: location{findex: findex, fpos: pos, length: length}})
		pos += length
		if flags&frameBatchEnd == 0 {
			continue
		}

		for _, f := range pending {
			s.index[f.seq] = f.loc
			if f.seq+1 > s.highest {
				s.highest = f.seq + 1
			}
		}
		pending = pending[:0]
		committed = pos
	}

	if committed < cfile.size {
		if err := cfile.diskfile.Truncate(int64(committed)); err != nil {
			return err
		}
		cfile.size = committed
	}
	return nil
}

func (s *diskStore) create_first_file() error {
	err := os.MkdirAll(filepath.Dir(s.uint_to_filename(0)), 0700)
	if err != nil {
		return xerrors.Errorf("directory creation err %s  filename %s", err, s.uint_to_filename(0))
	}
	file_handle, err := os.OpenFile(s.uint_to_filename(0), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return xerrors.Errorf("%w:  index %d, filename %s", err, 0, s.uint_to_filename(0))
	}
	if _, err = file_handle.Write([]byte{0x0}); err != nil { // write a byte so as mark 0,0 as invalid
		file_handle.Close()
		return err
	}
	s.findex = 0
	s.files[s.findex] = &file{diskfile: file_handle, size: uint32(1)}
	return nil
}

// encode a single frame, last marks the final frame of a batch
func (s *diskStore) frame(seq uint64, data []byte, last bool) []byte {
	var flags byte
	if last {
		flags |= frameBatchEnd
	}
	payload := data
	if s.compress {
		if compressed := snappy.Encode(nil, data); len(compressed) < len(data) {
			payload = compressed
			flags |= frameSnappy
		}
	}

	buf := make([]byte, 0, maxFrameHeader+len(payload)+CHECKSUM_SIZE)
	buf = binary.AppendUvarint(buf, seq)
	buf = append(buf, flags)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	sum := blake2s.Sum256(buf)
	return append(buf, sum[:CHECKSUM_SIZE]...)
}

// parseFrameHeader returns the seq, the flags and the total frame length, if a complete frame is present
func parseFrameHeader(buf []byte) (seq uint64, flags byte, length uint32, ok bool) {
	seq, n := binary.Uvarint(buf)
	if n <= 0 || n >= len(buf) {
		return 0, 0, 0, false
	}
	flags = buf[n]
	done := n + 1
	plen, n := binary.Uvarint(buf[done:])
	if n <= 0 {
		return 0, 0, 0, false
	}
	done += n
	total := uint64(done) + plen + CHECKSUM_SIZE
	if total > uint64(len(buf)) || total > MAX_FILE_SIZE {
		return 0, 0, 0, false
	}
	return seq, flags, uint32(total), true
}

// decodeFrame verifies the checksum and returns the record stored in the frame
func decodeFrame(want uint64, buf []byte) ([]byte, error) {
	if len(buf) < CHECKSUM_SIZE {
		return nil, xerrors.Errorf("%w: short frame for seq %d", ErrCorruption, want)
	}
	body, checksum := buf[:len(buf)-CHECKSUM_SIZE], buf[len(buf)-CHECKSUM_SIZE:]
	sum := blake2s.Sum256(body)
	if string(sum[:CHECKSUM_SIZE]) != string(checksum) {
		return nil, xerrors.Errorf("%w: checksum mismatch for seq %d", ErrCorruption, want)
	}

	seq, n := binary.Uvarint(body)
	if n <= 0 || n >= len(body) || seq != want {
		return nil, xerrors.Errorf("%w: frame holds seq %d, expected %d", ErrCorruption, seq, want)
	}
	flags := body[n]
	done := n + 1
	plen, n := binary.Uvarint(body[done:])
	if n <= 0 {
		return nil, xerrors.Errorf("%w: bad payload length for seq %d", ErrCorruption, want)
	}
	done += n
	payload := body[done:]
	if uint64(len(payload)) != plen {
		return nil, xerrors.Errorf("%w: bad payload length for seq %d", ErrCorruption, want)
	}

	if flags&frameSnappy != 0 {
		data, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, xerrors.Errorf("%w: seq %d: %s", ErrCorruption, want, err)
		}
		if data == nil {
			data = []byte{}
		}
		return data, nil
	}
	return append([]byte{}, payload...), nil
}

// all frames of a batch go to a single file with a single write
// this function is single threaded
func (s *diskStore) putBatch(start uint64, blocks [][]byte) error {
	var buf []byte
	lengths := make([]uint32, len(blocks))
	for i, b := range blocks {
		f := s.frame(start+uint64(i), b, i == len(blocks)-1)
		lengths[i] = uint32(len(f))
		buf = append(buf, f...)
	}
	if uint64(len(buf)) > MAX_FILE_SIZE {
		return xerrors.Errorf("batch of %d bytes exceeds the data file size limit", len(buf))
	}

	cfile, ok := s.files[s.findex]
	if !ok {
		return xerrors.Errorf("invalid file structures")
	}

	// check whether we need to open a new file or overflowing
	if uint64(cfile.size)+uint64(len(buf)) > MAX_FILE_SIZE {
		next := s.findex + 1
		if err := os.MkdirAll(filepath.Dir(s.uint_to_filename(next)), 0700); err != nil {
			return xerrors.Errorf("directory creation err %s  filename %s", err, s.uint_to_filename(next))
		}
		file_handle, err := os.OpenFile(s.uint_to_filename(next), os.O_CREATE|os.O_RDWR, 0600)
		if err != nil {
			return xerrors.Errorf("%w:  index %d, filename %s", err, next, s.uint_to_filename(next))
		}
		s.findex = next
		s.files[s.findex] = &file{diskfile: file_handle}
		cfile = s.files[s.findex]
	}

	pos := cfile.size
	if _, err := cfile.diskfile.WriteAt(buf, int64(pos)); err != nil {
		cfile.diskfile.Truncate(int64(pos)) // never leave a torn batch behind
		return err
	}
	cfile.size += uint32(len(buf))

	for i, l := range lengths {
		seq := start + uint64(i)
		s.index[seq] = location{findex: s.findex, fpos: pos, length: l}
		pos += l
		if seq+1 > s.highest {
			s.highest = seq + 1
		}
	}
	return nil
}

func (s *diskStore) get(seq uint64) ([]byte, bool, error) {
	loc, ok := s.index[seq]
	if !ok {
		return nil, false, nil
	}
	cfile, ok := s.files[loc.findex]
	if !ok {
		return nil, false, xerrors.Errorf("findex not available")
	}
	buf := make([]byte, loc.length)
	if _, err := cfile.diskfile.ReadAt(buf, int64(loc.fpos)); err != nil {
		return nil, false, xerrors.Errorf("%w: seq %d findex %d fpos %d", err, seq, loc.findex, loc.fpos)
	}
	data, err := decodeFrame(seq, buf)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *diskStore) has(seq uint64) bool {
	_, ok := s.index[seq]
	return ok
}

func (s *diskStore) length() uint64 {
	return s.highest
}

func (s *diskStore) loadKey() ([]byte, error) {
	key, err := os.ReadFile(filepath.Join(s.base_directory, KEY_FILE_NAME))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return key, err
}

func (s *diskStore) storeKey(key []byte) error {
	return os.WriteFile(filepath.Join(s.base_directory, KEY_FILE_NAME), key, 0600)
}

func (s *diskStore) close() error {
	var err error
	for _, f := range s.files {
		if cerr := f.diskfile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.files = map[uint32]*file{}
	return err
}
