package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beritholmen/konkord/codec"
	"github.com/beritholmen/konkord/internal/fs"
)

const (
	// storeMagic identifies translation-memory record files ("KTM1").
	storeMagic   uint32 = 0x4B544D31
	storeVersion uint32 = 1
)

// record is the persisted payload behind the binary envelope.
type record struct {
	Segments []Segment `json:"segments"`
}

// Store is the single authoritative translation-memory record of a project.
//
// All writes are persisted synchronously before returning: a successful
// SaveSegment survives an immediate crash. The persisted form is one
// self-describing file (envelope with magic, version, codec name and a
// CRC32 over the payload), which the backup rotator copies as-is.
type Store struct {
	fsys fs.FileSystem
	path string
	c    codec.Codec

	mu       sync.RWMutex
	segments []Segment

	// writeMu serializes persisted writes so two rapid saves can never
	// interleave their file rewrites.
	writeMu sync.Mutex

	dirty atomic.Bool
}

// Open loads the store at path, or creates an empty one if the file does
// not exist. An unreadable or failing-checksum file yields a
// *CorruptStoreError; the caller decides whether to restore a backup.
//
// The codec argument selects encoding for future writes; reads always use
// the codec named in the file header.
func Open(fsys fs.FileSystem, path string, c codec.Codec) (*Store, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}

	s := &Store{fsys: fsys, path: path, c: c}

	data, err := fs.ReadFile(fsys, path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, &CorruptStoreError{Path: path, cause: err}
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, &CorruptStoreError{Path: path, cause: err}
	}

	s.segments = rec.Segments
	return s, nil
}

// Path returns the location of the persisted record.
func (s *Store) Path() string { return s.path }

// Len returns the number of segments in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Segments returns all segments in sequence order. The returned slice is
// a copy; token slices are shared but immutable once stored.
func (s *Store) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Segment returns the segment with the given sequence id.
func (s *Store) Segment(id int) (Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.indexOf(id)
	if !ok {
		return Segment{}, fmt.Errorf("%w: %d", ErrSegmentNotFound, id)
	}
	return s.segments[i], nil
}

// Files returns the distinct source file ids in first-ingestion order.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, seg := range s.segments {
		if _, ok := seen[seg.FileID]; !ok {
			seen[seg.FileID] = struct{}{}
			out = append(out, seg.FileID)
		}
	}
	return out
}

// HasFile reports whether any segment originates from fileID.
func (s *Store) HasFile(fileID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, seg := range s.segments {
		if seg.FileID == fileID {
			return true
		}
	}
	return false
}

// SaveSegment updates one segment's target text and persists the store
// before returning. The write is durable: temp file, fsync, atomic rename.
func (s *Store) SaveSegment(id int, target string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	i, ok := s.indexOf(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrSegmentNotFound, id)
	}
	prev := s.segments[i]
	s.segments[i].Target = target
	s.segments[i].UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		// Roll back the in-memory edit so memory matches disk.
		s.mu.Lock()
		s.segments[i] = prev
		s.mu.Unlock()
		return err
	}

	s.dirty.Store(true)
	return nil
}

// ReplaceFileSegments atomically replaces every segment belonging to
// fileID with segs. A file not yet in the store is appended. Sequence ids
// are reassigned contiguously across the whole store; a reader never
// observes a mix of old and new segments for one file.
//
// Re-ingestion is a full replace of the file's segment range, never a
// merge: supplying an empty segs removes the file entirely.
func (s *Store) ReplaceFileSegments(fileID string, segs []Segment) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.segments

	// Stage the new sequence: segments before the file's range, the new
	// range, then the rest. An unknown file appends at the end.
	insertAt := -1
	next := make([]Segment, 0, len(prev)+len(segs))
	for _, seg := range prev {
		if seg.FileID == fileID {
			if insertAt < 0 {
				insertAt = len(next)
			}
			continue
		}
		next = append(next, seg)
	}
	if insertAt < 0 {
		insertAt = len(next)
	}

	staged := make([]Segment, 0, len(next)+len(segs))
	staged = append(staged, next[:insertAt]...)
	for _, seg := range segs {
		seg.FileID = fileID
		if seg.UpdatedAt.IsZero() {
			seg.UpdatedAt = time.Now().UTC()
		}
		staged = append(staged, seg)
	}
	staged = append(staged, next[insertAt:]...)

	for i := range staged {
		staged[i].ID = i + 1
	}

	s.segments = staged
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		s.mu.Lock()
		s.segments = prev
		s.mu.Unlock()
		return err
	}

	s.dirty.Store(true)
	return nil
}

// Dirty reports whether the store changed since the last ClearDirty.
// The backup rotator uses this to skip redundant snapshots.
func (s *Store) Dirty() bool { return s.dirty.Load() }

// ClearDirty resets the change marker. Called by the rotator after a
// successful snapshot.
func (s *Store) ClearDirty() { s.dirty.Store(false) }

// indexOf locates a segment by id. Ids are contiguous starting at 1, so
// the common case is a direct index; a scan covers records written before
// a renumbering convention change.
func (s *Store) indexOf(id int) (int, bool) {
	if id >= 1 && id <= len(s.segments) && s.segments[id-1].ID == id {
		return id - 1, true
	}
	i := sort.Search(len(s.segments), func(i int) bool { return s.segments[i].ID >= id })
	if i < len(s.segments) && s.segments[i].ID == id {
		return i, true
	}
	return 0, false
}

func (s *Store) persist() error {
	s.mu.RLock()
	rec := record{Segments: s.segments}
	data, err := encodeRecord(s.c, rec)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(s.fsys, s.path, data, 0o644)
}

func encodeRecord(c codec.Codec, rec record) ([]byte, error) {
	payload, err := c.Marshal(rec)
	if err != nil {
		return nil, err
	}

	name := []byte(c.Name())

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, storeMagic)
	binary.Write(&buf, binary.LittleEndian, storeVersion)
	binary.Write(&buf, binary.LittleEndian, uint16(len(name)))
	buf.Write(name)
	binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(payload))
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (record, error) {
	var rec record

	r := bytes.NewReader(data)
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return rec, err
	}
	if magic != storeMagic {
		return rec, fmt.Errorf("bad magic 0x%08x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return rec, err
	}
	if version != storeVersion {
		return rec, fmt.Errorf("unsupported record version %d", version)
	}

	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return rec, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return rec, err
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return rec, fmt.Errorf("unknown codec %q", name)
	}

	var sum uint32
	var plen uint64
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return rec, err
	}
	if err := binary.Read(r, binary.LittleEndian, &plen); err != nil {
		return rec, err
	}
	if uint64(r.Len()) != plen {
		return rec, fmt.Errorf("truncated record: want %d payload bytes, have %d", plen, r.Len())
	}

	payload := data[len(data)-r.Len():]
	if got := crc32.ChecksumIEEE(payload); got != sum {
		return rec, fmt.Errorf("checksum mismatch: expected 0x%08x, got 0x%08x", sum, got)
	}

	if err := c.Unmarshal(payload, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}
