package concordance

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// On-disk index layout, little-endian throughout:
//
//	header:  magic, version, suppression fingerprint, codec name,
//	         compressor name, entry count, TOC offset/length/CRC32
//	blocks:  one compressed codec-encoded payload per lemma, back to back
//	TOC:     codec-encoded table at the recorded offset: sorted lemma ->
//	         (absolute offset, compressed/uncompressed length, count),
//	         plus the sorted wordform -> lemmas table
//
// The TOC and header are read eagerly on open; blocks are fetched lazily
// by offset. Entry offsets are absolute so a reader never needs to scan.
const (
	// indexMagic identifies concordance index files ("KCX1").
	indexMagic   uint32 = 0x4B435831
	indexVersion uint32 = 1
)

type header struct {
	version     uint32
	fingerprint uint64
	codecName   string
	compName    string
	entryCount  uint32
	tocOffset   uint64
	tocLen      uint64
	tocCRC      uint32
}

func (h *header) size() int {
	return 4 + 4 + 8 + 2 + len(h.codecName) + 2 + len(h.compName) + 4 + 8 + 8 + 4
}

func (h *header) encode(w io.Writer) error {
	for _, v := range []any{
		indexMagic,
		h.version,
		h.fingerprint,
		uint16(len(h.codecName)), []byte(h.codecName),
		uint16(len(h.compName)), []byte(h.compName),
		h.entryCount,
		h.tocOffset,
		h.tocLen,
		h.tocCRC,
	} {
		if b, ok := v.([]byte); ok {
			if _, err := w.Write(b); err != nil {
				return err
			}
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func decodeHeader(data []byte) (*header, error) {
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("bad index magic 0x%08x", magic)
	}

	h := &header{}
	if err := binary.Read(r, binary.LittleEndian, &h.version); err != nil {
		return nil, err
	}
	if h.version != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", h.version)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.fingerprint); err != nil {
		return nil, err
	}

	readString := func() (string, error) {
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
		return string(b), nil
	}

	var err error
	if h.codecName, err = readString(); err != nil {
		return nil, err
	}
	if h.compName, err = readString(); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.entryCount); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.tocOffset); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.tocLen); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.tocCRC); err != nil {
		return nil, err
	}
	return h, nil
}

// tocEntry locates one lemma's payload block.
type tocEntry struct {
	Lemma  string `json:"lemma"`
	Offset uint64 `json:"offset"`
	CLen   uint64 `json:"clen"`
	ULen   uint64 `json:"ulen"`
	Count  uint32 `json:"count"`
}

// wordformEntry maps one surface form to the lemmas sharing it.
type wordformEntry struct {
	Form   string   `json:"form"`
	Lemmas []string `json:"lemmas"`
}

// toc is the table of contents. Slices, not maps, so codec output is
// deterministic.
type toc struct {
	Entries   []tocEntry      `json:"entries"`
	Wordforms []wordformEntry `json:"wordforms"`
}

// entryPayload is the lazily loaded per-lemma block.
type entryPayload struct {
	Occurrences []Occurrence `json:"occurrences"`
	Wordforms   []string     `json:"wordforms"`
	// Segments is a serialized roaring bitmap of segment ids.
	Segments []byte `json:"segments,omitempty"`
}

func checksum(data []byte) uint32 { return crc32.ChecksumIEEE(data) }
