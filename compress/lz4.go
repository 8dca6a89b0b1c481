package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4 compresses blocks with LZ4 (lower ratio than zstd, faster encode).
type LZ4 struct{}

// Compress compresses data with LZ4 block compression.
//
// Incompressible input is stored raw: LZ4 signals this by writing zero
// bytes, in which case the block falls back to a copy of the input. The
// uncompressed size recorded by the caller disambiguates on read.
func (LZ4) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(data) {
		// Incompressible.
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	return buf[:n], nil
}

// Decompress decompresses an LZ4 block.
func (LZ4) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if len(data) == uncompressedSize {
		// Stored raw (incompressible at write time).
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	out := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, err
	}
	if n != uncompressedSize {
		return nil, fmt.Errorf("lz4: decompressed size mismatch: expected %d, got %d", uncompressedSize, n)
	}
	return out[:n], nil
}

// Name returns "lz4".
func (LZ4) Name() string { return "lz4" }
