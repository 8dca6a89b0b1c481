package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Encoder/decoder pools: zstd contexts are expensive to construct and safe
// to reuse between blocks.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	// Single-goroutine encoding keeps output byte-stable for identical input,
	// which the index rebuild idempotence guarantee depends on.
	enc, _ := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Zstd compresses blocks with zstandard (good ratio, fast decode).
type Zstd struct{}

// Compress compresses data with zstd.
func (Zstd) Compress(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil), nil
}

// Decompress decompresses a zstd block.
func (Zstd) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	dec := getZstdDecoder()
	defer putZstdDecoder(dec)

	out, err := dec.DecodeAll(data, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, err
	}
	if len(out) != uncompressedSize {
		return nil, fmt.Errorf("zstd: decompressed size mismatch: expected %d, got %d", uncompressedSize, len(out))
	}
	return out, nil
}

// Name returns "zstd".
func (Zstd) Name() string { return "zstd" }
