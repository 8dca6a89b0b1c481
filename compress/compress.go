// Package compress provides block compression for persisted index payloads.
//
// Like codec selection, the compressor is recorded by name in file headers
// so readers can pick the matching implementation.
package compress

// Compressor compresses and decompresses whole payload blocks.
// Implementations must be safe for concurrent use and deterministic:
// identical input must yield identical output across runs, since index
// rebuilds are required to be byte-stable.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	// Decompress decompresses a block. The uncompressed size is known from
	// the surrounding file format and passed as a hint for allocation.
	Decompress(data []byte, uncompressedSize int) ([]byte, error)
	Name() string
}

// ByName returns a built-in compressor by its stable name.
func ByName(name string) (Compressor, bool) {
	switch name {
	case "none":
		return None{}, true
	case "zstd":
		return Zstd{}, true
	case "lz4":
		return LZ4{}, true
	default:
		return nil, false
	}
}

// Default is the compressor used for newly built index files.
var Default Compressor = Zstd{}

// None stores blocks uncompressed.
type None struct{}

// Compress returns data unchanged.
func (None) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress returns data unchanged.
func (None) Decompress(data []byte, _ int) ([]byte, error) { return data, nil }

// Name returns "none".
func (None) Name() string { return "none" }
