package compression

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrZstdCorrupted is returned for malformed Zstandard tiles.
var ErrZstdCorrupted = fmt.Errorf("%w (zstd)", ErrCorrupted)

// EncodeAll and DecodeAll are safe for concurrent use, so one encoder and one
// decoder serve every tile.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

// ZstdCompress compresses src into a single Zstandard frame.
func ZstdCompress(src []byte) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

// ZstdDecompressTo decompresses src into dst, which must be exactly the
// decompressed size.
func ZstdDecompressTo(dst, src []byte) error {
	dec, err := zstdDecoder()
	if err != nil {
		return err
	}
	out, err := dec.DecodeAll(src, dst[:0])
	if err != nil || len(out) != len(dst) {
		return ErrZstdCorrupted
	}
	// No-op unless DecodeAll had to reallocate
	copy(dst, out)
	return nil
}
