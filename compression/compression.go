// Package compression provides the tile codecs of tiled TIFF containers.
//
// Codecs are identified by their TIFF Compression tag value. Encode and
// Decode operate on one whole tile of interleaved 8-bit pixels; partial
// tiles are never encoded. The lossless codecs (LZW, Deflate, Zstandard)
// optionally apply the TIFF horizontal predictor.
package compression

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mrjoshuak/go-pyramid/internal/predictor"
)

// Compression is a TIFF compression scheme.
type Compression uint16

// TIFF Compression tag values.
const (
	None          Compression = 1
	LZW           Compression = 5
	JPEG          Compression = 7
	Deflate       Compression = 8
	AperioJ2KYCC  Compression = 33003
	AperioJ2KRGB  Compression = 33005
	NeuralNetwork Compression = 34666
	JPEG2000      Compression = 34712
	PackBits      Compression = 32773
	DeflateLegacy Compression = 32946
	Zstd          Compression = 50000
	JPEGXL        Compression = 50002
)

var (
	// ErrUnsupported is returned for schemes that have no codec.
	ErrUnsupported = errors.New("compression: unsupported compression")

	// ErrCorrupted is returned when a payload cannot be decoded.
	// Every codec-specific corruption error wraps it.
	ErrCorrupted = errors.New("compression: corrupted tile data")

	// ErrGeometry is returned when a buffer does not match the tile geometry.
	ErrGeometry = errors.New("compression: buffer does not match tile geometry")
)

var names = map[Compression]string{
	None:          "none",
	LZW:           "lzw",
	JPEG:          "jpeg",
	Deflate:       "deflate",
	AperioJ2KYCC:  "jpeg2000-aperio-ycc",
	AperioJ2KRGB:  "jpeg2000-aperio-rgb",
	NeuralNetwork: "neural-network",
	JPEG2000:      "jpeg2000",
	PackBits:      "packbits",
	DeflateLegacy: "deflate-legacy",
	Zstd:          "zstd",
	JPEGXL:        "jpegxl",
}

// String returns the lowercase name of the scheme.
func (c Compression) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("compression(%d)", uint16(c))
}

// Parse returns the scheme with the given name. Matching is case-insensitive
// and accepts "raw" for none.
func Parse(name string) (Compression, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "raw" || n == "" {
		return None, nil
	}
	for c, s := range names {
		if s == n {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// Lossless reports whether decoding reproduces the encoded bytes exactly.
// JPEG 2000 is lossless only when encoded at quality 100.
func (c Compression) Lossless() bool {
	switch c {
	case None, LZW, Deflate, DeflateLegacy, PackBits, Zstd:
		return true
	}
	return false
}

// CanEncode reports whether Encode supports the scheme.
func (c Compression) CanEncode() bool {
	switch c {
	case None, LZW, JPEG, Deflate, PackBits, Zstd, JPEG2000:
		return true
	}
	return false
}

// CanDecode reports whether Decode supports the scheme.
func (c Compression) CanDecode() bool {
	switch c {
	case AperioJ2KYCC, AperioJ2KRGB, DeflateLegacy:
		return true
	}
	return c.CanEncode()
}

// Predicted reports whether the scheme may carry the horizontal predictor.
func (c Compression) Predicted() bool {
	switch c {
	case LZW, Deflate, DeflateLegacy, Zstd:
		return true
	}
	return false
}

// Tile describes the geometry of one tile.
type Tile struct {
	Width    int
	Height   int
	Channels int
}

// Size returns the number of bytes of a decoded tile.
func (t Tile) Size() int {
	return t.Width * t.Height * t.Channels
}

// Options tunes encoding and decoding.
type Options struct {
	// Quality is the lossy quality from 1 to 100. 0 selects 90.
	Quality int

	// Predictor enables TIFF horizontal differencing for LZW, Deflate and Zstandard.
	Predictor bool

	// JPEGTables holds the abbreviated table stream shared by JPEG tiles.
	JPEGTables []byte
}

func (o Options) quality() int {
	if o.Quality <= 0 {
		return 90
	}
	if o.Quality > 100 {
		return 100
	}
	return o.Quality
}

// Encode compresses one tile of interleaved pixels.
// src is not modified.
func Encode(c Compression, src []byte, t Tile, opts Options) ([]byte, error) {
	if len(src) != t.Size() {
		return nil, ErrGeometry
	}
	if opts.Predictor && c.Predicted() {
		buf := make([]byte, len(src))
		copy(buf, src)
		predictor.Encode(buf, t.Width*t.Channels, t.Channels)
		src = buf
	}

	switch c {
	case None:
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	case LZW:
		return LZWCompress(src), nil
	case Deflate:
		return DeflateCompress(src)
	case PackBits:
		return PackBitsCompress(src, t.Width*t.Channels), nil
	case Zstd:
		return ZstdCompress(src)
	case JPEG:
		return JPEGCompress(src, t, opts.quality())
	case JPEG2000:
		return JPEG2000Compress(src, t, opts.quality())
	}
	return nil, fmt.Errorf("%w: cannot encode %v", ErrUnsupported, c)
}

// Decode decompresses one tile into dst, which must hold exactly one tile.
func Decode(c Compression, src []byte, t Tile, opts Options, dst []byte) error {
	if len(dst) != t.Size() {
		return ErrGeometry
	}

	var err error
	switch c {
	case None:
		if len(src) < len(dst) {
			return fmt.Errorf("%w: short uncompressed tile", ErrCorrupted)
		}
		copy(dst, src)
	case LZW:
		err = LZWDecompressTo(dst, src)
	case Deflate, DeflateLegacy:
		err = DeflateDecompressTo(dst, src)
	case PackBits:
		err = PackBitsDecompressTo(src, dst)
	case Zstd:
		err = ZstdDecompressTo(dst, src)
	case JPEG:
		err = JPEGDecompressTo(dst, src, t, opts.JPEGTables)
	case JPEG2000, AperioJ2KYCC, AperioJ2KRGB:
		err = JPEG2000DecompressTo(dst, src, t)
	default:
		return fmt.Errorf("%w: cannot decode %v", ErrUnsupported, c)
	}
	if err != nil {
		return err
	}

	if opts.Predictor && c.Predicted() {
		predictor.Decode(dst, t.Width*t.Channels, t.Channels)
	}
	return nil
}
