package compression

import (
	"bytes"
	"fmt"

	"github.com/mrjoshuak/go-jpeg2000"
)

// ErrJPEG2000Corrupted is returned for malformed JPEG 2000 tiles.
var ErrJPEG2000Corrupted = fmt.Errorf("%w (jpeg2000)", ErrCorrupted)

// JPEG2000Compress encodes one tile as a raw J2K codestream. Quality 100
// selects the reversible 5-3 wavelet and is lossless.
func JPEG2000Compress(src []byte, t Tile, quality int) ([]byte, error) {
	img, err := tileImage(src, t)
	if err != nil {
		return nil, err
	}

	opts := &jpeg2000.Options{
		Format:         jpeg2000.FormatJ2K, // Raw codestream, no JP2 wrapper
		Lossless:       quality >= 100,
		Quality:        quality,
		NumResolutions: j2kResolutions(t),
	}

	var buf bytes.Buffer
	if err := jpeg2000.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("compression: jpeg2000 encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEG2000DecompressTo decodes a J2K codestream (or JP2 file) into dst.
func JPEG2000DecompressTo(dst, src []byte, t Tile) error {
	img, err := jpeg2000.Decode(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJPEG2000Corrupted, err)
	}
	return imageToTile(img, dst, t)
}

// j2kResolutions returns 6 resolutions, fewer for tiles too small to
// carry five decomposition levels.
func j2kResolutions(t Tile) int {
	side := min(t.Width, t.Height)
	n := 1
	for n < 6 && side>>n >= 1 {
		n++
	}
	return n
}
