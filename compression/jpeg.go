package compression

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// ErrJPEGCorrupted is returned for malformed JPEG tiles.
var ErrJPEGCorrupted = fmt.Errorf("%w (jpeg)", ErrCorrupted)

// JPEGCompress encodes one tile as a baseline JFIF stream. Three and four
// channel tiles are stored as YCbCr without alpha.
func JPEGCompress(src []byte, t Tile, quality int) ([]byte, error) {
	img, err := tileImage(src, t)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JPEGDecompressTo decodes a JPEG tile into dst. When tables is set the tile
// is an abbreviated stream and the shared tables are spliced in front of it.
func JPEGDecompressTo(dst, src []byte, t Tile, tables []byte) error {
	if len(tables) > 4 && len(src) > 2 {
		// tables ends with EOI, src starts with SOI
		merged := make([]byte, 0, len(tables)+len(src)-4)
		merged = append(merged, tables[:len(tables)-2]...)
		merged = append(merged, src[2:]...)
		src = merged
	}

	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJPEGCorrupted, err)
	}
	return imageToTile(img, dst, t)
}

// tileImage wraps tile bytes in an image.Image without alpha.
func tileImage(src []byte, t Tile) (image.Image, error) {
	rect := image.Rect(0, 0, t.Width, t.Height)
	switch t.Channels {
	case 1:
		return &image.Gray{Pix: src, Stride: t.Width, Rect: rect}, nil
	case 3, 4:
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(img.Pix); i, j = i+4, j+t.Channels {
			img.Pix[i] = src[j]
			img.Pix[i+1] = src[j+1]
			img.Pix[i+2] = src[j+2]
			img.Pix[i+3] = 255
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: %d channels", ErrGeometry, t.Channels)
}

// imageToTile copies the top-left tile of img into dst. Alpha, when the
// tile has four channels, is set to 255.
func imageToTile(img image.Image, dst []byte, t Tile) error {
	b := img.Bounds()
	if b.Dx() < t.Width || b.Dy() < t.Height {
		return fmt.Errorf("%w: decoded %dx%d, want %dx%d", ErrCorrupted, b.Dx(), b.Dy(), t.Width, t.Height)
	}
	ch := t.Channels

	put := func(i int, r, g, bl uint8) {
		switch ch {
		case 1:
			dst[i] = r
		case 3:
			dst[i], dst[i+1], dst[i+2] = r, g, bl
		default:
			dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, bl, 255
		}
	}

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < t.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < t.Width; x++ {
				v := row[x]
				put((y*t.Width+x)*ch, v, v, v)
			}
		}
	case *image.YCbCr:
		for y := 0; y < t.Height; y++ {
			for x := 0; x < t.Width; x++ {
				yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := src.COffset(b.Min.X+x, b.Min.Y+y)
				if ch == 1 {
					dst[y*t.Width+x] = src.Y[yi]
					continue
				}
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				put((y*t.Width+x)*ch, r, g, bl)
			}
		}
	default:
		for y := 0; y < t.Height; y++ {
			for x := 0; x < t.Width; x++ {
				c := img.At(b.Min.X+x, b.Min.Y+y)
				if ch == 1 {
					dst[y*t.Width+x] = color.GrayModel.Convert(c).(color.Gray).Y
					continue
				}
				n := color.NRGBAModel.Convert(c).(color.NRGBA)
				put((y*t.Width+x)*ch, n.R, n.G, n.B)
			}
		}
	}
	return nil
}
