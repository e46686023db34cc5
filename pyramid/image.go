package pyramid

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/mrjoshuak/go-pyramid/internal/interleave"
)

// Patch is an assembled rectangle of one level.
type Patch struct {
	Level    int
	OffsetX  int
	OffsetY  int
	Width    int
	Height   int
	Channels int
	Data     []byte
}

// Image is an interleaved 8-bit image with physical spacing.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
	SpacingX float64
	SpacingY float64
}

// NewImage allocates a zeroed image.
func NewImage(width, height, channels int) *Image {
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
		SpacingX: noSpacing,
		SpacingY: noSpacing,
	}
}

// Stride returns the number of bytes per row.
func (m *Image) Stride() int { return m.Width * m.Channels }

func (m *Image) validate() error {
	if m == nil || m.Width <= 0 || m.Height <= 0 || m.Channels < 1 || m.Channels > 4 ||
		len(m.Pix) != m.Width*m.Height*m.Channels {
		return fmt.Errorf("%w: malformed image", ErrOutOfRange)
	}
	return nil
}

// FromImage converts img to an Image with the given number of channels:
// 1 (gray), 3 (RGB) or 4 (RGBA).
func FromImage(img image.Image, channels int) (*Image, error) {
	b := img.Bounds()
	out := NewImage(b.Dx(), b.Dy(), channels)
	switch channels {
	case 1:
		g, ok := img.(*image.Gray)
		if !ok || g.Rect.Min != (image.Point{}) || g.Stride != g.Rect.Dx() {
			g = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(g, g.Rect, img, b.Min, draw.Src)
		}
		copy(out.Pix, g.Pix)
	case 3, 4:
		n, ok := img.(*image.NRGBA)
		if !ok || n.Rect.Min != (image.Point{}) || n.Stride != n.Rect.Dx()*4 {
			n = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(n, n.Rect, img, b.Min, draw.Src)
		}
		if channels == 4 {
			copy(out.Pix, n.Pix)
		} else {
			interleave.DropAlpha(n.Pix, out.Pix)
		}
	default:
		return nil, fmt.Errorf("%w: cannot convert to %d channels", ErrUnsupportedOperation, channels)
	}
	return out, nil
}

// ToImage wraps the pixels in an image.Image. One channel maps to Gray,
// three and four to NRGBA; two-channel images are not convertible.
func (m *Image) ToImage() (image.Image, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, m.Width, m.Height)
	switch m.Channels {
	case 1:
		return &image.Gray{Pix: m.Pix, Stride: m.Width, Rect: rect}, nil
	case 3:
		n := image.NewNRGBA(rect)
		interleave.AddAlpha(m.Pix, 255, n.Pix)
		return n, nil
	case 4:
		return &image.NRGBA{Pix: m.Pix, Stride: m.Width * 4, Rect: rect}, nil
	}
	return nil, fmt.Errorf("%w: %d channel image", ErrUnsupportedOperation, m.Channels)
}

// toRGB converts BGRA pixels to RGB.
func (m *Image) toRGB() *Image {
	out := &Image{Width: m.Width, Height: m.Height, Channels: 3, SpacingX: m.SpacingX, SpacingY: m.SpacingY}
	out.Pix = interleave.BGRAToRGB(m.Pix, nil)
	return out
}
