package pyramidutil

import (
	"errors"
	"fmt"
	"image"
	"iter"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/mrjoshuak/go-pyramid/pyramid"
)

// ErrPatchName is returned for file names that do not follow the patch
// naming convention.
var ErrPatchName = errors.New("pyramidutil: invalid patch file name")

// Patches yields the tiles of level lv in row-major order.
func Patches(lv pyramid.Level, level int) iter.Seq[pyramid.TileID] {
	return func(yield func(pyramid.TileID) bool) {
		for ty := 0; ty < lv.TilesY; ty++ {
			for tx := 0; tx < lv.TilesX; tx++ {
				if !yield(pyramid.TileID{Level: level, X: tx, Y: ty}) {
					return
				}
			}
		}
	}
}

// PatchName describes an exported patch file:
// patch_<W>_<H>_<level>_<x>_<y>_<spacingX>_<spacingY>.png where W and H
// are the level-0 size and x, y the patch origin in level pixels.
type PatchName struct {
	FullWidth  int
	FullHeight int
	Level      int
	X          int
	Y          int
	SpacingX   float64
	SpacingY   float64
}

func (n PatchName) String() string {
	return fmt.Sprintf("patch_%d_%d_%d_%d_%d_%s_%s.png", n.FullWidth, n.FullHeight, n.Level, n.X, n.Y,
		strconv.FormatFloat(n.SpacingX, 'g', -1, 64), strconv.FormatFloat(n.SpacingY, 'g', -1, 64))
}

// ParsePatchName parses the base name of a patch file.
func ParsePatchName(name string) (PatchName, error) {
	base, ok := strings.CutSuffix(name, ".png")
	if !ok {
		return PatchName{}, fmt.Errorf("%w: %q", ErrPatchName, name)
	}
	parts := strings.Split(base, "_")
	if len(parts) != 8 || parts[0] != "patch" {
		return PatchName{}, fmt.Errorf("%w: %q", ErrPatchName, name)
	}

	var ints [5]int
	for i := range ints {
		v, err := strconv.Atoi(parts[i+1])
		if err != nil || v < 0 {
			return PatchName{}, fmt.Errorf("%w: %q", ErrPatchName, name)
		}
		ints[i] = v
	}
	sx, errX := strconv.ParseFloat(parts[6], 64)
	sy, errY := strconv.ParseFloat(parts[7], 64)
	if errX != nil || errY != nil {
		return PatchName{}, fmt.Errorf("%w: %q", ErrPatchName, name)
	}
	return PatchName{
		FullWidth:  ints[0],
		FullHeight: ints[1],
		Level:      ints[2],
		X:          ints[3],
		Y:          ints[4],
		SpacingX:   sx,
		SpacingY:   sy,
	}, nil
}

// WritePNG saves img as a PNG file.
func WritePNG(path string, img *pyramid.Image) error {
	m, err := img.ToImage()
	if err != nil {
		return err
	}
	return imaging.Save(m, path)
}

// ReadPNG loads a PNG file. Gray images load with one channel, everything
// else as RGB.
func ReadPNG(path string) (*pyramid.Image, error) {
	m, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	channels := 3
	switch m.(type) {
	case *image.Gray, *image.Gray16:
		channels = 1
	}
	return pyramid.FromImage(m, channels)
}
