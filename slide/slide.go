// Package slide defines the contract of a native whole-slide reader and
// implements it for pyramidal TIFF files such as Aperio SVS.
package slide

import (
	"errors"
	"fmt"
	"math"
)

// Well-known property names
const (
	PropertyVendor         = "openslide.vendor"
	PropertyMPPX           = "openslide.mpp-x"
	PropertyMPPY           = "openslide.mpp-y"
	PropertyObjectivePower = "openslide.objective-power"
	PropertyLevelCount     = "openslide.level-count"
	PropertyXResolution    = "tiff.XResolution"
	PropertyYResolution    = "tiff.YResolution"
	PropertyResolutionUnit = "tiff.ResolutionUnit"
)

// Slide errors
var (
	ErrLevelOutOfRange = errors.New("slide: level out of range")
	ErrRegion          = errors.New("slide: invalid region")
	ErrClosed          = errors.New("slide: closed")
)

// Slide reads regions of a multi-resolution slide.
type Slide interface {
	LevelCount() int
	LevelDimensions(level int) (w, h int64)
	LevelDownsample(level int) float64
	TileSize(level int) (w, h int)
	BestLevelForDownsample(downsample float64) int

	// ReadRegion fills dst with w*h BGRA pixels of the given level. x and y
	// are level-0 coordinates. Pixels outside the level have alpha 0.
	ReadRegion(dst []byte, x, y int64, level int, w, h int64) error

	Properties() []string
	PropertyValue(name string) string
	Close() error
}

// LevelProperty returns the name of a per-level property such as
// "openslide.level[2].tile-width".
func LevelProperty(level int, key string) string {
	return fmt.Sprintf("openslide.level[%d].%s", level, key)
}

// bestLevel returns the coarsest level whose downsample does not exceed
// downsample, given the per-level downsamples finest first.
func bestLevel(downsamples []float64, downsample float64) int {
	if len(downsamples) == 0 || downsample < downsamples[0] || math.IsNaN(downsample) {
		return 0
	}
	for i := 1; i < len(downsamples); i++ {
		if downsample < downsamples[i] {
			return i - 1
		}
	}
	return len(downsamples) - 1
}
