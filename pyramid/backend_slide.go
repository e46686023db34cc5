package pyramid

import (
	"math"

	"github.com/mrjoshuak/go-pyramid/internal/interleave"
	"github.com/mrjoshuak/go-pyramid/slide"
)

// slideBackend reads BGRA regions from a native slide reader. It is the
// only place that knows the reader marks missing pixels transparent.
type slideBackend struct {
	slide       slide.Slide
	downsamples []float64
}

func newSlideBackend(s slide.Slide, levels int) *slideBackend {
	ds := make([]float64, levels)
	for i := range ds {
		ds[i] = s.LevelDownsample(i)
	}
	return &slideBackend{slide: s, downsamples: ds}
}

func (b *slideBackend) Kind() Kind { return ReadOnlySlide }

// ReadRegion reads level pixels. The slide addresses regions in level-0
// coordinates.
func (b *slideBackend) ReadRegion(level, x, y, w, h int, dst []byte) error {
	if level < 0 || level >= len(b.downsamples) {
		return ErrOutOfRange
	}
	ds := b.downsamples[level]
	x0 := int64(math.Round(float64(x) * ds))
	y0 := int64(math.Round(float64(y) * ds))
	if err := b.slide.ReadRegion(dst, x0, y0, level, int64(w), int64(h)); err != nil {
		return classify(err)
	}
	interleave.OpaqueWhite(dst)
	return nil
}

func (b *slideBackend) Close() error {
	return b.slide.Close()
}
