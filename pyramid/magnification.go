package pyramid

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// referenceSpacing is the pixel spacing in millimetres of a 40x objective.
const referenceSpacing = 0.00025

// spacingForMagnification returns the pixel spacing implied by an
// objective magnification.
func spacingForMagnification(mag float64) float64 {
	return referenceSpacing * 40 / mag
}

// magnificationRanges maps open spacing intervals in millimetres to the
// objective magnification they are typical of. The 40x interval includes
// its upper bound.
var magnificationRanges = []struct {
	lo, hi float64
	mag    float64
}{
	{0.00015, 0.00035, 40},
	{0.0004, 0.0006, 20},
	{0.00075, 0.00125, 10},
	{0.00175, 0.00225, 5},
	{0.0075, 0.0125, 1},
}

// guessMagnification returns the magnification typical of spacing, or 0.
func guessMagnification(spacing float64) float64 {
	for _, r := range magnificationRanges {
		if spacing > r.lo && (spacing < r.hi || (r.mag == 40 && spacing == r.hi)) {
			return r.mag
		}
	}
	return 0
}

// SetMagnification sets the objective magnification of level 0. Like
// SetSpacing it waits for open sessions. Writable containers store it in
// the ImageDescription of level 0.
func (p *Pyramid) SetMagnification(mag float64) error {
	if mag <= 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return fmt.Errorf("%w: magnification %g", ErrOutOfRange, mag)
	}
	p.session.Lock()
	defer p.session.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil {
		return ErrNotInitialized
	}
	p.magnification = mag
	if mw, ok := p.backend.(magnificationWriter); ok && p.kind == WritableContainer {
		return mw.WriteMagnification(mag)
	}
	return nil
}

// descriptionPrefix starts the ImageDescription of written containers.
const descriptionPrefix = "go-pyramid"

// formatDescription renders the ImageDescription recording mag.
func formatDescription(mag float64) string {
	return descriptionPrefix + "|AppMag = " + strconv.FormatFloat(mag, 'g', -1, 64)
}

// descriptionMagnification returns the AppMag field of an Aperio style
// "header|key = value|..." description, or 0.
func descriptionMagnification(desc string) float64 {
	parts := strings.Split(desc, "|")
	for _, part := range parts[1:] {
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) != "AppMag" {
			continue
		}
		if m, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && m > 0 {
			return m
		}
	}
	return 0
}

// Magnification returns the objective magnification of level 0, set
// explicitly or guessed from the spacing. It fails with ErrNotInitialized
// when neither is known.
func (p *Pyramid) Magnification() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.magnification > 0 {
		return p.magnification, nil
	}
	if p.spacingX == noSpacing && p.spacingY == noSpacing {
		return 0, fmt.Errorf("%w: magnification unknown", ErrNotInitialized)
	}
	if m := guessMagnification(p.spacingX); m > 0 {
		return m, nil
	}
	return 0, fmt.Errorf("%w: no magnification matches spacing %g mm", ErrNotInitialized, p.spacingX)
}

// level0Spacing returns the horizontal spacing of level 0: the stored
// spacing, the one implied by an explicit magnification, or the 40x
// reference.
func (p *Pyramid) level0Spacing() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.spacingX != noSpacing:
		return p.spacingX
	case p.magnification > 0:
		return spacingForMagnification(p.magnification)
	}
	return referenceSpacing
}

// LevelForMagnification returns the level whose spacing is closest to the
// one implied by mag. It fails with ErrNoSuitableLevel when the closest
// level is further than slack times the target spacing.
func (p *Pyramid) LevelForMagnification(mag, slack float64) (int, error) {
	if mag <= 0 || math.IsNaN(mag) {
		return 0, fmt.Errorf("%w: magnification %g", ErrOutOfRange, mag)
	}
	target := spacingForMagnification(mag)
	base := p.level0Spacing()

	best, bestDist := 0, math.Inf(1)
	for l := range p.levels {
		if d := math.Abs(base*p.LevelScale(l) - target); d < bestDist {
			best, bestDist = l, d
		}
	}
	if bestDist > target*slack {
		return 0, fmt.Errorf("%w: magnification %g (closest level %d)", ErrNoSuitableLevel, mag, best)
	}
	return best, nil
}

// ClosestLevelForMagnification returns the finest level that is not
// coarser than mag and the factor by which its pixels must be scaled down
// to reach mag. The factor is 1 when it is within slack of 1.
func (p *Pyramid) ClosestLevelForMagnification(mag, slack float64) (level int, factor float64, err error) {
	if mag <= 0 || math.IsNaN(mag) {
		return 0, 0, fmt.Errorf("%w: magnification %g", ErrOutOfRange, mag)
	}
	if m, err := p.Magnification(); err == nil {
		for l := range p.levels {
			if m/math.Round(p.LevelScale(l)) == mag {
				return l, 1, nil
			}
		}
	}

	target := spacingForMagnification(mag)
	base := p.level0Spacing()
	for l := range p.levels {
		level = l
		factor = target / (p.LevelScale(l) * base)
		if l+1 < len(p.levels) && p.LevelScale(l+1)*base > target {
			break
		}
	}
	if math.Abs(factor-1) < slack {
		factor = 1
	}
	return level, factor, nil
}

// resample scales img to w*h with bilinear filtering.
func resample(img *Image, w, h int) (*Image, error) {
	src, err := img.ToImage()
	if err != nil {
		return nil, err
	}
	var dst draw.Image
	if img.Channels == 1 {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out, err := FromImage(dst, img.Channels)
	if err != nil {
		return nil, err
	}
	out.SpacingX = img.SpacingX * float64(img.Width) / float64(w)
	out.SpacingY = img.SpacingY * float64(img.Height) / float64(h)
	return out, nil
}
