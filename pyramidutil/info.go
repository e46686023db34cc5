// Package pyramidutil provides higher-level operations on image pyramids.
//
// This package offers summaries, validation, comparison, per-level
// statistics and export and import of patch directories.
//
// Example usage:
//
//	info, _ := pyramidutil.GetFileInfo("slide.svs")
//	fmt.Printf("Size: %dx%d, Levels: %d\n", info.Width, info.Height, len(info.Levels))
package pyramidutil

import (
	"fmt"
	"os"
	"slices"

	"github.com/mrjoshuak/go-pyramid/pyramid"
)

// ===========================================
// Pyramid Information
// ===========================================

// Info provides a summary of a pyramid.
type Info struct {
	Path          string
	Kind          pyramid.Kind
	Width         int
	Height        int
	Channels      int
	Compression   string
	Levels        []pyramid.Level
	SpacingX      float64
	SpacingY      float64
	Magnification float64 // 0 when unknown
	Properties    map[string]string
	FileSize      int64
}

// GetInfo returns summary information about an open pyramid.
func GetInfo(p *pyramid.Pyramid) *Info {
	sx, sy := p.Spacing()
	info := &Info{
		Kind:        p.Kind(),
		Width:       p.FullWidth(),
		Height:      p.FullHeight(),
		Channels:    p.Channels(),
		Compression: p.Compression(),
		Levels:      p.Levels(),
		SpacingX:    sx,
		SpacingY:    sy,
		Properties:  p.Properties(),
	}
	if m, err := p.Magnification(); err == nil {
		info.Magnification = m
	}
	return info
}

// GetFileInfo opens a pyramid file and returns its summary.
func GetFileInfo(path string, opts ...pyramid.Option) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	p, err := pyramid.OpenFile(path, opts...)
	if err != nil {
		return nil, err
	}
	defer p.Free()

	info := GetInfo(p)
	info.Path = path
	info.FileSize = stat.Size()
	return info, nil
}

// PropertyNames returns the metadata keys in sorted order.
func (i *Info) PropertyNames() []string {
	names := make([]string, 0, len(i.Properties))
	for k := range i.Properties {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// ===========================================
// Validation
// ===========================================

// ValidationResult contains the results of pyramid validation.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks the level geometry of a pyramid and decodes the first
// tile of every level.
func Validate(p *pyramid.Pyramid) (*ValidationResult, error) {
	result := &ValidationResult{Valid: true}
	levels := p.Levels()

	for i := 1; i < len(levels); i++ {
		prev, lv := levels[i-1], levels[i]
		if lv.Width > prev.Width || lv.Height > prev.Height {
			result.Errors = append(result.Errors,
				fmt.Sprintf("level %d (%dx%d) is larger than level %d (%dx%d)", i, lv.Width, lv.Height, i-1, prev.Width, prev.Height))
		}
		if lv.TileWidth != prev.TileWidth || lv.TileHeight != prev.TileHeight {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("level %d tile size %dx%d differs from level %d", i, lv.TileWidth, lv.TileHeight, i-1))
		}
		if prev.Width/2 != lv.Width && p.Kind().Writable() {
			result.Errors = append(result.Errors,
				fmt.Sprintf("level %d width %d is not half of %d", i, lv.Width, prev.Width))
		}
	}

	a, err := p.Access(pyramid.ModeRead)
	if err != nil {
		return nil, err
	}
	defer a.Release()
	for i := range levels {
		if _, err := a.Patch(i, 0, 0); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("level %d: %v", i, err))
		}
	}

	if sx, sy := p.Spacing(); sx == 1 && sy == 1 {
		result.Warnings = append(result.Warnings, "no physical spacing")
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// ===========================================
// Comparison
// ===========================================

// CompareOptions configures pyramid comparison.
type CompareOptions struct {
	Level     int // level compared in both pyramids, -1 for the coarsest
	Tolerance int // largest accepted per-byte difference
	MaxDiffs  int // stop after this many differences; 0 means 10
}

// Compare checks whether a level of two pyramids has equivalent content.
// It returns true if the pixels match within tolerance, along with the
// differences found.
func Compare(a, b *pyramid.Pyramid, opts CompareOptions) (bool, []string, error) {
	maxDiffs := opts.MaxDiffs
	if maxDiffs <= 0 {
		maxDiffs = 10
	}
	la, err := a.LevelInfo(opts.Level)
	if err != nil {
		return false, nil, err
	}
	lb, err := b.LevelInfo(opts.Level)
	if err != nil {
		return false, nil, err
	}

	levelA, levelB := opts.Level, opts.Level
	if opts.Level < 0 {
		levelA, levelB = a.LevelCount()-1, b.LevelCount()-1
	}

	var diffs []string
	if la.Width != lb.Width || la.Height != lb.Height {
		diffs = append(diffs, fmt.Sprintf("size: %dx%d vs %dx%d", la.Width, la.Height, lb.Width, lb.Height))
	}
	if a.Channels() != b.Channels() {
		diffs = append(diffs, fmt.Sprintf("channels: %d vs %d", a.Channels(), b.Channels()))
	}
	if len(diffs) > 0 {
		return false, diffs, nil
	}

	ra, err := a.Access(pyramid.ModeRead)
	if err != nil {
		return false, nil, err
	}
	defer ra.Release()
	rb, err := b.Access(pyramid.ModeRead)
	if err != nil {
		return false, nil, err
	}
	defer rb.Release()

	for id := range Patches(la, levelA) {
		pa, err := ra.Patch(id.Level, id.X, id.Y)
		if err != nil {
			return false, diffs, err
		}
		x, y := id.X*la.TileWidth, id.Y*la.TileHeight
		db, err := rb.PatchData(levelB, x, y, pa.Width, pa.Height)
		if err != nil {
			return false, diffs, err
		}
		for i, v := range pa.Data {
			if d := int(v) - int(db[i]); d > opts.Tolerance || -d > opts.Tolerance {
				px := i / pa.Channels
				diffs = append(diffs, fmt.Sprintf("pixel (%d, %d) channel %d: %d vs %d",
					x+px%pa.Width, y+px/pa.Width, i%pa.Channels, v, db[i]))
				break
			}
		}
		if len(diffs) >= maxDiffs {
			break
		}
	}
	return len(diffs) == 0, diffs, nil
}
