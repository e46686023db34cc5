package pyramidutil

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/go-pyramid/pyramid"
)

// ExportOptions configures Export.
type ExportOptions struct {
	Level int // -1 for the coarsest

	// Workers bounds the number of patches encoded at once. 0 means
	// runtime.GOMAXPROCS(0).
	Workers int

	// Initialized skips tiles that were never written.
	Initialized bool
}

// Export writes the tiles of a level as PNG patch files into dir and
// returns the number of files written. Edge tiles are cropped to the
// level.
func Export(ctx context.Context, p *pyramid.Pyramid, dir string, opts ExportOptions) (int, error) {
	lv, err := p.LevelInfo(opts.Level)
	if err != nil {
		return 0, err
	}
	level := opts.Level
	if level < 0 {
		level = p.LevelCount() - 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	a, err := p.Access(pyramid.ModeRead)
	if err != nil {
		return 0, err
	}
	defer a.Release()

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var written atomic.Int64
	for id := range Patches(lv, level) {
		if opts.Initialized && !p.IsPatchInitialized(id.Level, id.X, id.Y) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			x, y := id.X*lv.TileWidth, id.Y*lv.TileHeight
			w, h := min(lv.TileWidth, lv.Width-x), min(lv.TileHeight, lv.Height-y)
			img, err := a.PatchAsImage(level, x, y, w, h, true)
			if err != nil {
				return err
			}
			name := PatchName{
				FullWidth:  p.FullWidth(),
				FullHeight: p.FullHeight(),
				Level:      level,
				X:          x,
				Y:          y,
				SpacingX:   img.SpacingX,
				SpacingY:   img.SpacingY,
			}
			if err := WritePNG(filepath.Join(dir, name.String()), img); err != nil {
				return fmt.Errorf("pyramidutil: writing %s: %w", name, err)
			}
			written.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(written.Load()), err
	}
	return int(written.Load()), ctx.Err()
}

type patchFile struct {
	path string
	name PatchName
}

// Import builds a writable pyramid from a patch directory written by
// Export. The level-0 size and spacing come from the file names and the
// tile size from the largest patch, rounded up to a multiple of
// pyramid.TileAlign. Every patch is written to its level and propagated
// into coarser levels. opts override the tile size.
func Import(ctx context.Context, dir string, opts ...pyramid.Option) (*pyramid.Pyramid, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var (
		files  []patchFile
		tw, th int
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		name, err := ParsePatchName(e.Name())
		if err != nil {
			return nil, err
		}
		if len(files) > 0 && (name.FullWidth != files[0].name.FullWidth || name.FullHeight != files[0].name.FullHeight) {
			return nil, fmt.Errorf("%w: %s does not match the size of %s", ErrPatchName, e.Name(), filepath.Base(files[0].path))
		}
		path := filepath.Join(dir, e.Name())
		w, h, err := pngSize(path)
		if err != nil {
			return nil, err
		}
		tw, th = max(tw, w), max(th, h)
		files = append(files, patchFile{path: path, name: name})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("pyramidutil: no patches in %s", dir)
	}

	tw = (tw + pyramid.TileAlign - 1) / pyramid.TileAlign * pyramid.TileAlign
	th = (th + pyramid.TileAlign - 1) / pyramid.TileAlign * pyramid.TileAlign

	first, err := ReadPNG(files[0].path)
	if err != nil {
		return nil, err
	}
	full := files[0].name
	p, err := pyramid.Create(full.FullWidth, full.FullHeight, first.Channels,
		append([]pyramid.Option{pyramid.WithTileSize(tw, th)}, opts...)...)
	if err != nil {
		return nil, err
	}

	if err := importPatches(ctx, p, files); err != nil {
		p.Free()
		return nil, err
	}
	return p, nil
}

func importPatches(ctx context.Context, p *pyramid.Pyramid, files []patchFile) error {
	for _, f := range files {
		if f.name.Level >= p.LevelCount() {
			return fmt.Errorf("pyramidutil: %s: level %d of %d", filepath.Base(f.path), f.name.Level, p.LevelCount())
		}
	}

	if n := files[0].name; n.SpacingX > 0 && n.SpacingY > 0 && (n.SpacingX != 1 || n.SpacingY != 1) {
		lv, _ := p.LevelInfo(n.Level)
		sx := n.SpacingX * float64(lv.Width) / float64(p.FullWidth())
		sy := n.SpacingY * float64(lv.Height) / float64(p.FullHeight())
		if err := p.SetSpacing(sx, sy); err != nil {
			return err
		}
	}

	return p.Update(func(a *pyramid.Access) error {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := ReadPNG(f.path)
			if err != nil {
				return err
			}
			if img.Channels != p.Channels() {
				return fmt.Errorf("%w: %s has %d channels, want %d", pyramid.ErrUnsupportedOperation,
					filepath.Base(f.path), img.Channels, p.Channels())
			}
			if err := a.SetPatch(f.name.Level, f.name.X, f.name.Y, img); err != nil {
				return err
			}
		}
		return nil
	})
}

// pngSize decodes only the header of an image file.
func pngSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("pyramidutil: %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}
