package cmd

import (
	"context"
	"fmt"

	"github.com/mrjoshuak/go-pyramid/internal/interleave"
	"github.com/mrjoshuak/go-pyramid/pyramid"
	"github.com/mrjoshuak/go-pyramid/pyramidutil"
	"github.com/mrjoshuak/go-pyramid/tiletable"
)

// regionFunc returns a w x h rectangle of level-0 pixels at (x, y).
type regionFunc func(x, y, w, h int) (*pyramid.Image, error)

// fill writes level 0 of dst tile by tile from read. Every tile is
// propagated into the coarser levels as it is written.
func fill(ctx context.Context, dst *pyramid.Pyramid, read regionFunc) error {
	lv, err := dst.LevelInfo(0)
	if err != nil {
		return err
	}
	return dst.Update(func(a *pyramid.Access) error {
		for id := range pyramidutil.Patches(lv, 0) {
			if err := ctx.Err(); err != nil {
				return err
			}
			x, y := id.X*lv.TileWidth, id.Y*lv.TileHeight
			img, err := read(x, y, min(lv.TileWidth, lv.Width-x), min(lv.TileHeight, lv.Height-y))
			if err != nil {
				return err
			}
			if err := a.SetPatch(0, x, y, img); err != nil {
				return err
			}
		}
		return nil
	})
}

// crop copies a rectangle out of img.
func crop(img *pyramid.Image, x, y, w, h int) *pyramid.Image {
	out := pyramid.NewImage(w, h, img.Channels)
	stride, row := img.Stride(), out.Stride()
	for j := 0; j < h; j++ {
		off := (y+j)*stride + x*img.Channels
		copy(out.Pix[j*row:(j+1)*row], img.Pix[off:off+row])
	}
	return out
}

// writeTileTable stores every initialized tile of p in a tile table.
// Gray pyramids are expanded to RGB.
func writeTileTable(ctx context.Context, p *pyramid.Pyramid, path string, format tiletable.Format, quality int) error {
	if p.Channels() != 1 && p.Channels() != 3 {
		return fmt.Errorf("%w: tile tables hold RGB, pyramid has %d channels", pyramid.ErrUnsupportedOperation, p.Channels())
	}
	levels := p.Levels()
	tl := make([]tiletable.Level, len(levels))
	for i, lv := range levels {
		tl[i] = tiletable.Level{Width: lv.Width, Height: lv.Height, TileWidth: lv.TileWidth, TileHeight: lv.TileHeight}
	}
	w, err := tiletable.Create(path, format, tl, quality)
	if err != nil {
		return err
	}

	err = p.View(func(a *pyramid.Access) error {
		for i, lv := range levels {
			for id := range pyramidutil.Patches(lv, i) {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !p.IsPatchInitialized(i, id.X, id.Y) {
					continue
				}
				data, err := a.PatchData(i, id.X*lv.TileWidth, id.Y*lv.TileHeight, lv.TileWidth, lv.TileHeight)
				if err != nil {
					return err
				}
				if p.Channels() == 1 {
					data = interleave.GrayToRGB(data, nil)
				}
				if err := w.WriteTile(i, id.X, id.Y, data); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
