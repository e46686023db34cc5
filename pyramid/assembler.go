package pyramid

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// background returns the value of padding pixels: white for colour
// pyramids, zero (unlabelled) for single-channel ones.
func background(channels int) byte {
	if channels >= 3 {
		return 255
	}
	return 0
}

func fill(buf []byte, v byte) {
	if v == 0 {
		clear(buf)
		return
	}
	for i := range buf {
		buf[i] = v
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// assemble returns the w*h pixels of level at (x, y). Pixels outside the
// level, in tiles outside the grid, in unwritten tiles of a pyramid under
// construction and in tiles without payload read as background. Callers
// hold a session.
func (p *Pyramid) assemble(b backend, level, x, y, w, h int) ([]byte, error) {
	lv := p.levels[level]
	ch := p.channels
	out := make([]byte, w*h*ch)

	if rr, ok := b.(regionReader); ok {
		if err := p.assembleRegion(rr, lv, level, x, y, w, h, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	tr := b.(tileReader)

	tx0, ty0 := floorDiv(x, lv.TileWidth), floorDiv(y, lv.TileHeight)
	tx1, ty1 := floorDiv(x+w-1, lv.TileWidth), floorDiv(y+h-1, lv.TileHeight)

	switch {
	case tx0 == tx1 && ty0 == ty1 && x == tx0*lv.TileWidth && y == ty0*lv.TileHeight &&
		w == lv.TileWidth && h == lv.TileHeight:
		if err := p.readTile(tr, level, tx0, ty0, out); err != nil {
			return nil, err
		}

	case tx0 == tx1 && ty0 == ty1:
		tile, err := p.pool.Get(lv.TileBytes(ch))
		if err != nil {
			return nil, err
		}
		defer p.pool.Put(tile)
		if err := p.readTile(tr, level, tx0, ty0, tile); err != nil {
			return nil, err
		}
		blit(out, w*ch, 0, 0, tile, lv.TileWidth*ch, x-tx0*lv.TileWidth, y-ty0*lv.TileHeight, w, h, ch)

	default:
		if err := p.assembleTiles(tr, lv, level, x, y, w, h, tx0, ty0, tx1, ty1, out); err != nil {
			return nil, err
		}
	}

	padOutside(out, lv, x, y, w, h, ch)
	return out, nil
}

// assembleTiles fetches the covering tiles concurrently into a scratch
// buffer spanning their bounding box and crops the request from it.
func (p *Pyramid) assembleTiles(tr tileReader, lv Level, level, x, y, w, h, tx0, ty0, tx1, ty1 int, out []byte) error {
	ch := p.channels
	cols, rows := tx1-tx0+1, ty1-ty0+1
	scratchStride := cols * lv.TileWidth * ch
	scratch, err := p.pool.Get(scratchStride * rows * lv.TileHeight)
	if err != nil {
		return err
	}
	defer p.pool.Put(scratch)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			g.Go(func() error {
				tile, err := p.pool.Get(lv.TileBytes(ch))
				if err != nil {
					return err
				}
				defer p.pool.Put(tile)
				if err := p.readTile(tr, level, tx, ty, tile); err != nil {
					return err
				}
				// Tiles cover disjoint parts of scratch
				blit(scratch, scratchStride, (tx-tx0)*lv.TileWidth, (ty-ty0)*lv.TileHeight,
					tile, lv.TileWidth*ch, 0, 0, lv.TileWidth, lv.TileHeight, ch)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	blit(out, w*ch, 0, 0, scratch, scratchStride, x-tx0*lv.TileWidth, y-ty0*lv.TileHeight, w, h, ch)
	return nil
}

// assembleRegion reads the in-level part of the request natively.
func (p *Pyramid) assembleRegion(rr regionReader, lv Level, level, x, y, w, h int, out []byte) error {
	ch := p.channels
	ix0, iy0 := max(x, 0), max(y, 0)
	ix1, iy1 := min(x+w, lv.Width), min(y+h, lv.Height)
	if ix0 >= ix1 || iy0 >= iy1 {
		fill(out, background(ch))
		return nil
	}

	iw, ih := ix1-ix0, iy1-iy0
	if iw == w && ih == h {
		if err := rr.ReadRegion(level, x, y, w, h, out); err != nil {
			return &RegionError{Level: level, X: x, Y: y, Width: w, Height: h, Err: err}
		}
		return nil
	}

	region, err := p.pool.Get(iw * ih * ch)
	if err != nil {
		return err
	}
	defer p.pool.Put(region)
	if err := rr.ReadRegion(level, ix0, iy0, iw, ih, region); err != nil {
		return &RegionError{Level: level, X: ix0, Y: iy0, Width: iw, Height: ih, Err: err}
	}
	blit(out, w*ch, ix0-x, iy0-y, region, iw*ch, 0, 0, iw, ih, ch)
	padOutside(out, lv, x, y, w, h, ch)
	return nil
}

// readTile fills dst with one tile or with background.
func (p *Pyramid) readTile(tr tileReader, level, tx, ty int, dst []byte) error {
	lv := p.levels[level]
	bg := background(p.channels)
	if !lv.Contains(tx, ty) || !p.tiles.isInitialized(TileID{Level: level, X: tx, Y: ty}) {
		fill(dst, bg)
		return nil
	}
	present, err := tr.ReadTile(level, tx, ty, dst)
	if err != nil {
		return &TileError{Op: "read", Level: level, X: tx, Y: ty, Err: classify(err)}
	}
	if !present {
		fill(dst, bg)
	}
	return nil
}

// blit copies a w*h pixel rectangle from (sx, sy) of src to (dx, dy) of
// dst. Strides are in bytes.
func blit(dst []byte, dstStride, dx, dy int, src []byte, srcStride, sx, sy, w, h, ch int) {
	n := w * ch
	for r := 0; r < h; r++ {
		d := (dy+r)*dstStride + dx*ch
		s := (sy+r)*srcStride + sx*ch
		copy(dst[d:d+n], src[s:s+n])
	}
}

// padOutside overwrites the pixels of out that fall outside the level.
func padOutside(out []byte, lv Level, x, y, w, h, ch int) {
	if x >= 0 && y >= 0 && x+w <= lv.Width && y+h <= lv.Height {
		return
	}
	bg := background(ch)
	stride := w * ch
	ParallelFor(h, func(r int) {
		row := out[r*stride : (r+1)*stride]
		if ly := y + r; ly < 0 || ly >= lv.Height {
			fill(row, bg)
			return
		}
		if left := min(max(-x, 0), w); left > 0 {
			fill(row[:left*ch], bg)
		}
		if start := max(lv.Width-x, 0); start < w {
			fill(row[start*ch:], bg)
		}
	})
}
