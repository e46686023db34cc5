package pyramid

import "fmt"

// propagate downsamples a freshly written tile of level into every coarser
// level. x and y are the tile's pixel origin and data is the whole tile.
//
// Each step reads the coarse tile containing the downsampled position,
// overwrites the quadrant the fine tile maps to, and writes it back. A
// failure stops at the failing level; finer levels keep their new data.
func (p *Pyramid) propagate(b backend, level, x, y int, data []byte) error {
	writer, ok := b.(tileWriter)
	if !ok {
		return ErrUnsupportedOperation
	}
	ch := p.channels
	prev := data
	prevLv := p.levels[level]

	for l := level + 1; l < len(p.levels); l++ {
		lv := p.levels[l]
		if lv.TileWidth != prevLv.TileWidth || lv.TileHeight != prevLv.TileHeight {
			return &PropagationError{Level: l, Err: fmt.Errorf("%w: tile size changes between levels", ErrUnsupportedOperation)}
		}

		x /= 2
		y /= 2
		offX, offY := 0, 0
		if x%lv.TileWidth > 0 {
			offX = 1
		}
		if y%lv.TileHeight > 0 {
			offY = 1
		}
		x -= offX * lv.TileWidth / 2
		y -= offY * lv.TileHeight / 2
		tx, ty := x/lv.TileWidth, y/lv.TileHeight
		if !lv.Contains(tx, ty) {
			// The fine tile only covers the odd last column or row
			return nil
		}

		coarse, err := p.assemble(b, l, x, y, lv.TileWidth, lv.TileHeight)
		if err != nil {
			return &PropagationError{Level: l, Err: err}
		}
		downsampleQuadrant(coarse, prev, lv.TileWidth, lv.TileHeight, prevLv.TileWidth, ch,
			offX*lv.TileWidth/2, offY*lv.TileHeight/2)

		if err := writer.WriteTile(l, tx, ty, coarse); err != nil {
			return &PropagationError{Level: l, Err: &TileError{Op: "write", Level: l, X: tx, Y: ty, Err: classify(err)}}
		}
		p.tiles.markWritten(TileID{Level: l, X: tx, Y: ty})
		p.logger.Debug("propagated tile", "level", l, "tile_x", tx, "tile_y", ty)

		prev, prevLv = coarse, lv
	}
	return nil
}

// downsampleQuadrant halves the fine tile into the (tw/2)x(th/2) quadrant
// of the coarse tile starting at (qx, qy). Colour pixels average their
// 2x2 block rounding half up. Other pixels take the block maximum, a fast
// stand-in for majority vote that keeps any labelled pixel visible.
func downsampleQuadrant(coarse, fine []byte, tw, th, fineStride, ch, qx, qy int) {
	ParallelFor(th/2, func(dy int) {
		top := dy * 2 * fineStride
		bottom := (dy*2 + 1) * fineStride
		for dx := 0; dx < tw/2; dx++ {
			a := (top + dx*2) * ch
			bb := (top + dx*2 + 1) * ch
			c := (bottom + dx*2) * ch
			d := (bottom + dx*2 + 1) * ch
			o := (qx + dx + (qy+dy)*tw) * ch
			for k := 0; k < ch; k++ {
				if ch >= 3 {
					sum := int(fine[a+k]) + int(fine[bb+k]) + int(fine[c+k]) + int(fine[d+k])
					coarse[o+k] = byte((sum + 2) / 4)
					continue
				}
				coarse[o+k] = max(fine[a+k], fine[bb+k], fine[c+k], fine[d+k])
			}
		}
	})
}
