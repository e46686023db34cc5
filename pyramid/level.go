package pyramid

import "fmt"

// Level describes one resolution level of a pyramid. Level 0 has the
// highest resolution.
type Level struct {
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
	TilesX     int
	TilesY     int

	// Offset locates the level in its backend: the directory index of a
	// container, the byte offset into the mapping of raw storage, or -1.
	Offset int64
}

func newLevel(w, h, tw, th int, offset int64) Level {
	return Level{
		Width:      w,
		Height:     h,
		TileWidth:  tw,
		TileHeight: th,
		TilesX:     (w + tw - 1) / tw,
		TilesY:     (h + th - 1) / th,
		Offset:     offset,
	}
}

// TileBytes returns the size of one decoded tile with the given channels.
func (l Level) TileBytes(channels int) int {
	return l.TileWidth * l.TileHeight * channels
}

// Contains reports whether tile (tx, ty) is inside the tile grid.
func (l Level) Contains(tx, ty int) bool {
	return tx >= 0 && ty >= 0 && tx < l.TilesX && ty < l.TilesY
}

func (l Level) String() string {
	return fmt.Sprintf("%dx%d (tiles %dx%d of %dx%d)", l.Width, l.Height, l.TilesX, l.TilesY, l.TileWidth, l.TileHeight)
}

// levelChain computes the level dimensions of a new pyramid. Levels halve
// by integer division; the first level below threshold in both dimensions
// ends the chain. At least one coarse level is produced unless halving
// yields a zero dimension.
func levelChain(width, height, threshold int) [][2]int {
	dims := [][2]int{{width, height}}
	for l := 1; ; l++ {
		w, h := width>>l, height>>l
		if w == 0 || h == 0 {
			break
		}
		dims = append(dims, [2]int{w, h})
		if w < threshold && h < threshold {
			break
		}
	}
	return dims
}
