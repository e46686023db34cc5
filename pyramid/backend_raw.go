package pyramid

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// rawBackend keeps every level uncompressed in one memory-mapped
// temporary file. Level l starts at levels[l].Offset and is stored row by
// row with no tile padding.
type rawBackend struct {
	levels   []Level
	channels int
	mapping  *mappedFile
	data     []byte
	path     string
	logger   *slog.Logger
}

// newRawBackend lays out the levels and assigns their offsets.
func newRawBackend(levels []Level, channels int, dir string, logger *slog.Logger) (*rawBackend, error) {
	var size int64
	for i := range levels {
		levels[i].Offset = size
		size += int64(levels[i].Width) * int64(levels[i].Height) * int64(channels)
	}

	path := filepath.Join(dir, "pyramid-"+uuid.NewString()+".raw")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}

	b := &rawBackend{levels: levels, channels: channels, path: path, logger: logger}
	m, err := mapFile(f, size)
	if err != nil {
		// Fall back to the heap when the file cannot be mapped
		logger.Warn("memory mapping failed, using heap storage", "path", path, "size", size, "err", err)
		f.Close()
		os.Remove(path)
		b.path = ""
		b.data = make([]byte, size)
		return b, nil
	}
	b.mapping = m
	b.data = m.data
	return b, nil
}

func (b *rawBackend) Kind() Kind { return RawMemory }

// rows calls fn for every level row of tile (tx, ty) with the level and
// tile byte slices of that row.
func (b *rawBackend) rows(level, tx, ty int, tile []byte, fn func(levelRow, tileRow []byte)) error {
	if level < 0 || level >= len(b.levels) {
		return ErrOutOfRange
	}
	lv := b.levels[level]
	if !lv.Contains(tx, ty) {
		return ErrOutOfRange
	}
	if len(tile) != lv.TileBytes(b.channels) {
		return fmt.Errorf("%w: tile buffer of %d bytes", ErrOutOfRange, len(tile))
	}

	x0, y0 := tx*lv.TileWidth, ty*lv.TileHeight
	w := min(lv.TileWidth, lv.Width-x0) * b.channels
	h := min(lv.TileHeight, lv.Height-y0)
	stride := lv.Width * b.channels
	tileStride := lv.TileWidth * b.channels
	base := lv.Offset + int64(y0*stride+x0*b.channels)
	for r := 0; r < h; r++ {
		off := base + int64(r*stride)
		fn(b.data[off:off+int64(w)], tile[r*tileStride:r*tileStride+w])
	}
	return nil
}

// ReadTile copies the in-level part of a tile. Raw tiles are always present.
func (b *rawBackend) ReadTile(level, tx, ty int, dst []byte) (bool, error) {
	err := b.rows(level, tx, ty, dst, func(levelRow, tileRow []byte) {
		copy(tileRow, levelRow)
	})
	return err == nil, err
}

func (b *rawBackend) WriteTile(level, tx, ty int, src []byte) error {
	return b.rows(level, tx, ty, src, func(levelRow, tileRow []byte) {
		copy(levelRow, tileRow)
	})
}

func (b *rawBackend) WriteBlank(level, tx, ty int) error {
	bg := background(b.channels)
	lv := b.levels[min(max(level, 0), len(b.levels)-1)]
	tile := make([]byte, lv.TileBytes(b.channels))
	fill(tile, bg)
	return b.WriteTile(level, tx, ty, tile)
}

// Close unmaps the storage and removes the temporary file.
func (b *rawBackend) Close() error {
	var err error
	if b.mapping != nil {
		err = b.mapping.Close()
		b.mapping = nil
	}
	b.data = nil
	if b.path != "" {
		if rmErr := os.Remove(b.path); rmErr != nil && !os.IsNotExist(rmErr) {
			b.logger.Warn("removing temporary level file", "path", b.path, "err", rmErr)
		}
		b.path = ""
	}
	return err
}
