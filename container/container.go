// Package container reads and writes tiled pyramidal TIFF files.
//
// Every resolution level is one image file directory (IFD) of a classic
// little-endian TIFF. Levels after the first carry the reduced-image
// subfile type. Files created by this package pre-allocate their tile
// offset tables so tiles can be appended in any order and the tables
// rewritten in place on Flush.
package container

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"sync"

	"github.com/mrjoshuak/go-pyramid/compression"
)

// Container errors
var (
	ErrNotTiled        = errors.New("container: image is not tiled")
	ErrReadOnly        = errors.New("container: file is read-only")
	ErrTooLarge        = errors.New("container: classic TIFF is limited to 4 GiB")
	ErrTileOutOfRange  = errors.New("container: tile coordinates out of range")
	ErrLevelOutOfRange = errors.New("container: level out of range")
	ErrSampleLayout    = errors.New("container: unsupported sample layout")
	ErrClosed          = errors.New("container: file is closed")
)

// maxFileSize is the largest offset a classic TIFF can address.
const maxFileSize = 1<<32 - 1

// Level describes the geometry of one resolution level.
type Level struct {
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
}

// TilesX returns the number of tile columns.
func (l Level) TilesX() int {
	return (l.Width + l.TileWidth - 1) / l.TileWidth
}

// TilesY returns the number of tile rows.
func (l Level) TilesY() int {
	return (l.Height + l.TileHeight - 1) / l.TileHeight
}

// ResolutionUnit is the value of the TIFF ResolutionUnit tag.
type ResolutionUnit uint16

// Resolution units
const (
	ResolutionNone       ResolutionUnit = 1
	ResolutionInch       ResolutionUnit = 2
	ResolutionCentimeter ResolutionUnit = 3
)

// Resolution is the pixel density of a level.
type Resolution struct {
	X, Y float64
	Unit ResolutionUnit
}

// SpacingMM returns the pixel spacing in millimetres, or 0, 0 when the
// resolution has no physical unit.
func (r Resolution) SpacingMM() (x, y float64) {
	var mmPerUnit float64
	switch r.Unit {
	case ResolutionCentimeter:
		mmPerUnit = 10
	case ResolutionInch:
		mmPerUnit = 25.4
	default:
		return 0, 0
	}
	if r.X > 0 {
		x = mmPerUnit / r.X
	}
	if r.Y > 0 {
		y = mmPerUnit / r.Y
	}
	return x, y
}

// directory is the in-memory state of one level.
type directory struct {
	Level
	compression compression.Compression
	photometric uint16
	predictor   bool
	jpegTables  []byte
	subfileType uint32
	resolution  Resolution
	description string
	metadata    map[string]string

	offsets []uint64
	counts  []uint64

	// File positions of rewritable values, set for created files only
	offsetsPos int64
	countsPos  int64
	xresPos    int64
	yresPos    int64
	unitPos    int64
	descPos    int64
	dirty      bool
}

func (d *directory) index(tx, ty int) (int, error) {
	if tx < 0 || ty < 0 || tx >= d.TilesX() || ty >= d.TilesY() {
		return 0, ErrTileOutOfRange
	}
	return ty*d.TilesX() + tx, nil
}

func (d *directory) codecOptions(quality int) compression.Options {
	return compression.Options{
		Quality:    quality,
		Predictor:  d.predictor,
		JPEGTables: d.jpegTables,
	}
}

// File is an open tiled TIFF. Files returned by Open are read-only;
// files returned by Create also accept tile writes.
//
// ReadTile may be called concurrently. Writes are serialized internally
// but are not ordered against concurrent reads of the same tile.
type File struct {
	mu       sync.RWMutex
	path     string
	channels int
	quality  int
	dirs     []*directory

	r      io.ReaderAt
	closer io.Closer
	f      *os.File // nil for read-only files
	end    int64
	closed bool
}

// Path returns the file name the container was opened or created with.
func (f *File) Path() string {
	return f.path
}

// Channels returns the number of samples per pixel.
func (f *File) Channels() int {
	return f.channels
}

// Writable reports whether the file accepts tile writes.
func (f *File) Writable() bool {
	return f.f != nil
}

// LevelCount returns the number of resolution levels.
func (f *File) LevelCount() int {
	return len(f.dirs)
}

// Levels returns the geometry of every level, finest first.
func (f *File) Levels() []Level {
	out := make([]Level, len(f.dirs))
	for i, d := range f.dirs {
		out[i] = d.Level
	}
	return out
}

// Compression returns the compression scheme of the given level.
func (f *File) Compression(level int) compression.Compression {
	if level < 0 || level >= len(f.dirs) {
		return 0
	}
	return f.dirs[level].compression
}

// Description returns the ImageDescription tag of the given level.
func (f *File) Description(level int) string {
	if level < 0 || level >= len(f.dirs) {
		return ""
	}
	return f.dirs[level].description
}

// Metadata returns the text tags of the given level keyed by TIFF tag
// name, such as "Software" or "ImageDescription". Created files have none.
func (f *File) Metadata(level int) map[string]string {
	if level < 0 || level >= len(f.dirs) {
		return nil
	}
	return maps.Clone(f.dirs[level].metadata)
}

// Resolution returns the resolution tags of the given level.
func (f *File) Resolution(level int) (Resolution, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if level < 0 || level >= len(f.dirs) {
		return Resolution{}, ErrLevelOutOfRange
	}
	return f.dirs[level].resolution, nil
}

// ReadTile decodes one tile into dst, which must hold
// TileWidth*TileHeight*Channels bytes. It reports false and leaves dst
// untouched when the tile has no stored payload.
func (f *File) ReadTile(level, tx, ty int, dst []byte) (bool, error) {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return false, ErrClosed
	}
	if level < 0 || level >= len(f.dirs) {
		f.mu.RUnlock()
		return false, ErrLevelOutOfRange
	}
	d := f.dirs[level]
	idx, err := d.index(tx, ty)
	if err != nil {
		f.mu.RUnlock()
		return false, err
	}
	offset, count := d.offsets[idx], d.counts[idx]
	f.mu.RUnlock()

	if count == 0 {
		return false, nil
	}

	payload := make([]byte, count)
	if n, err := f.r.ReadAt(payload, int64(offset)); n != len(payload) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return false, fmt.Errorf("container: reading tile %d,%d of level %d: %w", tx, ty, level, err)
	}

	t := compression.Tile{Width: d.TileWidth, Height: d.TileHeight, Channels: f.channels}
	if err := compression.Decode(d.compression, payload, t, d.codecOptions(f.quality), dst); err != nil {
		return false, fmt.Errorf("container: tile %d,%d of level %d: %w", tx, ty, level, err)
	}
	return true, nil
}

// Close flushes pending offset tables and releases the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	var err error
	if f.f != nil {
		err = f.flushLocked()
	}
	f.closed = true
	if cerr := f.closer.Close(); err == nil {
		err = cerr
	}
	return err
}
