package pyramid

import "fmt"

// Kind identifies the storage backing a pyramid.
type Kind int

// Backend kinds
const (
	// RawMemory stores uncompressed levels in a memory-mapped temporary file.
	RawMemory Kind = iota
	// WritableContainer stores tiles in a temporary tiled TIFF.
	WritableContainer
	// Container is an existing tiled TIFF opened read-only.
	Container
	// ReadOnlySlide reads regions from a native slide reader.
	ReadOnlySlide
	// ReadOnlyTileTable reads tiles from a tile table.
	ReadOnlyTileTable
)

var kindNames = map[Kind]string{
	RawMemory:         "raw-memory",
	WritableContainer: "writable-container",
	Container:         "container",
	ReadOnlySlide:     "slide",
	ReadOnlyTileTable: "tile-table",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Writable reports whether tiles of this kind can be written.
func (k Kind) Writable() bool {
	return k == RawMemory || k == WritableContainer
}

// backend is the storage behind a pyramid. Every backend implements
// either tileReader or regionReader; writable ones also implement
// tileWriter.
type backend interface {
	Kind() Kind
	Close() error
}

// tileReader decodes one whole tile in the pyramid's channel layout into
// dst. present is false when the tile has no payload.
type tileReader interface {
	ReadTile(level, tx, ty int, dst []byte) (present bool, err error)
}

// tileWriter stores one whole tile in the pyramid's channel layout.
type tileWriter interface {
	WriteTile(level, tx, ty int, src []byte) error

	// WriteBlank stores a tile that reads back as background.
	WriteBlank(level, tx, ty int) error
}

// regionReader fills dst with a w*h region of a level. The region is
// inside the level.
type regionReader interface {
	ReadRegion(level, x, y, w, h int, dst []byte) error
}

// spacingWriter persists the physical pixel spacing.
type spacingWriter interface {
	WriteSpacing(levels []Level, x, y float64) error
}

// magnificationWriter persists the objective magnification.
type magnificationWriter interface {
	WriteMagnification(mag float64) error
}

// saver copies the backend's storage to a standalone file.
type saver interface {
	Save(path string) error
}
