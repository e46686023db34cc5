// Package tiletable reads and writes tile tables: a flat file of tile
// payloads followed by a record table locating each tile.
//
// Layout, little-endian:
//
//	magic "TTBL" | version u16 | format u16 | levels u32 | records u32 | table offset u64
//	levels x {width u32, height u32, tileWidth u32, tileHeight u32}
//	payloads ...
//	records x {coordX u32, coordY u32, coordZ u32, level u32, offset u64, byteCount u32}
//
// Record coordinates are tile columns and rows. The payload format (raw
// BGR or JPEG) applies to every tile of the file.
package tiletable

import (
	"errors"
	"fmt"
	"io"

	"github.com/mrjoshuak/go-pyramid/internal/binio"
)

// Tile table errors
var (
	ErrBadMagic     = errors.New("tiletable: not a tile table")
	ErrVersion      = errors.New("tiletable: unsupported version")
	ErrFormat       = errors.New("tiletable: unknown payload format")
	ErrTruncated    = errors.New("tiletable: truncated file")
	ErrHeader       = errors.New("tiletable: malformed header")
	ErrOutOfRange   = errors.New("tiletable: tile coordinates out of range")
	ErrPayload      = errors.New("tiletable: malformed tile payload")
	ErrClosed       = errors.New("tiletable: closed")
	ErrUnknownIndex = errors.New("tiletable: unknown index kind")
)

const (
	magic      = "TTBL"
	version    = 1
	headerSize = 24
	levelSize  = 16
	recordSize = 28

	// maxLevels bounds the level count read from a header.
	maxLevels = 64
)

// Format is the payload encoding of every tile in a table.
type Format uint16

// Payload formats
const (
	FormatBGR  Format = 0
	FormatJPEG Format = 1
)

func (f Format) String() string {
	switch f {
	case FormatBGR:
		return "bgr"
	case FormatJPEG:
		return "jpeg"
	}
	return fmt.Sprintf("format(%d)", uint16(f))
}

// Level is the geometry of one resolution level.
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

// Record locates one tile payload.
type Record struct {
	X, Y, Z   uint32
	Level     uint32
	Offset    uint64
	ByteCount uint32
}

// Header is the fixed part of a tile table.
type Header struct {
	Format      Format
	Levels      []Level
	RecordCount int
	TableOffset int64
}

func (h Header) size() int {
	return headerSize + levelSize*len(h.Levels)
}

func (h Header) marshal() []byte {
	w := binio.NewBufferWriter(h.size())
	w.WriteBytes([]byte(magic))
	w.WriteUint16(version)
	w.WriteUint16(uint16(h.Format))
	w.WriteUint32(uint32(len(h.Levels)))
	w.WriteUint32(uint32(h.RecordCount))
	w.WriteUint64(uint64(h.TableOffset))
	for _, l := range h.Levels {
		w.WriteUint32(uint32(l.Width))
		w.WriteUint32(uint32(l.Height))
		w.WriteUint32(uint32(l.TileWidth))
		w.WriteUint32(uint32(l.TileHeight))
	}
	return w.Bytes()
}

// readHeader decodes the header of a size-byte file. Counts are checked
// against size before anything is allocated for them.
func readHeader(r io.ReaderAt, size int64) (Header, error) {
	if size < headerSize {
		return Header{}, ErrTruncated
	}
	br, err := binio.ReadAt(r, 0, headerSize)
	if err != nil {
		return Header{}, ErrTruncated
	}
	m, _ := br.ReadBytes(4)
	if string(m) != magic {
		return Header{}, ErrBadMagic
	}
	v, _ := br.ReadUint16()
	if v != version {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	format, _ := br.ReadUint16()
	if Format(format) != FormatBGR && Format(format) != FormatJPEG {
		return Header{}, fmt.Errorf("%w: %d", ErrFormat, format)
	}
	nLevels, _ := br.ReadUint32()
	nRecords, _ := br.ReadUint32()
	tableOffset, _ := br.ReadUint64()

	if nLevels == 0 || nLevels > maxLevels {
		return Header{}, fmt.Errorf("%w: %d levels", ErrHeader, nLevels)
	}
	if headerSize+levelSize*int64(nLevels) > size {
		return Header{}, fmt.Errorf("%w: %d levels", ErrTruncated, nLevels)
	}
	if tableOffset > uint64(size) || uint64(nRecords)*recordSize > uint64(size)-tableOffset {
		return Header{}, fmt.Errorf("%w: %d records at offset %d", ErrTruncated, nRecords, tableOffset)
	}

	h := Header{
		Format:      Format(format),
		Levels:      make([]Level, nLevels),
		RecordCount: int(nRecords),
		TableOffset: int64(tableOffset),
	}
	br, err = binio.ReadAt(r, headerSize, levelSize*int(nLevels))
	if err != nil {
		return Header{}, ErrTruncated
	}
	for i := range h.Levels {
		var v [4]uint32
		for j := range v {
			v[j], _ = br.ReadUint32()
		}
		h.Levels[i] = Level{Width: int(v[0]), Height: int(v[1]), TileWidth: int(v[2]), TileHeight: int(v[3])}
		if v[0] == 0 || v[1] == 0 || v[2] == 0 || v[3] == 0 {
			return Header{}, fmt.Errorf("%w: invalid level %d geometry", ErrHeader, i)
		}
	}
	return h, nil
}

// readRecords decodes the record table. readHeader has checked that it
// fits in the file.
func readRecords(r io.ReaderAt, h Header) ([]Record, error) {
	br, err := binio.ReadAt(r, h.TableOffset, recordSize*h.RecordCount)
	if err != nil {
		return nil, ErrTruncated
	}
	records := make([]Record, h.RecordCount)
	for i := range records {
		rec := &records[i]
		rec.X, _ = br.ReadUint32()
		rec.Y, _ = br.ReadUint32()
		rec.Z, _ = br.ReadUint32()
		rec.Level, _ = br.ReadUint32()
		rec.Offset, _ = br.ReadUint64()
		rec.ByteCount, _ = br.ReadUint32()
	}
	return records, nil
}

func appendRecord(w *binio.BufferWriter, rec Record) {
	w.WriteUint32(rec.X)
	w.WriteUint32(rec.Y)
	w.WriteUint32(rec.Z)
	w.WriteUint32(rec.Level)
	w.WriteUint64(rec.Offset)
	w.WriteUint32(rec.ByteCount)
}
