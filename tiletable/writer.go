package tiletable

import (
	"fmt"
	"os"
	"sync"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/internal/binio"
	"github.com/mrjoshuak/go-pyramid/internal/interleave"
)

// Writer appends RGB tiles to a new tile table. The record table and
// header are written by Close.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	header  Header
	quality int
	records []Record
	end     int64
	closed  bool
}

// Create starts a tile table. quality applies to FormatJPEG only.
func Create(path string, format Format, levels []Level, quality int) (*Writer, error) {
	if format != FormatBGR && format != FormatJPEG {
		return nil, fmt.Errorf("%w: %d", ErrFormat, format)
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("tiletable: no levels")
	}
	for i, l := range levels {
		if l.Width <= 0 || l.Height <= 0 || l.TileWidth <= 0 || l.TileHeight <= 0 {
			return nil, fmt.Errorf("tiletable: invalid level %d geometry %+v", i, l)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	h := Header{Format: format, Levels: levels}
	// Placeholder until Close knows the record table
	if _, err := f.WriteAt(h.marshal(), 0); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{file: f, header: h, quality: quality, end: int64(h.size())}, nil
}

// WriteTile encodes one whole RGB tile.
func (w *Writer) WriteTile(level, tx, ty int, rgb []byte) error {
	if level < 0 || level >= len(w.header.Levels) {
		return ErrOutOfRange
	}
	lv := w.header.Levels[level]
	if tx < 0 || ty < 0 || tx >= lv.TilesX() || ty >= lv.TilesY() {
		return ErrOutOfRange
	}
	tile := compression.Tile{Width: lv.TileWidth, Height: lv.TileHeight, Channels: 3}
	if len(rgb) != tile.Size() {
		return compression.ErrGeometry
	}

	var payload []byte
	switch w.header.Format {
	case FormatBGR:
		payload = make([]byte, len(rgb))
		copy(payload, rgb)
		interleave.SwapRB(payload, 3)
	case FormatJPEG:
		var err error
		payload, err = compression.Encode(compression.JPEG, rgb, tile, compression.Options{Quality: w.quality})
		if err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.file.WriteAt(payload, w.end); err != nil {
		return err
	}
	w.records = append(w.records, Record{
		X:         uint32(tx),
		Y:         uint32(ty),
		Level:     uint32(level),
		Offset:    uint64(w.end),
		ByteCount: uint32(len(payload)),
	})
	w.end += int64(len(payload))
	return nil
}

// Close writes the record table and the final header.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	table := binio.NewBufferWriter(recordSize * len(w.records))
	for _, rec := range w.records {
		appendRecord(table, rec)
	}
	w.header.RecordCount = len(w.records)
	w.header.TableOffset = w.end

	_, err := w.file.WriteAt(table.Bytes(), w.end)
	if err == nil {
		_, err = w.file.WriteAt(w.header.marshal(), 0)
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
