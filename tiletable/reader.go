package tiletable

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/internal/interleave"
)

// Options configures Open.
type Options struct {
	// Index selects the tile index. Empty selects IndexMap.
	Index IndexKind

	// SidecarPath is the SQLite index file. Empty selects path + ".idx.sqlite".
	SidecarPath string
}

// Reader decodes tiles of a tile table into interleaved RGB.
//
// The file stream is shared: concurrent ReadTile calls serialize only
// around the seek and read of the payload, never around decoding.
type Reader struct {
	mu     sync.Mutex // guards the file position
	file   *os.File
	size   int64
	header Header
	index  Index
	closed bool
}

// Open reads the header and record table of a tile table and builds the
// requested index.
func Open(path string, opts Options) (*Reader, error) {
	kind, err := ParseIndexKind(string(opts.Index))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	h, err := readHeader(f, st.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	records, err := readRecords(f, h)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var ix Index
	switch kind {
	case IndexLinear:
		ix = NewLinearIndex(records)
	case IndexMap:
		ix = NewMapIndex(records)
	case IndexSQLite:
		sidecar := opts.SidecarPath
		if sidecar == "" {
			sidecar = path + ".idx.sqlite"
		}
		ix, err = OpenSQLiteIndex(sidecar, h, records)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	return &Reader{file: f, size: st.Size(), header: h, index: ix}, nil
}

// Header returns the table header.
func (r *Reader) Header() Header {
	return r.header
}

// Levels returns the level geometry, finest first.
func (r *Reader) Levels() []Level {
	return r.header.Levels
}

// Format returns the payload format.
func (r *Reader) Format() Format {
	return r.header.Format
}

// ReadTile decodes one tile as RGB into dst, which must hold
// TileWidth*TileHeight*3 bytes. It reports false when the table has no
// record for a tile inside the grid.
func (r *Reader) ReadTile(level, tx, ty int, dst []byte) (bool, error) {
	if level < 0 || level >= len(r.header.Levels) {
		return false, ErrOutOfRange
	}
	lv := r.header.Levels[level]
	if tx < 0 || ty < 0 || tx >= lv.TilesX() || ty >= lv.TilesY() {
		return false, ErrOutOfRange
	}
	tile := compression.Tile{Width: lv.TileWidth, Height: lv.TileHeight, Channels: 3}
	if len(dst) != tile.Size() {
		return false, compression.ErrGeometry
	}

	rec, ok, err := r.index.Lookup(level, tx, ty)
	if err != nil || !ok {
		return false, err
	}
	payload, err := r.readPayload(rec)
	if err != nil {
		return false, err
	}

	switch r.header.Format {
	case FormatBGR:
		if len(payload) != len(dst) {
			return false, fmt.Errorf("%w: %d bytes for a %dx%d tile", ErrPayload, len(payload), tile.Width, tile.Height)
		}
		copy(dst, payload)
		interleave.SwapRB(dst, 3)
	case FormatJPEG:
		if err := compression.Decode(compression.JPEG, payload, tile, compression.Options{}, dst); err != nil {
			return false, fmt.Errorf("%w: %w", ErrPayload, err)
		}
	}
	return true, nil
}

func (r *Reader) readPayload(rec Record) ([]byte, error) {
	if rec.Offset > uint64(r.size) || uint64(rec.ByteCount) > uint64(r.size)-rec.Offset {
		return nil, fmt.Errorf("%w: %d byte tile at offset %d", ErrTruncated, rec.ByteCount, rec.Offset)
	}
	payload := make([]byte, rec.ByteCount)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, err := r.file.Seek(int64(rec.Offset), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r.file, payload); err != nil {
		return nil, fmt.Errorf("%w: tile at offset %d: %v", ErrTruncated, rec.Offset, err)
	}
	return payload, nil
}

// Close releases the file and the index.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.index.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
