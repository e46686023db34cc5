package container

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/internal/binio"
)

// DescriptionSize is the space reserved for the ImageDescription of level
// 0 in created files, including the terminating NUL.
const DescriptionSize = 128

// Options configures a created container.
type Options struct {
	// Compression applies to every level. It must be encodable.
	Compression compression.Compression

	// Quality is the lossy quality from 1 to 100. 0 selects the codec default.
	Quality int

	// Predictor enables horizontal differencing for LZW, Deflate and Zstandard.
	Predictor bool
}

// Create creates a tiled TIFF with one directory per level. Channels must
// be 1 or 3. All tiles start without payload and read as absent until
// written.
func Create(path string, levels []Level, channels int, opts Options) (*File, error) {
	if len(levels) == 0 {
		return nil, errors.New("container: no levels")
	}
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("%w: %d channels", ErrSampleLayout, channels)
	}
	if !opts.Compression.CanEncode() {
		return nil, fmt.Errorf("%w: %v", compression.ErrUnsupported, opts.Compression)
	}

	photometric := uint16(photometricRGB)
	switch {
	case channels == 1:
		photometric = photometricBlackIsZero
	case opts.Compression == compression.JPEG:
		photometric = photometricYCbCr
	}

	w := binio.NewBufferWriter(4096)
	w.WriteBytes([]byte("II"))
	w.WriteUint16(42)
	w.WriteUint32(0)
	next := int64(4)

	dirs := make([]*directory, len(levels))
	for i, lv := range levels {
		if lv.Width <= 0 || lv.Height <= 0 || lv.TileWidth <= 0 || lv.TileHeight <= 0 {
			return nil, fmt.Errorf("container: invalid level %d geometry %+v", i, lv)
		}
		d := &directory{
			Level:       lv,
			compression: opts.Compression,
			photometric: photometric,
			predictor:   opts.Predictor && opts.Compression.Predicted(),
			resolution:  Resolution{X: 1, Y: 1, Unit: ResolutionNone},
		}
		if i > 0 {
			d.subfileType = subfileReducedImage
		}
		n := lv.TilesX() * lv.TilesY()
		d.offsets = make([]uint64, n)
		d.counts = make([]uint64, n)

		if err := w.PutUint32At(int(next), uint32(w.Len())); err != nil {
			return nil, err
		}
		pos, nextPos := writeIFD(w, d.entries(channels))
		next = nextPos
		d.offsetsPos = pos[tagTileOffsets]
		d.countsPos = pos[tagTileByteCounts]
		d.xresPos = pos[tagXResolution]
		d.yresPos = pos[tagYResolution]
		d.unitPos = pos[tagResolutionUnit]
		d.descPos = pos[tagImageDescription]
		dirs[i] = d
	}
	if w.Len() > maxFileSize {
		return nil, ErrTooLarge
	}

	fh, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := fh.WriteAt(w.Bytes(), 0); err != nil {
		fh.Close()
		os.Remove(path)
		return nil, err
	}

	return &File{
		path:     path,
		channels: channels,
		quality:  opts.Quality,
		dirs:     dirs,
		r:        fh,
		closer:   fh,
		f:        fh,
		end:      int64(w.Len()),
	}, nil
}

// entries returns the IFD entries of a created level in ascending tag order.
func (d *directory) entries(channels int) []entry {
	bits := make([]uint16, channels)
	formats := make([]uint16, channels)
	for i := range bits {
		bits[i] = 8
		formats[i] = sampleFormatUint
	}
	n := d.TilesX() * d.TilesY()

	e := []entry{
		longEntry(tagNewSubfileType, d.subfileType),
		longEntry(tagImageWidth, uint32(d.Width)),
		longEntry(tagImageLength, uint32(d.Height)),
		shortEntry(tagBitsPerSample, bits...),
		shortEntry(tagCompression, uint16(d.compression)),
		shortEntry(tagPhotometric, d.photometric),
	}
	if d.subfileType == 0 {
		e = append(e, asciiEntry(tagImageDescription, DescriptionSize))
	}
	e = append(e,
		shortEntry(tagOrientation, orientationTopLeft),
		shortEntry(tagSamplesPerPixel, uint16(channels)),
		rationalEntry(tagXResolution, d.resolution.X),
		rationalEntry(tagYResolution, d.resolution.Y),
		shortEntry(tagPlanarConfiguration, planarContiguous),
		shortEntry(tagResolutionUnit, uint16(d.resolution.Unit)),
	)
	if d.predictor {
		e = append(e, shortEntry(tagPredictor, predictorHorizontal))
	}
	e = append(e,
		longEntry(tagTileWidth, uint32(d.TileWidth)),
		longEntry(tagTileLength, uint32(d.TileHeight)),
		zeroLongEntry(tagTileOffsets, n),
		zeroLongEntry(tagTileByteCounts, n),
		shortEntry(tagSampleFormat, formats...),
	)
	if d.photometric == photometricYCbCr {
		e = append(e, shortEntry(tagYCbCrSubSampling, 2, 2))
	}
	return e
}

func (f *File) locate(level, tx, ty int) (*directory, int, error) {
	if level < 0 || level >= len(f.dirs) {
		return nil, 0, ErrLevelOutOfRange
	}
	d := f.dirs[level]
	idx, err := d.index(tx, ty)
	if err != nil {
		return nil, 0, err
	}
	return d, idx, nil
}

// WriteTile encodes one whole tile of interleaved pixels and appends it
// to the file. Rewriting a tile appends a new payload; the old one is
// left unreferenced.
func (f *File) WriteTile(level, tx, ty int, src []byte) error {
	if f.f == nil {
		return ErrReadOnly
	}
	d, idx, err := f.locate(level, tx, ty)
	if err != nil {
		return err
	}

	t := compression.Tile{Width: d.TileWidth, Height: d.TileHeight, Channels: f.channels}
	payload, err := compression.Encode(d.compression, src, t, d.codecOptions(f.quality))
	if err != nil {
		return fmt.Errorf("container: tile %d,%d of level %d: %w", tx, ty, level, err)
	}
	return f.store(d, idx, payload)
}

// WriteBlank clears the payload of a tile so it reads as absent.
func (f *File) WriteBlank(level, tx, ty int) error {
	if f.f == nil {
		return ErrReadOnly
	}
	d, idx, err := f.locate(level, tx, ty)
	if err != nil {
		return err
	}
	return f.store(d, idx, nil)
}

func (f *File) store(d *directory, idx int, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	d.dirty = true
	if len(payload) == 0 {
		d.offsets[idx], d.counts[idx] = 0, 0
		return nil
	}
	if f.end+int64(len(payload)) > maxFileSize {
		return ErrTooLarge
	}
	if _, err := f.f.WriteAt(payload, f.end); err != nil {
		return fmt.Errorf("container: writing tile: %w", err)
	}
	d.offsets[idx] = uint64(f.end)
	d.counts[idx] = uint64(len(payload))
	// Keep payloads word aligned
	f.end += int64(len(payload) + len(payload)%2)
	return nil
}

// SetResolution rewrites the resolution tags of a level in place.
func (f *File) SetResolution(level int, res Resolution) error {
	if f.f == nil {
		return ErrReadOnly
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if level < 0 || level >= len(f.dirs) {
		return ErrLevelOutOfRange
	}
	d := f.dirs[level]

	unit := binio.NewBufferWriter(2)
	unit.WriteUint16(uint16(res.Unit))
	writes := []struct {
		pos  int64
		data []byte
	}{
		{d.xresPos, rational(res.X)},
		{d.yresPos, rational(res.Y)},
		{d.unitPos, unit.Bytes()},
	}
	for _, wr := range writes {
		if _, err := f.f.WriteAt(wr.data, wr.pos); err != nil {
			return fmt.Errorf("container: rewriting resolution: %w", err)
		}
	}
	d.resolution = res
	return nil
}

// SetDescription rewrites the ImageDescription of level 0 in place. The
// text must be shorter than DescriptionSize bytes.
func (f *File) SetDescription(desc string) error {
	if f.f == nil {
		return ErrReadOnly
	}
	if len(desc) >= DescriptionSize || strings.IndexByte(desc, 0) >= 0 {
		return fmt.Errorf("container: description of %d bytes does not fit %d", len(desc), DescriptionSize)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	d := f.dirs[0]

	buf := make([]byte, DescriptionSize)
	copy(buf, desc)
	if _, err := f.f.WriteAt(buf, d.descPos); err != nil {
		return fmt.Errorf("container: rewriting description: %w", err)
	}
	d.description = desc
	return nil
}

// Flush rewrites the offset tables of every level changed since the last
// flush.
func (f *File) Flush() error {
	if f.f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	for _, d := range f.dirs {
		if !d.dirty {
			continue
		}
		offsets := binio.NewBufferWriter(4 * len(d.offsets))
		counts := binio.NewBufferWriter(4 * len(d.counts))
		for i := range d.offsets {
			offsets.WriteUint32(uint32(d.offsets[i]))
			counts.WriteUint32(uint32(d.counts[i]))
		}
		if _, err := f.f.WriteAt(offsets.Bytes(), d.offsetsPos); err != nil {
			return fmt.Errorf("container: writing tile offsets: %w", err)
		}
		if _, err := f.f.WriteAt(counts.Bytes(), d.countsPos); err != nil {
			return fmt.Errorf("container: writing tile byte counts: %w", err)
		}
		d.dirty = false
	}
	return nil
}
