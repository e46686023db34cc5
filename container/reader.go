package container

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/tiff"
	"golang.org/x/exp/mmap"

	"github.com/mrjoshuak/go-pyramid/compression"
)

// Open maps an existing tiled TIFF read-only. Every tiled directory that
// is not a transparency mask becomes a level, ordered by decreasing
// width; stripped directories such as label and macro images are skipped.
func Open(path string) (*File, error) {
	mm, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := parse(path, mm, int64(mm.Len()))
	if err != nil {
		mm.Close()
		return nil, err
	}
	f.closer = mm
	return f, nil
}

func parse(path string, r io.ReaderAt, size int64) (*File, error) {
	t, err := tiff.Parse(io.NewSectionReader(r, 0, size), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("container: parsing %s: %w", path, err)
	}

	var dirs []*directory
	channels := 0
	for i, ifd := range t.IFDs() {
		if !ifd.HasField(tagTileWidth) || fieldUint(ifd, tagNewSubfileType, 0)&subfileMask != 0 {
			continue
		}
		d, spp, err := readDirectory(ifd)
		if err != nil {
			return nil, fmt.Errorf("container: %s directory %d: %w", path, i, err)
		}
		if channels == 0 {
			channels = spp
		}
		if spp != channels {
			continue
		}
		dirs = append(dirs, d)
	}
	if len(dirs) == 0 {
		return nil, ErrNotTiled
	}
	sort.SliceStable(dirs, func(a, b int) bool {
		return dirs[a].Width > dirs[b].Width
	})

	return &File{
		path:     path,
		channels: channels,
		dirs:     dirs,
		r:        r,
	}, nil
}

func readDirectory(ifd tiff.IFD) (*directory, int, error) {
	spp := int(fieldUint(ifd, tagSamplesPerPixel, 1))
	if spp != 1 && spp != 3 && spp != 4 {
		return nil, 0, fmt.Errorf("%w: %d samples per pixel", ErrSampleLayout, spp)
	}
	for _, b := range fieldUints(ifd, tagBitsPerSample) {
		if b != 8 {
			return nil, 0, fmt.Errorf("%w: %d bits per sample", ErrSampleLayout, b)
		}
	}
	if spp > 1 && fieldUint(ifd, tagPlanarConfiguration, planarContiguous) != planarContiguous {
		return nil, 0, fmt.Errorf("%w: planar configuration", ErrSampleLayout)
	}

	d := &directory{
		Level: Level{
			Width:      int(fieldUint(ifd, tagImageWidth, 0)),
			Height:     int(fieldUint(ifd, tagImageLength, 0)),
			TileWidth:  int(fieldUint(ifd, tagTileWidth, 0)),
			TileHeight: int(fieldUint(ifd, tagTileLength, 0)),
		},
		compression: compression.Compression(fieldUint(ifd, tagCompression, uint64(compression.None))),
		photometric: uint16(fieldUint(ifd, tagPhotometric, photometricRGB)),
		predictor:   fieldUint(ifd, tagPredictor, 1) == predictorHorizontal,
		subfileType: uint32(fieldUint(ifd, tagNewSubfileType, 0)),
		offsets:     fieldUints(ifd, tagTileOffsets),
		counts:      fieldUints(ifd, tagTileByteCounts),
		resolution: Resolution{
			X:    fieldRational(ifd, tagXResolution),
			Y:    fieldRational(ifd, tagYResolution),
			Unit: ResolutionUnit(fieldUint(ifd, tagResolutionUnit, uint64(ResolutionInch))),
		},
	}
	if d.Width <= 0 || d.Height <= 0 || d.TileWidth <= 0 || d.TileHeight <= 0 {
		return nil, 0, fmt.Errorf("%w: invalid geometry %+v", ErrNotTiled, d.Level)
	}
	n := d.TilesX() * d.TilesY()
	if len(d.offsets) < n || len(d.counts) < n {
		return nil, 0, fmt.Errorf("container: %d tile offsets for %d tiles", len(d.offsets), n)
	}
	if ifd.HasField(tagJPEGTables) {
		d.jpegTables = ifd.GetField(tagJPEGTables).Value().Bytes()
	}
	d.metadata = asciiFields(ifd)
	d.description = d.metadata["ImageDescription"]
	return d, spp, nil
}

// asciiFields collects the text fields of a directory keyed by tag name.
func asciiFields(ifd tiff.IFD) map[string]string {
	out := make(map[string]string)
	for _, f := range ifd.Fields() {
		if f.Type().ID() != typeASCII {
			continue
		}
		name := f.Tag().Name()
		if name == "" {
			name = fmt.Sprintf("Tag%d", f.Tag().ID())
		}
		if v := strings.TrimRight(string(f.Value().Bytes()), "\x00"); v != "" {
			out[name] = v
		}
	}
	return out
}

// fieldUints decodes an unsigned integer field of any width.
func fieldUints(ifd tiff.IFD, tag uint16) []uint64 {
	if !ifd.HasField(tag) {
		return nil
	}
	f := ifd.GetField(tag)
	v := f.Value()
	b, order := v.Bytes(), v.Order()

	var size int
	switch f.Type().ID() {
	case typeByte, typeUndefined:
		size = 1
	case typeShort:
		size = 2
	case typeLong:
		size = 4
	case typeLong8:
		size = 8
	default:
		return nil
	}

	out := make([]uint64, min(len(b)/size, int(f.Count())))
	for i := range out {
		p := b[i*size:]
		switch size {
		case 1:
			out[i] = uint64(p[0])
		case 2:
			out[i] = uint64(order.Uint16(p))
		case 4:
			out[i] = uint64(order.Uint32(p))
		default:
			out[i] = order.Uint64(p)
		}
	}
	return out
}

func fieldUint(ifd tiff.IFD, tag uint16, def uint64) uint64 {
	if v := fieldUints(ifd, tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func fieldRational(ifd tiff.IFD, tag uint16) float64 {
	if !ifd.HasField(tag) {
		return 0
	}
	f := ifd.GetField(tag)
	if f.Type().ID() != typeRational {
		return 0
	}
	v := f.Value()
	b := v.Bytes()
	if len(b) < 8 {
		return 0
	}
	num, den := v.Order().Uint32(b), v.Order().Uint32(b[4:])
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
