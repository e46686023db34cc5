package container

import (
	"math"

	"github.com/mrjoshuak/go-pyramid/internal/binio"
)

// TIFF tags used by this package.
const (
	tagNewSubfileType      = 254
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagImageDescription    = 270
	tagOrientation         = 274
	tagSamplesPerPixel     = 277
	tagXResolution         = 282
	tagYResolution         = 283
	tagPlanarConfiguration = 284
	tagResolutionUnit      = 296
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagJPEGTables          = 347
	tagYCbCrSubSampling    = 530
)

// Tag values
const (
	subfileReducedImage   = 1
	subfileMask           = 4
	predictorHorizontal   = 2
	planarContiguous      = 1
	sampleFormatUint      = 1
	orientationTopLeft    = 1
	resolutionDenominator = 1000
)

// Photometric interpretations
const (
	photometricBlackIsZero = 1
	photometricRGB         = 2
	photometricYCbCr       = 6
)

// TIFF field types
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeUndefined = 7
	typeLong8     = 16
)

// entry is one IFD entry before layout.
type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortEntry(tag uint16, vals ...uint16) entry {
	w := binio.NewBufferWriter(2 * len(vals))
	for _, v := range vals {
		w.WriteUint16(v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vals)), data: w.Bytes()}
}

func longEntry(tag uint16, vals ...uint32) entry {
	w := binio.NewBufferWriter(4 * len(vals))
	for _, v := range vals {
		w.WriteUint32(v)
	}
	return entry{tag: tag, typ: typeLong, count: uint32(len(vals)), data: w.Bytes()}
}

// asciiEntry reserves n NUL bytes of text.
func asciiEntry(tag uint16, n int) entry {
	return entry{tag: tag, typ: typeASCII, count: uint32(n), data: make([]byte, n)}
}

// zeroLongEntry reserves n LONG values.
func zeroLongEntry(tag uint16, n int) entry {
	return entry{tag: tag, typ: typeLong, count: uint32(n), data: make([]byte, 4*n)}
}

func rationalEntry(tag uint16, v float64) entry {
	return entry{tag: tag, typ: typeRational, count: 1, data: rational(v)}
}

func rational(v float64) []byte {
	w := binio.NewBufferWriter(8)
	num, den := toRational(v)
	w.WriteUint32(num)
	w.WriteUint32(den)
	return w.Bytes()
}

// toRational approximates v with a fixed denominator, falling back to 1
// when the numerator would overflow.
func toRational(v float64) (num, den uint32) {
	if v <= 0 || math.IsNaN(v) {
		return 0, 1
	}
	if scaled := math.Round(v * resolutionDenominator); scaled <= math.MaxUint32 {
		return uint32(scaled), resolutionDenominator
	}
	return uint32(min(math.Round(v), math.MaxUint32)), 1
}

// writeIFD lays out one directory at the end of w, followed by the values
// that do not fit in an entry. It returns the absolute position of each
// tag's value and the position of the next-IFD pointer.
func writeIFD(w *binio.BufferWriter, entries []entry) (map[uint16]int64, int64) {
	start := w.Len()
	extra := start + 2 + 12*len(entries) + 4
	pos := make(map[uint16]int64, len(entries))

	w.WriteUint16(uint16(len(entries)))
	var deferred [][]byte
	for _, e := range entries {
		w.WriteUint16(e.tag)
		w.WriteUint16(e.typ)
		w.WriteUint32(e.count)
		if len(e.data) <= 4 {
			pos[e.tag] = int64(w.Len())
			w.WriteBytes(e.data)
			w.WriteZeros(4 - len(e.data))
			continue
		}
		pos[e.tag] = int64(extra)
		w.WriteUint32(uint32(extra))
		deferred = append(deferred, e.data)
		extra += len(e.data) + len(e.data)%2
	}
	next := int64(w.Len())
	w.WriteUint32(0)

	for _, d := range deferred {
		w.WriteBytes(d)
		if len(d)%2 == 1 {
			w.WriteZeros(1)
		}
	}
	return pos, next
}
