package compression

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// ErrLZWCorrupted is returned for malformed LZW tiles.
var ErrLZWCorrupted = fmt.Errorf("%w (lzw)", ErrCorrupted)

// TIFF LZW codes. Code widths grow from 9 to 12 bits one code early
// compared to GIF, which is why compress/lzw cannot produce TIFF streams.
const (
	lzwClear    = 256
	lzwEOI      = 257
	lzwFirst    = 258
	lzwMinWidth = 9
	lzwMaxWidth = 12
	// The table is reset before the decoder would run out of 12-bit codes
	lzwLimit = 4094
)

type lzwEncoder struct {
	out   []byte
	acc   uint32
	nbits uint
	width uint
	next  int
	dict  map[uint32]uint16
}

func (e *lzwEncoder) emit(code int) {
	e.acc = e.acc<<e.width | uint32(code)
	e.nbits += e.width
	for e.nbits >= 8 {
		e.out = append(e.out, byte(e.acc>>(e.nbits-8)))
		e.nbits -= 8
	}
	e.acc &= 1<<e.nbits - 1
}

// advance accounts for the table entry the decoder adds after every code.
func (e *lzwEncoder) advance() {
	e.next++
	if e.next >= 1<<e.width && e.width < lzwMaxWidth {
		e.width++
	}
}

func (e *lzwEncoder) reset() {
	e.width = lzwMinWidth
	e.next = lzwFirst
	clear(e.dict)
}

// LZWCompress compresses src into a TIFF (MSB-first, early change) LZW stream.
func LZWCompress(src []byte) []byte {
	e := &lzwEncoder{
		out:  make([]byte, 0, len(src)/2+16),
		dict: make(map[uint32]uint16, lzwLimit),
	}
	e.reset()
	e.emit(lzwClear)

	if len(src) > 0 {
		prefix := int(src[0])
		for _, c := range src[1:] {
			key := uint32(prefix)<<8 | uint32(c)
			if code, ok := e.dict[key]; ok {
				prefix = int(code)
				continue
			}
			e.emit(prefix)
			e.dict[key] = uint16(e.next)
			e.advance()
			if e.next >= lzwLimit {
				e.emit(lzwClear)
				e.reset()
			}
			prefix = int(c)
		}
		e.emit(prefix)
		e.advance()
	}

	e.emit(lzwEOI)
	if e.nbits > 0 {
		e.out = append(e.out, byte(e.acc<<(8-e.nbits)))
	}
	return e.out
}

// LZWDecompressTo decompresses a TIFF LZW stream into dst, which must be
// exactly the decompressed size.
func LZWDecompressTo(dst, src []byte) error {
	r := lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
	defer r.Close()

	n, err := io.ReadFull(r, dst)
	if n != len(dst) {
		return ErrLZWCorrupted
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return ErrLZWCorrupted
	}
	return nil
}
