// Package binio provides little-endian binary encoding and decoding helpers
// for the on-disk structures of tiled containers and tile tables.
//
// Every multi-byte value in those formats is little-endian. Readers are
// bounds-checked; BufferWriter grows as needed and supports patching
// values at earlier positions, which is how offset tables and directory
// links are filled in after their targets are known.
package binio

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	// ErrShortBuffer is returned when a read or patch runs past the end of the data.
	ErrShortBuffer = errors.New("binio: buffer too short")

	// ErrNegativeSize is returned when a size parameter is negative.
	ErrNegativeSize = errors.New("binio: negative size")
)

// ByteOrder is the byte order of every structure handled by this package.
var ByteOrder = binary.LittleEndian

// Reader reads little-endian values from a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader from a byte slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadAt reads exactly n bytes at off from r and wraps them in a Reader.
func ReadAt(r io.ReaderAt, off int64, n int) (*Reader, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	buf := make([]byte, n)
	got, err := r.ReadAt(buf, off)
	if got == n {
		return NewReader(buf), nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, ErrShortBuffer
	}
	return nil, err
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	if r.pos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

// Pos returns the current read position.
func (r *Reader) Pos() int {
	return r.pos
}

// SetPos moves the read position.
func (r *Reader) SetPos(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return ErrShortBuffer
	}
	r.pos = pos
	return nil
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return ErrShortBuffer
	}
	r.pos += n
	return nil
}

// ReadBytes reads n bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadUint16 reads an unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, ErrShortBuffer
	}
	v := ByteOrder.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrShortBuffer
	}
	v := ByteOrder.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 reads an unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, ErrShortBuffer
	}
	v := ByteOrder.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// BufferWriter is a growing little-endian buffer.
type BufferWriter struct {
	buf []byte
}

// NewBufferWriter creates a BufferWriter with an initial capacity.
func NewBufferWriter(capacity int) *BufferWriter {
	return &BufferWriter{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written.
func (w *BufferWriter) Len() int {
	return len(w.buf)
}

// Bytes returns the written data. The slice is valid until the next write.
func (w *BufferWriter) Bytes() []byte {
	return w.buf
}

// Reset clears the buffer.
func (w *BufferWriter) Reset() {
	w.buf = w.buf[:0]
}

// WriteBytes appends a byte slice.
func (w *BufferWriter) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteZeros appends n zero bytes.
func (w *BufferWriter) WriteZeros(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// WriteUint16 appends an unsigned 16-bit integer.
func (w *BufferWriter) WriteUint16(v uint16) {
	w.buf = ByteOrder.AppendUint16(w.buf, v)
}

// WriteUint32 appends an unsigned 32-bit integer.
func (w *BufferWriter) WriteUint32(v uint32) {
	w.buf = ByteOrder.AppendUint32(w.buf, v)
}

// WriteUint64 appends an unsigned 64-bit integer.
func (w *BufferWriter) WriteUint64(v uint64) {
	w.buf = ByteOrder.AppendUint64(w.buf, v)
}

// PutUint16At overwrites a 16-bit value at an earlier position.
func (w *BufferWriter) PutUint16At(pos int, v uint16) error {
	if pos < 0 || pos+2 > len(w.buf) {
		return ErrShortBuffer
	}
	ByteOrder.PutUint16(w.buf[pos:], v)
	return nil
}

// PutUint32At overwrites a 32-bit value at an earlier position.
func (w *BufferWriter) PutUint32At(pos int, v uint32) error {
	if pos < 0 || pos+4 > len(w.buf) {
		return ErrShortBuffer
	}
	ByteOrder.PutUint32(w.buf[pos:], v)
	return nil
}

// PutUint64At overwrites a 64-bit value at an earlier position.
func (w *BufferWriter) PutUint64At(pos int, v uint64) error {
	if pos < 0 || pos+8 > len(w.buf) {
		return ErrShortBuffer
	}
	ByteOrder.PutUint64(w.buf[pos:], v)
	return nil
}
