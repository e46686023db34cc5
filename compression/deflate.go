package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// ErrDeflateCorrupted is returned for malformed Deflate tiles.
var ErrDeflateCorrupted = fmt.Errorf("%w (deflate)", ErrCorrupted)

// DeflateLevel is a zlib compression level from -2 (Huffman only) to 9.
type DeflateLevel int

// Standard Deflate levels.
const (
	DeflateHuffmanOnly DeflateLevel = -2
	DeflateDefault     DeflateLevel = -1
	DeflateStore       DeflateLevel = 0
	DeflateBestSpeed   DeflateLevel = 1
	DeflateBestSize    DeflateLevel = 9
)

// TIFF Adobe Deflate tiles are plain zlib streams.
type zlibWriterPoolItem struct {
	writer *zlib.Writer
	buf    *bytes.Buffer
}

var zlibWriterPool = sync.Pool{
	New: func() any {
		buf := new(bytes.Buffer)
		w, _ := zlib.NewWriterLevel(buf, zlib.DefaultCompression)
		return &zlibWriterPoolItem{writer: w, buf: buf}
	},
}

// DeflateCompress compresses src at the default level.
func DeflateCompress(src []byte) ([]byte, error) {
	return DeflateCompressLevel(src, DeflateDefault)
}

// DeflateCompressLevel compresses src at the given level.
func DeflateCompressLevel(src []byte, level DeflateLevel) ([]byte, error) {
	if level == DeflateDefault {
		item := zlibWriterPool.Get().(*zlibWriterPoolItem)
		defer zlibWriterPool.Put(item)
		item.buf.Reset()
		item.writer.Reset(item.buf)

		if _, err := item.writer.Write(src); err != nil {
			item.writer.Close()
			return nil, err
		}
		if err := item.writer.Close(); err != nil {
			return nil, err
		}
		out := make([]byte, item.buf.Len())
		copy(out, item.buf.Bytes())
		return out, nil
	}

	buf := new(bytes.Buffer)
	w, err := zlib.NewWriterLevel(buf, int(level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type zlibReaderPoolItem struct {
	reader io.ReadCloser
	srcBuf *bytes.Reader
}

var zlibReaderPool = sync.Pool{
	New: func() any {
		return &zlibReaderPoolItem{srcBuf: bytes.NewReader(nil)}
	},
}

// DeflateDecompressTo decompresses src into dst, which must be exactly the
// decompressed size.
func DeflateDecompressTo(dst, src []byte) error {
	if len(src) == 0 {
		if len(dst) != 0 {
			return ErrDeflateCorrupted
		}
		return nil
	}

	item := zlibReaderPool.Get().(*zlibReaderPoolItem)
	defer zlibReaderPool.Put(item)
	item.srcBuf.Reset(src)

	var err error
	if resetter, ok := item.reader.(zlib.Resetter); ok {
		err = resetter.Reset(item.srcBuf, nil)
	} else {
		item.reader, err = zlib.NewReader(item.srcBuf)
	}
	if err != nil {
		item.reader = nil
		return ErrDeflateCorrupted
	}

	n, err := io.ReadFull(item.reader, dst)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return ErrDeflateCorrupted
	}
	if n != len(dst) {
		return ErrDeflateCorrupted
	}
	return nil
}
