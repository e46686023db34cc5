package compression

import "fmt"

// PackBits errors
var (
	ErrPackBitsCorrupted = fmt.Errorf("%w (packbits)", ErrCorrupted)
	ErrPackBitsOverflow  = fmt.Errorf("%w (packbits overflow)", ErrCorrupted)
)

const (
	// packBitsMinRun is the minimum run length that triggers a repeat header
	packBitsMinRun = 3
	// packBitsMaxRun is the longest run or literal emitted by the encoder
	packBitsMaxRun = 127
)

// PackBitsCompress compresses src with the Macintosh PackBits scheme.
// Each row of rowLen bytes is packed separately, as TIFF requires.
//
// The header byte n selects the packet type:
//   - 0 to 127: the next n+1 bytes are copied literally
//   - -127 to -1: the next byte is repeated 1-n times
//   - -128: no operation
//
// For example:
//
//	[A, A, A, A, B, C, D] -> [-3, A, 2, B, C, D]
func PackBitsCompress(src []byte, rowLen int) []byte {
	if len(src) == 0 {
		return nil
	}
	if rowLen <= 0 || rowLen > len(src) {
		rowLen = len(src)
	}

	// Worst case: one header per 127 literal bytes
	dst := make([]byte, 0, len(src)+len(src)/packBitsMaxRun+len(src)/rowLen+1)
	for start := 0; start < len(src); start += rowLen {
		end := start + rowLen
		if end > len(src) {
			end = len(src)
		}
		dst = packRow(dst, src[start:end])
	}
	return dst
}

func packRow(dst, src []byte) []byte {
	i := 0
	for i < len(src) {
		val := src[i]
		runEnd := i + 1
		for runEnd < len(src) && src[runEnd] == val && runEnd-i < packBitsMaxRun {
			runEnd++
		}
		if runLength := runEnd - i; runLength >= packBitsMinRun {
			dst = append(dst, byte(-(runLength - 1)), val)
			i = runEnd
			continue
		}

		literalStart := i
		for i < len(src) && i-literalStart < packBitsMaxRun {
			if i+packBitsMinRun <= len(src) && src[i+1] == src[i] && src[i+2] == src[i] {
				break
			}
			i++
		}
		dst = append(dst, byte(i-literalStart-1))
		dst = append(dst, src[literalStart:i]...)
	}
	return dst
}

// PackBitsDecompressTo decompresses src into dst, which must be exactly the
// decompressed size.
func PackBitsDecompressTo(src, dst []byte) error {
	dstPos := 0
	i := 0
	for i < len(src) && dstPos < len(dst) {
		count := int(int8(src[i]))
		i++

		switch {
		case count == -128:
			continue
		case count < 0:
			runLength := -count + 1
			if i >= len(src) {
				return ErrPackBitsCorrupted
			}
			if dstPos+runLength > len(dst) {
				return ErrPackBitsOverflow
			}
			val := src[i]
			i++
			for end := dstPos + runLength; dstPos < end; dstPos++ {
				dst[dstPos] = val
			}
		default:
			literalLength := count + 1
			if i+literalLength > len(src) {
				return ErrPackBitsCorrupted
			}
			if dstPos+literalLength > len(dst) {
				return ErrPackBitsOverflow
			}
			copy(dst[dstPos:], src[i:i+literalLength])
			dstPos += literalLength
			i += literalLength
		}
	}

	if dstPos != len(dst) {
		return ErrPackBitsCorrupted
	}
	return nil
}
