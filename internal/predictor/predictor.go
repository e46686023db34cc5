// Package predictor implements the TIFF horizontal differencing predictor
// (Predictor = 2) for 8-bit samples.
//
// Each sample in a row is replaced by its difference from the sample of the
// same channel in the previous pixel. Smooth image regions then become runs
// of small values, which LZW, Deflate and Zstandard compress better.
package predictor

// Encode applies horizontal differencing in place to rows of rowLen bytes
// holding interleaved pixels of stride samples each.
func Encode(data []byte, rowLen, stride int) {
	if rowLen <= stride || stride <= 0 {
		return
	}
	for start := 0; start+rowLen <= len(data); start += rowLen {
		row := data[start : start+rowLen]
		// Work backwards to preserve values we still need
		for i := len(row) - 1; i >= stride; i-- {
			row[i] -= row[i-stride]
		}
	}
}

// Decode reverses Encode in place.
func Decode(data []byte, rowLen, stride int) {
	if rowLen <= stride || stride <= 0 {
		return
	}
	for start := 0; start+rowLen <= len(data); start += rowLen {
		row := data[start : start+rowLen]
		i := stride
		// Unrolled for the common single-channel case
		if stride == 1 {
			for ; i+3 < len(row); i += 4 {
				row[i] += row[i-1]
				row[i+1] += row[i]
				row[i+2] += row[i+1]
				row[i+3] += row[i+2]
			}
		}
		for ; i < len(row); i++ {
			row[i] += row[i-stride]
		}
	}
}
