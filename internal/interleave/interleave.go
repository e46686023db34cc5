// Package interleave converts between the interleaved 8-bit pixel layouts
// used by the different storage backends.
//
// Native slide readers deliver BGRA, tile tables may store BGR, and tiled
// containers always store 1 or 3 samples per pixel:
//
//	BGRA: [b0,g0,r0,a0, b1,g1,r1,a1] -> RGB: [r0,g0,b0, r1,g1,b1]
//	RGBA: [r0,g0,b0,a0]              -> RGB: [r0,g0,b0]
package interleave

// SwapRB exchanges the first and third sample of every pixel in place.
// It converts BGR to RGB (and back) for stride 3, BGRA to RGBA for stride 4.
func SwapRB(data []byte, stride int) {
	if stride < 3 {
		return
	}
	for i := 0; i+2 < len(data); i += stride {
		data[i], data[i+2] = data[i+2], data[i]
	}
}

// DropAlpha packs 4-sample pixels into 3-sample pixels.
// If out is nil, a new buffer is allocated.
func DropAlpha(data []byte, out []byte) []byte {
	n := len(data) / 4
	if out == nil {
		out = make([]byte, n*3)
	}
	for i := 0; i < n; i++ {
		out[i*3] = data[i*4]
		out[i*3+1] = data[i*4+1]
		out[i*3+2] = data[i*4+2]
	}
	return out
}

// BGRAToRGB packs BGRA pixels into RGB pixels.
// If out is nil, a new buffer is allocated.
func BGRAToRGB(data []byte, out []byte) []byte {
	n := len(data) / 4
	if out == nil {
		out = make([]byte, n*3)
	}
	for i := 0; i < n; i++ {
		out[i*3] = data[i*4+2]
		out[i*3+1] = data[i*4+1]
		out[i*3+2] = data[i*4]
	}
	return out
}

// AddAlpha expands 3-sample pixels into 4-sample pixels with the given alpha.
// If out is nil, a new buffer is allocated.
func AddAlpha(data []byte, alpha byte, out []byte) []byte {
	n := len(data) / 3
	if out == nil {
		out = make([]byte, n*4)
	}
	// Backwards so data and out may share storage
	for i := n - 1; i >= 0; i-- {
		b := data[i*3+2]
		g := data[i*3+1]
		r := data[i*3]
		out[i*4] = r
		out[i*4+1] = g
		out[i*4+2] = b
		out[i*4+3] = alpha
	}
	return out
}

// OpaqueWhite replaces fully transparent BGRA/RGBA pixels with opaque white.
func OpaqueWhite(data []byte) {
	for i := 0; i+3 < len(data); i += 4 {
		if data[i+3] == 0 {
			data[i], data[i+1], data[i+2], data[i+3] = 255, 255, 255, 255
		}
	}
}

// GrayToRGB replicates 1-sample pixels into 3-sample pixels.
// If out is nil, a new buffer is allocated.
func GrayToRGB(data []byte, out []byte) []byte {
	if out == nil {
		out = make([]byte, len(data)*3)
	}
	for i := len(data) - 1; i >= 0; i-- {
		v := data[i]
		out[i*3], out[i*3+1], out[i*3+2] = v, v, v
	}
	return out
}
