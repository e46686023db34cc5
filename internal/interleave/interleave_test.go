package interleave

import (
	"bytes"
	"testing"
)

func TestSwapRB(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		stride int
		want   []byte
	}{
		{"bgr", []byte{1, 2, 3, 4, 5, 6}, 3, []byte{3, 2, 1, 6, 5, 4}},
		{"bgra", []byte{1, 2, 3, 9, 4, 5, 6, 9}, 4, []byte{3, 2, 1, 9, 6, 5, 4, 9}},
		{"gray", []byte{1, 2, 3}, 1, []byte{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), tt.data...)
			SwapRB(data, tt.stride)
			if !bytes.Equal(data, tt.want) {
				t.Errorf("SwapRB() = %v, want %v", data, tt.want)
			}
		})
	}
}

func TestAlphaConversions(t *testing.T) {
	bgra := []byte{10, 20, 30, 40, 50, 60, 70, 80}

	if got := BGRAToRGB(bgra, nil); !bytes.Equal(got, []byte{30, 20, 10, 70, 60, 50}) {
		t.Errorf("BGRAToRGB() = %v", got)
	}
	if got := DropAlpha(bgra, nil); !bytes.Equal(got, []byte{10, 20, 30, 50, 60, 70}) {
		t.Errorf("DropAlpha() = %v", got)
	}

	rgb := []byte{1, 2, 3, 4, 5, 6}
	if got := AddAlpha(rgb, 255, nil); !bytes.Equal(got, []byte{1, 2, 3, 255, 4, 5, 6, 255}) {
		t.Errorf("AddAlpha() = %v", got)
	}
}

func TestAddAlphaInPlace(t *testing.T) {
	buf := make([]byte, 8)
	copy(buf, []byte{1, 2, 3, 4, 5, 6})
	AddAlpha(buf[:6], 255, buf)
	if !bytes.Equal(buf, []byte{1, 2, 3, 255, 4, 5, 6, 255}) {
		t.Errorf("AddAlpha() in place = %v", buf)
	}
}

func TestOpaqueWhite(t *testing.T) {
	data := []byte{0, 0, 0, 0, 1, 2, 3, 255}
	OpaqueWhite(data)
	want := []byte{255, 255, 255, 255, 1, 2, 3, 255}
	if !bytes.Equal(data, want) {
		t.Errorf("OpaqueWhite() = %v, want %v", data, want)
	}
}

func TestGrayToRGB(t *testing.T) {
	if got := GrayToRGB([]byte{7, 200}, nil); !bytes.Equal(got, []byte{7, 7, 7, 200, 200, 200}) {
		t.Errorf("GrayToRGB() = %v", got)
	}
}
