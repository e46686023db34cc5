package pyramid

import (
	"errors"
	"image"
	"image/color"
	"slices"
	"testing"
)

func TestLevelChain(t *testing.T) {
	tests := []struct {
		w, h, threshold int
		want            [][2]int
	}{
		{300, 200, 64, [][2]int{{300, 200}, {150, 100}, {75, 50}, {37, 25}}},
		{100000, 80000, 4096, [][2]int{
			{100000, 80000}, {50000, 40000}, {25000, 20000}, {12500, 10000},
			{6250, 5000}, {3125, 2500},
		}},
		{5000, 100, 4096, [][2]int{{5000, 100}, {2500, 50}}},
		{1, 1, 4096, [][2]int{{1, 1}}},
		{100, 3, 64, [][2]int{{100, 3}, {50, 1}}},
	}
	for _, tt := range tests {
		got := levelChain(tt.w, tt.h, tt.threshold)
		if !slices.Equal(got, tt.want) {
			t.Errorf("levelChain(%d, %d, %d) = %v, want %v", tt.w, tt.h, tt.threshold, got, tt.want)
		}
	}
}

func TestLevelGeometry(t *testing.T) {
	lv := newLevel(300, 200, 64, 64, 0)
	if lv.TilesX != 5 || lv.TilesY != 4 {
		t.Errorf("tiles = %dx%d, want 5x4", lv.TilesX, lv.TilesY)
	}
	if lv.TileBytes(3) != 64*64*3 {
		t.Errorf("TileBytes(3) = %d", lv.TileBytes(3))
	}
	for _, c := range []struct {
		tx, ty int
		want   bool
	}{
		{0, 0, true}, {4, 3, true}, {5, 0, false}, {0, 4, false}, {-1, 0, false},
	} {
		if got := lv.Contains(c.tx, c.ty); got != c.want {
			t.Errorf("Contains(%d, %d) = %v, want %v", c.tx, c.ty, got, c.want)
		}
	}
}

func TestTileID(t *testing.T) {
	if s := (TileID{Level: 2, X: 10, Y: 3}).String(); s != "2_10_3" {
		t.Errorf("String = %q, want 2_10_3", s)
	}
}

func TestFloorDiv(t *testing.T) {
	for _, c := range [][3]int{{7, 2, 3}, {-1, 64, -1}, {-64, 64, -1}, {-65, 64, -2}, {0, 64, 0}} {
		if got := floorDiv(c[0], c[1]); got != c[2] {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", c[0], c[1], got, c[2])
		}
	}
}

func TestImageConversion(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 255})

	rgb, err := FromImage(src, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rgb.Pix, []byte{10, 20, 30, 40, 50, 60}) {
		t.Errorf("RGB pixels = %v", rgb.Pix)
	}

	back, err := rgb.ToImage()
	if err != nil {
		t.Fatal(err)
	}
	if c := back.(*image.NRGBA).NRGBAAt(1, 0); c != (color.NRGBA{R: 40, G: 50, B: 60, A: 255}) {
		t.Errorf("ToImage pixel = %v", c)
	}

	gray, err := FromImage(src, 1)
	if err != nil {
		t.Fatal(err)
	}
	if gray.Channels != 1 || len(gray.Pix) != 2 {
		t.Errorf("gray image = %d channels, %d bytes", gray.Channels, len(gray.Pix))
	}

	if _, err := FromImage(src, 2); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("FromImage(2) error = %v, want ErrUnsupportedOperation", err)
	}
	if _, err := NewImage(2, 2, 2).ToImage(); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("ToImage of 2 channels error = %v, want ErrUnsupportedOperation", err)
	}
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{RawMemory, WritableContainer} {
		if !k.Writable() {
			t.Errorf("%v should be writable", k)
		}
	}
	for _, k := range []Kind{Container, ReadOnlySlide, ReadOnlyTileTable} {
		if k.Writable() {
			t.Errorf("%v should be read-only", k)
		}
	}
	if s := Kind(42).String(); s != "kind(42)" {
		t.Errorf("unknown kind = %q", s)
	}
}
