package compression

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

// gradientTile returns smooth image-like data.
func gradientTile(t Tile) []byte {
	data := make([]byte, t.Size())
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			for c := 0; c < t.Channels; c++ {
				data[(y*t.Width+x)*t.Channels+c] = byte(x + y + c*40)
			}
		}
	}
	return data
}

func noiseTile(t Tile, seed int64) []byte {
	data := make([]byte, t.Size())
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

func TestLosslessRoundTrip(t *testing.T) {
	schemes := []Compression{None, LZW, Deflate, PackBits, Zstd}
	tiles := []Tile{
		{Width: 16, Height: 16, Channels: 1},
		{Width: 64, Height: 32, Channels: 3},
		{Width: 256, Height: 256, Channels: 3},
		{Width: 8, Height: 8, Channels: 4},
	}

	for _, c := range schemes {
		for _, tile := range tiles {
			for _, pred := range []bool{false, true} {
				for name, src := range map[string][]byte{
					"gradient": gradientTile(tile),
					"noise":    noiseTile(tile, int64(tile.Size())),
				} {
					opts := Options{Predictor: pred}
					encoded, err := Encode(c, src, tile, opts)
					if err != nil {
						t.Fatalf("%v %v %s: Encode error: %v", c, tile, name, err)
					}
					got := make([]byte, tile.Size())
					if err := Decode(c, encoded, tile, opts, got); err != nil {
						t.Fatalf("%v %v %s predictor=%v: Decode error: %v", c, tile, name, pred, err)
					}
					if !bytes.Equal(got, src) {
						t.Errorf("%v %v %s predictor=%v: round trip mismatch", c, tile, name, pred)
					}
				}
			}
		}
	}
}

func TestEncodeDoesNotModifySource(t *testing.T) {
	tile := Tile{Width: 32, Height: 4, Channels: 3}
	src := gradientTile(tile)
	orig := append([]byte(nil), src...)
	if _, err := Encode(LZW, src, tile, Options{Predictor: true}); err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !bytes.Equal(src, orig) {
		t.Error("Encode modified its input")
	}
}

func TestLZWTableReset(t *testing.T) {
	// Random data fills the 12-bit table many times over
	src := noiseTile(Tile{Width: 512, Height: 512, Channels: 1}, 3)
	encoded := LZWCompress(src)
	got := make([]byte, len(src))
	if err := LZWDecompressTo(got, encoded); err != nil {
		t.Fatalf("LZWDecompressTo error: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Error("round trip mismatch across table resets")
	}
}

func TestLZWRepetitive(t *testing.T) {
	// Long runs exercise the code == next (KwKwK) case
	src := bytes.Repeat([]byte{7}, 100000)
	encoded := LZWCompress(src)
	if len(encoded) >= len(src)/10 {
		t.Errorf("encoded %d bytes, expected strong compression", len(encoded))
	}
	got := make([]byte, len(src))
	if err := LZWDecompressTo(got, encoded); err != nil {
		t.Fatalf("LZWDecompressTo error: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Error("round trip mismatch")
	}
}

func TestLZWEmpty(t *testing.T) {
	encoded := LZWCompress(nil)
	// Clear then EOI, 18 bits
	if len(encoded) != 3 {
		t.Errorf("len = %d, want 3", len(encoded))
	}
	if err := LZWDecompressTo(nil, encoded); err != nil {
		t.Errorf("LZWDecompressTo error: %v", err)
	}
}

func TestLossyRoundTrip(t *testing.T) {
	tests := []struct {
		c       Compression
		tile    Tile
		quality int
		maxDiff int
	}{
		{JPEG, Tile{Width: 64, Height: 64, Channels: 3}, 95, 12},
		{JPEG, Tile{Width: 64, Height: 64, Channels: 1}, 95, 12},
		{JPEG, Tile{Width: 32, Height: 32, Channels: 4}, 95, 12},
		{JPEG2000, Tile{Width: 64, Height: 64, Channels: 1}, 100, 12},
		{JPEG2000, Tile{Width: 64, Height: 64, Channels: 3}, 100, 12},
	}
	for _, tt := range tests {
		t.Run(tt.c.String(), func(t *testing.T) {
			src := gradientTile(tt.tile)
			opts := Options{Quality: tt.quality}
			encoded, err := Encode(tt.c, src, tt.tile, opts)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			got := make([]byte, tt.tile.Size())
			if err := Decode(tt.c, encoded, tt.tile, opts, got); err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			for i := range got {
				if tt.tile.Channels == 4 && i%4 == 3 {
					if got[i] != 255 {
						t.Fatalf("alpha at %d = %d, want 255", i, got[i])
					}
					continue
				}
				d := int(got[i]) - int(src[i])
				if d < -tt.maxDiff || d > tt.maxDiff {
					t.Fatalf("byte %d: got %d, want %d +/- %d", i, got[i], src[i], tt.maxDiff)
				}
			}
		})
	}
}

func TestCorruptedPayloads(t *testing.T) {
	tile := Tile{Width: 16, Height: 16, Channels: 3}
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11}
	for _, c := range []Compression{None, LZW, Deflate, PackBits, Zstd, JPEG, JPEG2000} {
		dst := make([]byte, tile.Size())
		err := Decode(c, garbage, tile, Options{}, dst)
		if !errors.Is(err, ErrCorrupted) {
			t.Errorf("%v: Decode(garbage) error = %v, want ErrCorrupted", c, err)
		}
	}
}

func TestUnsupported(t *testing.T) {
	tile := Tile{Width: 4, Height: 4, Channels: 1}
	src := make([]byte, tile.Size())
	for _, c := range []Compression{JPEGXL, NeuralNetwork, Compression(99)} {
		if _, err := Encode(c, src, tile, Options{}); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Encode(%v) error = %v, want ErrUnsupported", c, err)
		}
		if err := Decode(c, src, tile, Options{}, make([]byte, tile.Size())); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Decode(%v) error = %v, want ErrUnsupported", c, err)
		}
	}
}

func TestGeometryMismatch(t *testing.T) {
	tile := Tile{Width: 4, Height: 4, Channels: 3}
	if _, err := Encode(LZW, make([]byte, 10), tile, Options{}); err != ErrGeometry {
		t.Errorf("Encode error = %v, want ErrGeometry", err)
	}
	if err := Decode(LZW, nil, tile, Options{}, make([]byte, 10)); err != ErrGeometry {
		t.Errorf("Decode error = %v, want ErrGeometry", err)
	}
}

func TestParse(t *testing.T) {
	tests := map[string]Compression{
		"raw":      None,
		"NONE":     None,
		"lzw":      LZW,
		"jpeg":     JPEG,
		"deflate":  Deflate,
		"packbits": PackBits,
		"zstd":     Zstd,
		"jpeg2000": JPEG2000,
		"jpegxl":   JPEGXL,
	}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Errorf("Parse(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := Parse("webp"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Parse(webp) error = %v, want ErrUnsupported", err)
	}
}
