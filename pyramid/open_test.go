package pyramid

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/container"
	"github.com/mrjoshuak/go-pyramid/slide"
	"github.com/mrjoshuak/go-pyramid/tiletable"
)

// fakeSlide is a two-level slide whose level-0 pixels are BGRA (1, 2, 3,
// 255) left of column 1100 and transparent beyond it.
type fakeSlide struct {
	closed bool
}

var fakeSlideLevels = [][2]int64{{1200, 1000}, {600, 500}}

func (s *fakeSlide) LevelCount() int { return len(fakeSlideLevels) }

func (s *fakeSlide) LevelDimensions(level int) (int64, int64) {
	return fakeSlideLevels[level][0], fakeSlideLevels[level][1]
}

func (s *fakeSlide) LevelDownsample(level int) float64 { return float64(int(1) << level) }

func (s *fakeSlide) TileSize(int) (int, int) { return 512, 512 }

func (s *fakeSlide) BestLevelForDownsample(float64) int { return 0 }

func (s *fakeSlide) ReadRegion(dst []byte, x, y int64, level int, w, h int64) error {
	if level != 0 {
		return slide.ErrLevelOutOfRange
	}
	for r := int64(0); r < h; r++ {
		for c := int64(0); c < w; c++ {
			i := (r*w + c) * 4
			if x+c < 1100 {
				copy(dst[i:i+4], []byte{1, 2, 3, 255})
			} else {
				copy(dst[i:i+4], []byte{0, 0, 0, 0})
			}
		}
	}
	return nil
}

func (s *fakeSlide) Properties() []string {
	return []string{slide.PropertyMPPX, slide.PropertyMPPY, slide.PropertyVendor, slide.LevelProperty(0, "tile-width")}
}

func (s *fakeSlide) PropertyValue(name string) string {
	switch name {
	case slide.PropertyMPPX, slide.PropertyMPPY:
		return "0.25"
	case slide.PropertyVendor:
		return "fake"
	case slide.LevelProperty(0, "tile-width"):
		return "240"
	}
	return ""
}

func (s *fakeSlide) Close() error {
	s.closed = true
	return nil
}

func TestOpenSlide(t *testing.T) {
	s := &fakeSlide{}
	p, err := OpenSlide(s)
	if err != nil {
		t.Fatal(err)
	}

	// Level 1 holds less than 4 MB of BGRA
	if p.LevelCount() != 1 || p.Kind() != ReadOnlySlide || p.Channels() != 4 {
		t.Fatalf("slide pyramid: %d levels, kind %v, %d channels", p.LevelCount(), p.Kind(), p.Channels())
	}
	lv, _ := p.LevelInfo(0)
	if lv.TileWidth != 240 || lv.TileHeight != 512 {
		t.Errorf("tile size = %dx%d, want 240x512", lv.TileWidth, lv.TileHeight)
	}
	if x, y := p.Spacing(); x != 0.00025 || y != 0.00025 {
		t.Errorf("Spacing = %g, %g; want 0.00025", x, y)
	}
	if p.Properties()[slide.PropertyVendor] != "fake" {
		t.Errorf("properties = %v", p.Properties())
	}
	if !p.IsPatchInitialized(0, 3, 3) {
		t.Error("read-only pyramids are fully initialized")
	}
	if _, err := p.Access(ModeReadWrite); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("read-write access error = %v, want ErrUnsupportedOperation", err)
	}

	err = p.View(func(a *Access) error {
		data, err := a.PatchData(0, 1098, 0, 4, 1)
		if err != nil {
			return err
		}
		want := []byte{1, 2, 3, 255, 1, 2, 3, 255, 255, 255, 255, 255, 255, 255, 255, 255}
		if !bytes.Equal(data, want) {
			t.Errorf("region across the transparent edge = %v, want %v", data, want)
		}

		edge, err := a.PatchData(0, 1198, 998, 4, 4)
		if err != nil {
			return err
		}
		if !allEqual(edge, 255) {
			t.Error("pixels past the slide should be white")
		}

		img, err := a.PatchAsImage(0, 0, 0, 2, 2, true)
		if err != nil {
			return err
		}
		if img.Channels != 3 || !bytes.Equal(img.Pix[:3], []byte{3, 2, 1}) {
			t.Errorf("RGB conversion = %d channels, first pixel %v", img.Channels, img.Pix[:3])
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Free(); err != nil {
		t.Fatal(err)
	}
	if !s.closed {
		t.Error("Free should close the slide")
	}
}

func TestOpenContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.tiff")
	levels := []container.Level{
		{Width: 128, Height: 96, TileWidth: 64, TileHeight: 64},
		{Width: 64, Height: 48, TileWidth: 64, TileHeight: 64},
	}
	f, err := container.Create(path, levels, 3, container.Options{Compression: compression.Deflate, Predictor: true})
	if err != nil {
		t.Fatal(err)
	}
	tile := randomImage(64, 64, 3, 11).Pix
	if err := f.WriteTile(0, 1, 0, tile); err != nil {
		t.Fatal(err)
	}
	res := container.Resolution{X: 20000, Y: 20000, Unit: container.ResolutionCentimeter}
	if err := f.SetResolution(0, res); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	p, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Free()

	if p.Kind() != Container || p.LevelCount() != 2 || p.Channels() != 3 {
		t.Fatalf("container pyramid: kind %v, %d levels, %d channels", p.Kind(), p.LevelCount(), p.Channels())
	}
	if p.Compression() != "deflate" {
		t.Errorf("Compression = %q, want deflate", p.Compression())
	}
	if x, _ := p.Spacing(); x < 0.000499 || x > 0.000501 {
		t.Errorf("Spacing = %g, want 0.0005", x)
	}

	err = p.View(func(a *Access) error {
		patch, err := a.Patch(0, 1, 0)
		if err != nil {
			return err
		}
		if !bytes.Equal(patch.Data, tile) {
			t.Error("stored tile differs")
		}
		empty, err := a.Patch(0, 0, 1)
		if err != nil {
			return err
		}
		if empty.Height != 32 || !allEqual(empty.Data, 255) {
			t.Errorf("empty edge tile: height %d", empty.Height)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOpenTileTable(t *testing.T) {
	for _, index := range []tiletable.IndexKind{tiletable.IndexLinear, tiletable.IndexMap, tiletable.IndexSQLite} {
		t.Run(string(index), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "slide.ttbl")
			levels := []tiletable.Level{
				{Width: 128, Height: 128, TileWidth: 64, TileHeight: 64},
				{Width: 64, Height: 64, TileWidth: 64, TileHeight: 64},
			}
			w, err := tiletable.Create(path, tiletable.FormatBGR, levels, 0)
			if err != nil {
				t.Fatal(err)
			}
			tile := randomImage(64, 64, 3, 5).Pix
			if err := w.WriteTile(0, 1, 1, tile); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			p, err := OpenFile(path, WithIndex(index))
			if err != nil {
				t.Fatal(err)
			}
			defer p.Free()
			if p.Kind() != ReadOnlyTileTable || p.LevelCount() != 2 {
				t.Fatalf("tile table pyramid: kind %v, %d levels", p.Kind(), p.LevelCount())
			}
			if p.Properties()["tiletable.format"] != "bgr" {
				t.Errorf("properties = %v", p.Properties())
			}

			err = p.View(func(a *Access) error {
				got, err := a.Patch(0, 1, 1)
				if err != nil {
					return err
				}
				if !bytes.Equal(got.Data, tile) {
					t.Error("stored tile differs")
				}
				missing, err := a.Patch(0, 0, 0)
				if err != nil {
					return err
				}
				if !allEqual(missing.Data, 255) {
					t.Error("missing tile should read as background")
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestOpenFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		want error
	}{
		{"slide.png", ErrUnsupportedOperation},
		{"missing.tiff", nil},
		{"missing.ttbl", nil},
	}
	for _, tt := range tests {
		p, err := OpenFile(filepath.Join(dir, tt.name))
		if err == nil {
			p.Free()
			t.Errorf("OpenFile(%s) should fail", tt.name)
			continue
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("OpenFile(%s) error = %v, want %v", tt.name, err, tt.want)
		}
	}
	// A header claiming 1<<24 levels
	header := append([]byte("TTBL\x01\x00\x00\x00\x00\x00\x00\x01"), make([]byte, 12)...)
	corrupt := filepath.Join(dir, "corrupt.ttbl")
	if err := os.WriteFile(corrupt, header, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFile(corrupt); !errors.Is(err, ErrDecode) {
		t.Errorf("OpenFile(corrupt.ttbl) error = %v, want ErrDecode", err)
	}
}

func ExampleCreate() {
	p, err := Create(1000, 800, 3, WithRawMemory(), WithTileSize(128, 128), WithThreshold(256))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer p.Free()

	for _, lv := range p.Levels() {
		fmt.Println(lv)
	}
	// Output:
	// 1000x800 (tiles 8x7 of 128x128)
	// 500x400 (tiles 4x4 of 128x128)
	// 250x200 (tiles 2x2 of 128x128)
}
