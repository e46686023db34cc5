package pyramidutil

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/pyramid"
)

// testPyramid creates a 256x192 raw pyramid with 64x64 tiles. Tile (tx,
// ty) of level 0 is filled with 10*tx + ty in every channel.
func testPyramid(t *testing.T, channels int, opts ...pyramid.Option) *pyramid.Pyramid {
	t.Helper()
	opts = append([]pyramid.Option{
		pyramid.WithRawMemory(),
		pyramid.WithTileSize(64, 64),
		pyramid.WithThreshold(64),
		pyramid.WithTempDir(t.TempDir()),
	}, opts...)
	p, err := pyramid.Create(256, 192, channels, opts...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { p.Free() })

	err = p.Update(func(a *pyramid.Access) error {
		for ty := 0; ty < 3; ty++ {
			for tx := 0; tx < 4; tx++ {
				img := pyramid.NewImage(64, 64, channels)
				for i := range img.Pix {
					img.Pix[i] = byte(10*tx + ty)
				}
				if err := a.SetPatch(0, tx*64, ty*64, img); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("filling pyramid: %v", err)
	}
	return p
}

func TestPatches(t *testing.T) {
	lv := pyramid.Level{Width: 150, Height: 70, TileWidth: 64, TileHeight: 64, TilesX: 3, TilesY: 2}

	var got []pyramid.TileID
	for id := range Patches(lv, 1) {
		got = append(got, id)
	}
	want := []pyramid.TileID{
		{Level: 1, X: 0, Y: 0}, {Level: 1, X: 1, Y: 0}, {Level: 1, X: 2, Y: 0},
		{Level: 1, X: 0, Y: 1}, {Level: 1, X: 1, Y: 1}, {Level: 1, X: 2, Y: 1},
	}
	if !slices.Equal(got, want) {
		t.Errorf("Patches = %v, want %v", got, want)
	}

	// Early break
	n := 0
	for range Patches(lv, 1) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iteration continued after break: %d", n)
	}
}

func TestPatchName(t *testing.T) {
	n := PatchName{FullWidth: 1000, FullHeight: 800, Level: 2, X: 256, Y: 0, SpacingX: 0.001, SpacingY: 0.002}
	s := n.String()
	if s != "patch_1000_800_2_256_0_0.001_0.002.png" {
		t.Errorf("String = %q", s)
	}
	parsed, err := ParsePatchName(s)
	if err != nil {
		t.Fatal(err)
	}
	if parsed != n {
		t.Errorf("ParsePatchName = %+v, want %+v", parsed, n)
	}

	bad := []string{
		"patch_1_2_3_4_5_6.png",
		"patch_1_2_3_4_5_6_7.jpg",
		"tile_1_2_3_4_5_6_7.png",
		"patch_a_2_3_4_5_6_7.png",
		"patch_1_2_3_-4_5_6_7.png",
		"patch_1_2_3_4_5_x_7.png",
	}
	for _, name := range bad {
		if _, err := ParsePatchName(name); !errors.Is(err, ErrPatchName) {
			t.Errorf("ParsePatchName(%q) error = %v, want ErrPatchName", name, err)
		}
	}
}

func TestGetInfo(t *testing.T) {
	p := testPyramid(t, 3)
	if err := p.SetSpacing(0.0005, 0.0005); err != nil {
		t.Fatal(err)
	}

	info := GetInfo(p)
	if info.Width != 256 || info.Height != 192 || info.Channels != 3 {
		t.Errorf("size = %dx%dx%d", info.Width, info.Height, info.Channels)
	}
	if info.Kind != pyramid.RawMemory || len(info.Levels) != 4 {
		t.Errorf("kind %v with %d levels", info.Kind, len(info.Levels))
	}
	if info.Magnification != 20 {
		t.Errorf("Magnification = %g, want 20", info.Magnification)
	}
}

func TestGetFileInfo(t *testing.T) {
	c, err := pyramid.Create(256, 192, 3, pyramid.WithCompression(compression.LZW), pyramid.WithTileSize(64, 64),
		pyramid.WithThreshold(64), pyramid.WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Free()

	path := filepath.Join(t.TempDir(), "copy.tiff")
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	info, err := GetFileInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Path != path || info.FileSize <= 0 || info.Compression != "lzw" || info.Kind != pyramid.Container {
		t.Errorf("info = %+v", info)
	}

	if _, err := GetFileInfo(filepath.Join(t.TempDir(), "missing.tiff")); !os.IsNotExist(err) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	p := testPyramid(t, 1)
	result, err := Validate(p)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid || len(result.Errors) != 0 {
		t.Errorf("Validate = %+v", result)
	}
	if !slices.Contains(result.Warnings, "no physical spacing") {
		t.Errorf("warnings = %v", result.Warnings)
	}
}

func TestCompare(t *testing.T) {
	a := testPyramid(t, 3)
	b := testPyramid(t, 3)

	same, diffs, err := Compare(a, b, CompareOptions{Level: 0})
	if err != nil {
		t.Fatal(err)
	}
	if !same || len(diffs) != 0 {
		t.Errorf("identical pyramids differ: %v", diffs)
	}

	err = b.Update(func(acc *pyramid.Access) error {
		img := pyramid.NewImage(64, 64, 3)
		img.Pix[0] = 200
		return acc.SetPatch(0, 64, 0, img)
	})
	if err != nil {
		t.Fatal(err)
	}

	same, diffs, err = Compare(a, b, CompareOptions{Level: 0, Tolerance: 5})
	if err != nil {
		t.Fatal(err)
	}
	if same || len(diffs) != 1 {
		t.Errorf("Compare = %v, %v; want one difference", same, diffs)
	}

	// Coarsest levels differ in the propagated pixel
	same, _, err = Compare(a, b, CompareOptions{Level: -1, Tolerance: 255})
	if err != nil || !same {
		t.Errorf("Compare with full tolerance = %v, %v", same, err)
	}

	gray := testPyramid(t, 1)
	same, diffs, err = Compare(a, gray, CompareOptions{})
	if err != nil || same || len(diffs) != 1 {
		t.Errorf("channel mismatch: %v, %v, %v", same, diffs, err)
	}
}

func TestLevelStats(t *testing.T) {
	p := testPyramid(t, 3)
	stats, err := LevelStats(p, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d channels, want 3", len(stats))
	}

	// Tile values 10*tx + ty for tx in 0..3, ty in 0..2, equal areas
	var values []float64
	for ty := 0; ty < 3; ty++ {
		for tx := 0; tx < 4; tx++ {
			values = append(values, float64(10*tx+ty))
		}
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean) * 4096
	}
	sd := math.Sqrt(ss / (256*192 - 1))

	for c, s := range stats {
		if math.Abs(s.Mean-mean) > 1e-9 {
			t.Errorf("channel %d mean = %g, want %g", c, s.Mean, mean)
		}
		if math.Abs(s.StdDev-sd) > 1e-9 {
			t.Errorf("channel %d stddev = %g, want %g", c, s.StdDev, sd)
		}
		if s.Min != 0 || s.Max != 32 {
			t.Errorf("channel %d range = [%g, %g], want [0, 32]", c, s.Min, s.Max)
		}
	}

	if _, err := LevelStats(p, 9); !errors.Is(err, pyramid.ErrOutOfRange) {
		t.Errorf("LevelStats(9) error = %v, want ErrOutOfRange", err)
	}
}

func TestExportImport(t *testing.T) {
	for _, channels := range []int{1, 3} {
		src := testPyramid(t, channels)
		if err := src.SetSpacing(0.0005, 0.0005); err != nil {
			t.Fatal(err)
		}
		dir := filepath.Join(t.TempDir(), "patches")

		n, err := Export(context.Background(), src, dir, ExportOptions{Level: 0, Workers: 2})
		if err != nil {
			t.Fatal(err)
		}
		if n != 12 {
			t.Errorf("exported %d patches, want 12", n)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 12 {
			t.Errorf("%d files in export directory, want 12", len(entries))
		}
		if _, err := os.Stat(filepath.Join(dir, "patch_256_192_0_192_128_0.0005_0.0005.png")); err != nil {
			t.Errorf("expected patch file: %v", err)
		}

		dst, err := Import(context.Background(), dir, pyramid.WithRawMemory(), pyramid.WithThreshold(64),
			pyramid.WithTempDir(t.TempDir()))
		if err != nil {
			t.Fatal(err)
		}
		defer dst.Free()

		if dst.Channels() != channels || dst.FullWidth() != 256 || dst.FullHeight() != 192 {
			t.Errorf("imported %dx%dx%d", dst.FullWidth(), dst.FullHeight(), dst.Channels())
		}
		if sx, _ := dst.Spacing(); math.Abs(sx-0.0005) > 1e-12 {
			t.Errorf("imported spacing = %g, want 0.0005", sx)
		}
		for _, level := range []int{0, -1} {
			same, diffs, err := Compare(src, dst, CompareOptions{Level: level})
			if err != nil {
				t.Fatal(err)
			}
			if !same {
				t.Errorf("%d channels, level %d: round trip differs: %v", channels, level, diffs)
			}
		}
	}
}

func TestExportInitializedOnly(t *testing.T) {
	p, err := pyramid.Create(128, 128, 3, pyramid.WithRawMemory(), pyramid.WithTileSize(64, 64),
		pyramid.WithThreshold(64), pyramid.WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Free()
	err = p.Update(func(a *pyramid.Access) error {
		return a.SetPatchLevel(0, 64, 64, pyramid.NewImage(64, 64, 3))
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	n, err := Export(context.Background(), p, dir, ExportOptions{Level: 0, Initialized: true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("exported %d patches, want 1", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Export(ctx, p, t.TempDir(), ExportOptions{Level: 0}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled export error = %v, want context.Canceled", err)
	}
}

func TestImportErrors(t *testing.T) {
	if _, err := Import(context.Background(), t.TempDir()); err == nil {
		t.Error("importing an empty directory should fail")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Import(context.Background(), dir); !errors.Is(err, ErrPatchName) {
		t.Errorf("bad name error = %v, want ErrPatchName", err)
	}
}
