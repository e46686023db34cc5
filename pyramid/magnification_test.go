package pyramid

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/mrjoshuak/go-pyramid/compression"
)

func TestGuessMagnification(t *testing.T) {
	tests := []struct {
		spacing float64
		want    float64
	}{
		{0.00025, 40},
		{0.00035, 40},
		{0.0005, 20},
		{0.001, 10},
		{0.002, 5},
		{0.01, 1},
		{0.0007, 0},
		{0.0001, 0},
		{0.05, 0},
	}
	for _, tt := range tests {
		if got := guessMagnification(tt.spacing); got != tt.want {
			t.Errorf("guessMagnification(%g) = %g, want %g", tt.spacing, got, tt.want)
		}
	}
}

func TestMagnification(t *testing.T) {
	p := newTestPyramid(t, 256, 256, 3, WithRawMemory())
	if _, err := p.Magnification(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Magnification without spacing error = %v, want ErrNotInitialized", err)
	}

	if err := p.SetSpacing(0.0005, 0.0005); err != nil {
		t.Fatal(err)
	}
	if m, err := p.Magnification(); err != nil || m != 20 {
		t.Errorf("Magnification = %g, %v; want 20", m, err)
	}

	if err := p.SetMagnification(10); err != nil {
		t.Fatal(err)
	}
	if m, _ := p.Magnification(); m != 10 {
		t.Errorf("explicit magnification = %g, want 10", m)
	}
	if err := p.SetMagnification(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetMagnification(-1) error = %v, want ErrOutOfRange", err)
	}
}

func TestLevelForMagnification(t *testing.T) {
	// Levels 256, 128, 64, 32 at 0.25 um
	p := newTestPyramid(t, 256, 256, 3, WithRawMemory())
	if err := p.SetSpacing(0.00025, 0.00025); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		mag   float64
		slack float64
		want  int
		err   error
	}{
		{40, 0.1, 0, nil},
		{20, 0.1, 1, nil},
		{10, 0.1, 2, nil},
		{5, 0.1, 3, nil},
		{19, 0.1, 1, nil},
		{2, 0.1, 0, ErrNoSuitableLevel},
		{2, 0.7, 3, nil},
		{0, 0.1, 0, ErrOutOfRange},
	}
	for _, tt := range tests {
		got, err := p.LevelForMagnification(tt.mag, tt.slack)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("LevelForMagnification(%g, %g) error = %v, want %v", tt.mag, tt.slack, err, tt.err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("LevelForMagnification(%g, %g) = %d, %v; want %d", tt.mag, tt.slack, got, err, tt.want)
		}
	}
}

func TestLevelForMagnificationWithoutSpacing(t *testing.T) {
	p := newTestPyramid(t, 256, 256, 3, WithRawMemory())

	// The 40x reference applies
	if l, err := p.LevelForMagnification(10, 0.1); err != nil || l != 2 {
		t.Errorf("reference spacing: level %d, %v; want 2", l, err)
	}

	// An explicit magnification shifts level 0
	if err := p.SetMagnification(20); err != nil {
		t.Fatal(err)
	}
	if l, err := p.LevelForMagnification(10, 0.1); err != nil || l != 1 {
		t.Errorf("20x slide: level %d, %v; want 1", l, err)
	}
}

func TestMagnificationSurvivesSave(t *testing.T) {
	p := newTestPyramid(t, 128, 128, 3, WithCompression(compression.LZW))
	if err := p.SetSpacing(0.00025, 0.00025); err != nil {
		t.Fatal(err)
	}
	if err := p.SetMagnification(20); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "mag.tiff")
	if err := p.Save(path); err != nil {
		t.Fatal(err)
	}

	saved, err := OpenContainer(path)
	if err != nil {
		t.Fatal(err)
	}
	defer saved.Free()
	if m, err := saved.Magnification(); err != nil || m != 20 {
		t.Errorf("saved Magnification = %g, %v; want 20", m, err)
	}
	if d := saved.Properties()["tiff.ImageDescription"]; d != "go-pyramid|AppMag = 20" {
		t.Errorf("saved description = %q", d)
	}
}

func TestDescriptionMagnification(t *testing.T) {
	tests := []struct {
		desc string
		want float64
	}{
		{"go-pyramid|AppMag = 20", 20},
		{formatDescription(2.5), 2.5},
		{"Aperio Image Library v10\r\n46920x33014|AppMag = 40|MPP = 0.25", 40},
		{"AppMag = 20", 0},
		{"x|AppMag = fast", 0},
		{"x|AppMag = -4", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := descriptionMagnification(tt.desc); got != tt.want {
			t.Errorf("descriptionMagnification(%q) = %g, want %g", tt.desc, got, tt.want)
		}
	}
}

func TestClosestLevelForMagnification(t *testing.T) {
	p := newTestPyramid(t, 256, 256, 3, WithRawMemory())
	if err := p.SetSpacing(0.00025, 0.00025); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		mag    float64
		slack  float64
		level  int
		factor float64
	}{
		{10, 0.1, 2, 1},
		{15, 0.1, 1, 4.0 / 3},
		{15, 0.5, 1, 1},
		{30, 0.1, 0, 4.0 / 3},
	}
	for _, tt := range tests {
		level, factor, err := p.ClosestLevelForMagnification(tt.mag, tt.slack)
		if err != nil {
			t.Errorf("ClosestLevelForMagnification(%g) error = %v", tt.mag, err)
			continue
		}
		if level != tt.level || math.Abs(factor-tt.factor) > 1e-9 {
			t.Errorf("ClosestLevelForMagnification(%g, %g) = %d, %g; want %d, %g",
				tt.mag, tt.slack, level, factor, tt.level, tt.factor)
		}
	}

	if _, _, err := p.ClosestLevelForMagnification(0, 0.1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("magnification 0 error = %v, want ErrOutOfRange", err)
	}
}

func TestPatchAsImageForMagnification(t *testing.T) {
	p := newTestPyramid(t, 256, 256, 3, WithRawMemory())
	if err := p.SetSpacing(0.00025, 0.00025); err != nil {
		t.Fatal(err)
	}
	err := p.Update(func(a *Access) error {
		for y := 0; y < 256; y += 64 {
			for x := 0; x < 256; x += 64 {
				if err := a.SetPatch(0, x, y, constantImage(64, 64, 3, 100)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := p.Access(ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()

	exact, err := a.PatchAsImageForMagnification(20, 0.1, 0.004, 0.004, 32, 32, false)
	if err != nil {
		t.Fatal(err)
	}
	if exact.Width != 32 || exact.Height != 32 || !allEqual(exact.Pix, 100) {
		t.Errorf("20x patch = %dx%d", exact.Width, exact.Height)
	}
	if exact.SpacingX != 0.0005 {
		t.Errorf("20x spacing = %g, want 0.0005", exact.SpacingX)
	}

	scaled, err := a.PatchAsImageForMagnification(15, 0.1, 0, 0, 32, 32, false)
	if err != nil {
		t.Fatal(err)
	}
	if scaled.Width != 32 || scaled.Height != 32 {
		t.Fatalf("15x patch = %dx%d, want 32x32", scaled.Width, scaled.Height)
	}
	for i, v := range scaled.Pix {
		if v < 99 || v > 101 {
			t.Fatalf("resampled byte %d = %d, want about 100", i, v)
		}
	}
	if scaled.SpacingX <= exact.SpacingX {
		t.Errorf("15x spacing %g should exceed 20x spacing %g", scaled.SpacingX, exact.SpacingX)
	}

	if _, err := a.PatchAsImageForMagnification(20, 0.1, -1, 0, 32, 32, false); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("negative offset error = %v, want ErrOutOfRange", err)
	}
}
