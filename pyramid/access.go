package pyramid

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// MaxImageSize is the largest width or height returned as an Image.
const MaxImageSize = 16384

// Mode is the kind of an access session.
type Mode int

// Access modes
const (
	ModeRead Mode = iota
	ModeReadWrite
)

func (m Mode) String() string {
	if m == ModeReadWrite {
		return "read-write"
	}
	return "read"
}

// Access is an open session on a pyramid. Read sessions share the
// pyramid; a read-write session holds it exclusively. Release the session
// when done; every method fails with ErrUseAfterRelease afterwards.
type Access struct {
	p        *Pyramid
	mode     Mode
	once     sync.Once
	released atomic.Bool
}

// Access opens a session, blocking until no conflicting session is open.
// Read-write sessions are only available on writable pyramids.
func (p *Pyramid) Access(mode Mode) (*Access, error) {
	if p == nil {
		return nil, ErrNotInitialized
	}
	if mode == ModeReadWrite && !p.kind.Writable() {
		return nil, fmt.Errorf("%w: %v pyramid is read-only", ErrUnsupportedOperation, p.kind)
	}

	if mode == ModeReadWrite {
		p.session.Lock()
	} else {
		p.session.RLock()
	}
	if _, err := p.storage(); err != nil {
		p.endSession(mode)
		return nil, err
	}

	a := &Access{p: p, mode: mode}
	runtime.SetFinalizer(a, (*Access).finalize)
	return a, nil
}

func (p *Pyramid) endSession(mode Mode) {
	if mode == ModeReadWrite {
		p.session.Unlock()
	} else {
		p.session.RUnlock()
	}
}

// View runs fn in a read session.
func (p *Pyramid) View(fn func(*Access) error) error {
	a, err := p.Access(ModeRead)
	if err != nil {
		return err
	}
	defer a.Release()
	return fn(a)
}

// Update runs fn in a read-write session.
func (p *Pyramid) Update(fn func(*Access) error) error {
	a, err := p.Access(ModeReadWrite)
	if err != nil {
		return err
	}
	defer a.Release()
	return fn(a)
}

func (a *Access) finalize() {
	if !a.released.Load() {
		a.p.logger.Warn("access session garbage collected without Release", "mode", a.mode.String())
		a.Release()
	}
}

// Mode returns the session mode.
func (a *Access) Mode() Mode { return a.mode }

// Release ends the session. Further calls are no-ops.
func (a *Access) Release() {
	a.once.Do(func() {
		a.released.Store(true)
		runtime.SetFinalizer(a, nil)
		a.p.endSession(a.mode)
	})
}

// backend returns the storage for an operation on the session.
func (a *Access) backend(write bool) (backend, error) {
	if a.released.Load() {
		return nil, ErrUseAfterRelease
	}
	if write && a.mode != ModeReadWrite {
		return nil, fmt.Errorf("%w: write in a read session", ErrUnsupportedOperation)
	}
	return a.p.storage()
}

func (a *Access) level(level int) (Level, error) {
	if level < 0 || level >= len(a.p.levels) {
		return Level{}, fmt.Errorf("%w: level %d of %d", ErrOutOfRange, level, len(a.p.levels))
	}
	return a.p.levels[level], nil
}

// Patch returns tile (tx, ty) of level. Tiles in the last column and row
// are cropped to the level.
func (a *Access) Patch(level, tx, ty int) (*Patch, error) {
	b, err := a.backend(false)
	if err != nil {
		return nil, err
	}
	lv, err := a.level(level)
	if err != nil {
		return nil, err
	}
	if !lv.Contains(tx, ty) {
		return nil, &TileError{Op: "read", Level: level, X: tx, Y: ty, Err: ErrOutOfRange}
	}

	x, y := tx*lv.TileWidth, ty*lv.TileHeight
	w := min(lv.TileWidth, lv.Width-x)
	h := min(lv.TileHeight, lv.Height-y)
	data, err := a.p.assemble(b, level, x, y, w, h)
	if err != nil {
		return nil, err
	}
	return &Patch{Level: level, OffsetX: x, OffsetY: y, Width: w, Height: h, Channels: a.p.channels, Data: data}, nil
}

// PatchData returns the w*h pixels of level at (x, y). The rectangle may
// extend past the level; those pixels read as background.
func (a *Access) PatchData(level, x, y, w, h int) ([]byte, error) {
	b, err := a.backend(false)
	if err != nil {
		return nil, err
	}
	if _, err := a.level(level); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, &RegionError{Level: level, X: x, Y: y, Width: w, Height: h, Err: ErrOutOfRange}
	}
	return a.p.assemble(b, level, x, y, w, h)
}

// PatchAsImage returns a rectangle inside the level as an Image. BGRA
// pyramids are converted to RGB when convertToRGB is set.
func (a *Access) PatchAsImage(level, x, y, w, h int, convertToRGB bool) (*Image, error) {
	b, err := a.backend(false)
	if err != nil {
		return nil, err
	}
	lv, err := a.level(level)
	if err != nil {
		return nil, err
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > lv.Width || y+h > lv.Height ||
		w > MaxImageSize || h > MaxImageSize {
		return nil, &RegionError{Level: level, X: x, Y: y, Width: w, Height: h, Err: ErrOutOfRange}
	}

	data, err := a.p.assemble(b, level, x, y, w, h)
	if err != nil {
		return nil, err
	}
	spx, spy := a.p.Spacing()
	img := &Image{
		Width:    w,
		Height:   h,
		Channels: a.p.channels,
		Pix:      data,
		SpacingX: spx * a.p.LevelScale(level),
		SpacingY: spy * float64(a.p.levels[0].Height) / float64(lv.Height),
	}
	if convertToRGB && a.p.channels == 4 && a.p.kind == ReadOnlySlide {
		img = img.toRGB()
	}
	return img, nil
}

// PatchAsImageForMagnification reads a rectangle at the given objective
// magnification. x and y are level-0 physical offsets in millimetres and
// w, h the size at the requested magnification. The closest finer level
// is resampled when no level matches within slack.
func (a *Access) PatchAsImageForMagnification(mag, slack, x, y float64, w, h int, convertToRGB bool) (*Image, error) {
	if _, err := a.backend(false); err != nil {
		return nil, err
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 || w > MaxImageSize || h > MaxImageSize {
		return nil, fmt.Errorf("%w: region %dx%d at (%g, %g) mm", ErrOutOfRange, w, h, x, y)
	}
	level, factor, err := a.p.ClosestLevelForMagnification(mag, slack)
	if err != nil {
		return nil, err
	}

	base := a.p.level0Spacing()
	scale := a.p.LevelScale(level)
	px := int(math.Round(x / base / scale))
	py := int(math.Round(y / base / scale))
	pw, ph := int(float64(w)*factor), int(float64(h)*factor)

	img, err := a.PatchAsImage(level, px, py, pw, ph, convertToRGB)
	if err != nil || factor <= 1 {
		return img, err
	}
	return resample(img, w, h)
}

// LevelAsImage returns a whole level as an RGB (or gray) Image.
func (a *Access) LevelAsImage(level int) (*Image, error) {
	lv, err := a.level(level)
	if err != nil {
		return nil, err
	}
	if lv.Width > MaxImageSize || lv.Height > MaxImageSize {
		return nil, fmt.Errorf("%w: level %d is %dx%d", ErrOutOfRange, level, lv.Width, lv.Height)
	}
	return a.PatchAsImage(level, 0, 0, lv.Width, lv.Height, true)
}

// SetPatch writes img as the tile with pixel origin (x, y) and propagates
// it into every coarser level. Images smaller than a tile are padded with
// background.
func (a *Access) SetPatch(level, x, y int, img *Image) error {
	return a.setPatch(level, x, y, img, true)
}

// SetPatchLevel writes img like SetPatch without updating coarser levels.
func (a *Access) SetPatchLevel(level, x, y int, img *Image) error {
	return a.setPatch(level, x, y, img, false)
}

func (a *Access) setPatch(level, x, y int, img *Image, propagate bool) error {
	b, err := a.backend(true)
	if err != nil {
		return err
	}
	lv, tx, ty, err := a.tileAt(level, x, y)
	if err != nil {
		return err
	}
	if err := img.validate(); err != nil {
		return err
	}
	if img.Channels != a.p.channels {
		return fmt.Errorf("%w: %d channel image for %d channel pyramid", ErrUnsupportedOperation, img.Channels, a.p.channels)
	}
	if img.Width > lv.TileWidth || img.Height > lv.TileHeight {
		return fmt.Errorf("%w: %dx%d image for %dx%d tiles", ErrOutOfRange, img.Width, img.Height, lv.TileWidth, lv.TileHeight)
	}

	data := img.Pix
	if img.Width != lv.TileWidth || img.Height != lv.TileHeight {
		data = make([]byte, lv.TileBytes(a.p.channels))
		fill(data, background(a.p.channels))
		blit(data, lv.TileWidth*img.Channels, 0, 0, img.Pix, img.Stride(), 0, 0, img.Width, img.Height, img.Channels)
	}

	if err := b.(tileWriter).WriteTile(level, tx, ty, data); err != nil {
		return &TileError{Op: "write", Level: level, X: tx, Y: ty, Err: classify(err)}
	}

	// The tile is stored even when propagation fails part way
	if propagate {
		err = a.p.propagate(b, level, x, y, data)
	}
	a.p.tiles.markWritten(TileID{Level: level, X: tx, Y: ty})
	return err
}

// SetBlankPatch stores the tile with pixel origin (x, y) as empty so it
// reads back as background, and marks it initialized.
func (a *Access) SetBlankPatch(level, x, y int) error {
	b, err := a.backend(true)
	if err != nil {
		return err
	}
	_, tx, ty, err := a.tileAt(level, x, y)
	if err != nil {
		return err
	}
	if err := b.(tileWriter).WriteBlank(level, tx, ty); err != nil {
		return &TileError{Op: "write", Level: level, X: tx, Y: ty, Err: classify(err)}
	}
	a.p.tiles.markInitialized(TileID{Level: level, X: tx, Y: ty})
	return nil
}

// tileAt resolves a tile-aligned pixel origin to tile coordinates.
func (a *Access) tileAt(level, x, y int) (Level, int, int, error) {
	lv, err := a.level(level)
	if err != nil {
		return Level{}, 0, 0, err
	}
	if x < 0 || y < 0 || x%lv.TileWidth != 0 || y%lv.TileHeight != 0 {
		return Level{}, 0, 0, &RegionError{Level: level, X: x, Y: y, Width: lv.TileWidth, Height: lv.TileHeight,
			Err: fmt.Errorf("%w: origin is not tile aligned", ErrOutOfRange)}
	}
	tx, ty := x/lv.TileWidth, y/lv.TileHeight
	if !lv.Contains(tx, ty) {
		return Level{}, 0, 0, &TileError{Op: "write", Level: level, X: tx, Y: ty, Err: ErrOutOfRange}
	}
	return lv, tx, ty, nil
}

// IsPatchInitialized reports whether tile (tx, ty) of level was written.
func (a *Access) IsPatchInitialized(level, tx, ty int) (bool, error) {
	if _, err := a.backend(false); err != nil {
		return false, err
	}
	return a.p.IsPatchInitialized(level, tx, ty), nil
}
