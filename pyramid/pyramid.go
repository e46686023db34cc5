// Package pyramid stores gigapixel images as multi-resolution tiled
// pyramids backed by memory-mapped files or tiled TIFF containers.
//
// A pyramid is read and written through access sessions. Any number of
// read sessions may be open at once; a read-write session excludes every
// other session. Tiles written to a level are downsampled into every
// coarser level before the write returns.
//
//	p, err := pyramid.Create(100000, 80000, 3)
//	if err != nil {
//		return err
//	}
//	defer p.Free()
//
//	err = p.Update(func(a *pyramid.Access) error {
//		return a.SetPatch(0, 0, 0, tile)
//	})
package pyramid

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mrjoshuak/go-pyramid/container"
	"github.com/mrjoshuak/go-pyramid/slide"
	"github.com/mrjoshuak/go-pyramid/tiletable"
)

// noSpacing marks a pyramid without physical spacing.
const noSpacing = 1.0

// minSlideLevelBytes is the BGRA size below which slide levels are not
// imported.
const minSlideLevelBytes = 4 << 20

// Pyramid is a multi-resolution tiled image.
type Pyramid struct {
	id       string
	kind     Kind
	channels int
	levels   []Level

	// session is held shared by read sessions and exclusively by
	// read-write sessions, SetSpacing and Free.
	session sync.RWMutex

	mu            sync.Mutex // guards backend, spacing and magnification
	backend       backend
	spacingX      float64
	spacingY      float64
	magnification float64

	tiles      *tileState
	properties map[string]string
	pool       *BufferPool
	logger     *slog.Logger
	registry   *Registry
	compressed string
}

func newPyramid(kind Kind, channels int, levels []Level, b backend, o *options) *Pyramid {
	p := &Pyramid{
		id:         uuid.NewString(),
		kind:       kind,
		channels:   channels,
		levels:     levels,
		backend:    b,
		spacingX:   noSpacing,
		spacingY:   noSpacing,
		tiles:      newTileState(!kind.Writable()),
		properties: map[string]string{},
		pool:       o.pool,
		logger:     o.logger.With("pyramid", kind.String()),
		registry:   o.registry,
	}
	if p.registry != nil {
		p.registry.add(p.id, kind)
	}
	p.logger.Debug("pyramid created", "id", p.id, "levels", len(levels), "width", levels[0].Width, "height", levels[0].Height, "channels", channels)
	return p
}

// Create creates a writable pyramid of the given size. Levels halve until
// both dimensions drop below the threshold. Tiles are stored in a
// temporary tiled TIFF unless WithRawMemory is given.
func Create(width, height, channels int, opts ...Option) (*Pyramid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrOutOfRange, width, height)
	}
	if channels < 1 || channels > 4 {
		return nil, fmt.Errorf("%w: %d channels", ErrOutOfRange, channels)
	}
	o := newOptions(opts)
	if o.tileWidth%TileAlign != 0 || o.tileHeight%TileAlign != 0 {
		return nil, fmt.Errorf("%w: tile size %dx%d is not a multiple of %d",
			ErrUnsupportedOperation, o.tileWidth, o.tileHeight, TileAlign)
	}

	dims := levelChain(width, height, o.threshold)
	levels := make([]Level, len(dims))
	for i, d := range dims {
		levels[i] = newLevel(d[0], d[1], o.tileWidth, o.tileHeight, -1)
	}

	var (
		b    backend
		kind Kind
		err  error
	)
	if o.rawMemory {
		kind = RawMemory
		b, err = newRawBackend(levels, channels, o.tempDir, o.logger)
	} else {
		kind = WritableContainer
		var cb *containerBackend
		cb, err = newContainerBackend(levels, channels, o)
		if err == nil {
			b = cb
		}
	}
	if err != nil {
		return nil, err
	}

	p := newPyramid(kind, channels, levels, b, o)
	if cb, ok := b.(*containerBackend); ok {
		p.compressed = cb.file.Compression(0).String()
	}
	for i, lv := range levels {
		p.logger.Debug("level", "level", i, "width", lv.Width, "height", lv.Height, "tiles_x", lv.TilesX, "tiles_y", lv.TilesY)
	}
	return p, nil
}

// OpenSlide wraps a native slide reader. Levels below 4 MB of BGRA data
// are not imported, except level 0. The pyramid owns s and closes it in
// Free.
func OpenSlide(s slide.Slide, opts ...Option) (*Pyramid, error) {
	o := newOptions(opts)
	if s.LevelCount() == 0 {
		return nil, fmt.Errorf("%w: slide has no levels", ErrNotInitialized)
	}

	props := make(map[string]string)
	for _, name := range s.Properties() {
		props[name] = s.PropertyValue(name)
	}

	var levels []Level
	for i := 0; i < s.LevelCount(); i++ {
		w, h := s.LevelDimensions(i)
		if i > 0 && w*h*4 < minSlideLevelBytes {
			o.logger.Debug("skipping small slide level", "level", i, "width", w, "height", h)
			break
		}
		tw, th := s.TileSize(i)
		if v, err := strconv.Atoi(props[slide.LevelProperty(i, "tile-width")]); err == nil && v > 0 {
			tw = v
		}
		if v, err := strconv.Atoi(props[slide.LevelProperty(i, "tile-height")]); err == nil && v > 0 {
			th = v
		}
		if tw <= 0 || th <= 0 {
			tw, th = DefaultTileSize, DefaultTileSize
		}
		levels = append(levels, newLevel(int(w), int(h), tw, th, int64(i)))
	}

	p := newPyramid(ReadOnlySlide, 4, levels, newSlideBackend(s, len(levels)), o)
	p.properties = props
	if x, y, ok := slideSpacing(props); ok {
		p.spacingX, p.spacingY = x, y
	}
	if m, err := strconv.ParseFloat(props[slide.PropertyObjectivePower], 64); err == nil && m > 0 {
		p.magnification = m
	}
	return p, nil
}

// slideSpacing derives millimetre spacing from slide properties.
func slideSpacing(props map[string]string) (x, y float64, ok bool) {
	mppX, errX := strconv.ParseFloat(props[slide.PropertyMPPX], 64)
	mppY, errY := strconv.ParseFloat(props[slide.PropertyMPPY], 64)
	if errX == nil && errY == nil && mppX > 0 && mppY > 0 {
		return mppX / 1000, mppY / 1000, true
	}

	resX, errX := strconv.ParseFloat(props[slide.PropertyXResolution], 64)
	resY, errY := strconv.ParseFloat(props[slide.PropertyYResolution], 64)
	if errX != nil || errY != nil || resX <= 0 || resY <= 0 {
		return 0, 0, false
	}
	// Resolution is pixels per unit
	mmPerUnit := 1.0
	switch props[slide.PropertyResolutionUnit] {
	case "centimeter":
		mmPerUnit = 10
	case "inch":
		mmPerUnit = 25.4
	}
	return mmPerUnit / resX, mmPerUnit / resY, true
}

// OpenTileTable wraps a tile table reader. The pyramid owns t and closes
// it in Free.
func OpenTileTable(t *tiletable.Reader, opts ...Option) (*Pyramid, error) {
	o := newOptions(opts)
	tl := t.Levels()
	if len(tl) == 0 {
		return nil, fmt.Errorf("%w: tile table has no levels", ErrNotInitialized)
	}
	levels := make([]Level, len(tl))
	for i, lv := range tl {
		levels[i] = newLevel(lv.Width, lv.Height, lv.TileWidth, lv.TileHeight, int64(i))
	}

	p := newPyramid(ReadOnlyTileTable, 3, levels, &tileTableBackend{table: t}, o)
	p.properties["tiletable.format"] = t.Format().String()
	p.compressed = t.Format().String()
	return p, nil
}

// OpenContainer opens an existing tiled TIFF read-only.
func OpenContainer(path string, opts ...Option) (*Pyramid, error) {
	o := newOptions(opts)
	f, err := container.Open(path)
	if err != nil {
		return nil, classify(err)
	}

	cl := f.Levels()
	levels := make([]Level, len(cl))
	for i, lv := range cl {
		levels[i] = newLevel(lv.Width, lv.Height, lv.TileWidth, lv.TileHeight, int64(i))
	}

	p := newPyramid(Container, f.Channels(), levels, openContainerBackend(f, o.pool, o.logger), o)
	p.compressed = f.Compression(0).String()
	for name, v := range f.Metadata(0) {
		p.properties["tiff."+name] = v
	}
	if res, err := f.Resolution(0); err == nil {
		if x, y := res.SpacingMM(); x > 0 && y > 0 {
			p.spacingX, p.spacingY = x, y
		}
	}
	p.magnification = descriptionMagnification(f.Description(0))
	return p, nil
}

// OpenFile opens a tiled TIFF (.tif, .tiff, .svs) or tile table (.ttbl)
// by extension.
func OpenFile(path string, opts ...Option) (*Pyramid, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".svs":
		return OpenContainer(path, opts...)
	case ".ttbl":
		o := newOptions(opts)
		t, err := tiletable.Open(path, tiletable.Options{Index: o.index})
		if err != nil {
			return nil, classify(err)
		}
		p, err := OpenTileTable(t, opts...)
		if err != nil {
			t.Close()
		}
		return p, err
	}
	return nil, fmt.Errorf("%w: unknown file type %q", ErrUnsupportedOperation, filepath.Ext(path))
}

// ID returns the unique id of the pyramid.
func (p *Pyramid) ID() string { return p.id }

// Kind returns the storage kind.
func (p *Pyramid) Kind() Kind { return p.kind }

// Channels returns the number of interleaved 8-bit channels.
func (p *Pyramid) Channels() int { return p.channels }

// Compression returns the name of the tile encoding, or "" for raw storage
// and slides.
func (p *Pyramid) Compression() string { return p.compressed }

// LevelCount returns the number of levels.
func (p *Pyramid) LevelCount() int { return len(p.levels) }

// FullWidth returns the width of level 0.
func (p *Pyramid) FullWidth() int { return p.levels[0].Width }

// FullHeight returns the height of level 0.
func (p *Pyramid) FullHeight() int { return p.levels[0].Height }

// Levels returns a copy of the level descriptors, finest first.
func (p *Pyramid) Levels() []Level { return slices.Clone(p.levels) }

// LevelInfo returns the descriptor of a level. Level -1 is the coarsest.
func (p *Pyramid) LevelInfo(level int) (Level, error) {
	if level == -1 {
		level = len(p.levels) - 1
	}
	if level < 0 || level >= len(p.levels) {
		return Level{}, fmt.Errorf("%w: level %d of %d", ErrOutOfRange, level, len(p.levels))
	}
	return p.levels[level], nil
}

// LevelScale returns how many level-0 pixels one pixel of level spans
// horizontally.
func (p *Pyramid) LevelScale(level int) float64 {
	return float64(p.levels[0].Width) / float64(p.levels[level].Width)
}

// Properties returns a copy of the metadata.
func (p *Pyramid) Properties() map[string]string {
	return maps.Clone(p.properties)
}

// Spacing returns the level-0 pixel spacing in millimetres. Both values
// are 1 when no spacing is known.
func (p *Pyramid) Spacing() (x, y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spacingX, p.spacingY
}

// SetSpacing sets the level-0 pixel spacing in millimetres. Writable
// containers store the matching resolution on every level. It waits for
// open sessions to end and must not be called while holding one.
func (p *Pyramid) SetSpacing(x, y float64) error {
	if x <= 0 || y <= 0 {
		return fmt.Errorf("%w: spacing %g x %g", ErrOutOfRange, x, y)
	}
	p.session.Lock()
	defer p.session.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil {
		return ErrNotInitialized
	}
	p.spacingX, p.spacingY = x, y
	if x == noSpacing && y == noSpacing {
		return nil
	}
	if sw, ok := p.backend.(spacingWriter); ok && p.kind == WritableContainer {
		if err := sw.WriteSpacing(p.levels, x, y); err != nil {
			return err
		}
	}
	return nil
}

// SetDirtyPatch marks a tile as changed.
func (p *Pyramid) SetDirtyPatch(level, tx, ty int) {
	p.tiles.setDirty(TileID{Level: level, X: tx, Y: ty})
}

// DirtyPatches returns the changed tiles ordered by level, row, column.
func (p *Pyramid) DirtyPatches() []TileID {
	return p.tiles.dirtyList()
}

// ClearDirtyPatches unmarks the given tiles.
func (p *Pyramid) ClearDirtyPatches(ids []TileID) {
	p.tiles.clearDirty(ids)
}

// ClearAllDirtyPatches unmarks every tile.
func (p *Pyramid) ClearAllDirtyPatches() {
	p.tiles.clearAllDirty()
}

// IsPatchInitialized reports whether a tile has been written. Every tile
// of a fully initialized pyramid counts as written.
func (p *Pyramid) IsPatchInitialized(level, tx, ty int) bool {
	return p.tiles.isInitialized(TileID{Level: level, X: tx, Y: ty})
}

// SetFullyInitialized declares every tile written. Unwritten tiles then
// read back as stored instead of as background.
func (p *Pyramid) SetFullyInitialized() {
	p.tiles.setFully()
}

// FullyInitialized reports whether every tile counts as written.
func (p *Pyramid) FullyInitialized() bool {
	return p.tiles.isFully()
}

// Save writes a tiled TIFF copy of a container-backed pyramid to path.
// It waits for a read-write session to end.
func (p *Pyramid) Save(path string) error {
	p.session.RLock()
	defer p.session.RUnlock()
	b, err := p.storage()
	if err != nil {
		return err
	}
	s, ok := b.(saver)
	if !ok {
		return fmt.Errorf("%w: cannot save a %v pyramid", ErrUnsupportedOperation, p.kind)
	}
	return s.Save(path)
}

// Free releases the backend and removes temporary files. It waits for
// open sessions to end and must not be called while holding one. Free is
// idempotent.
func (p *Pyramid) Free() error {
	p.session.Lock()
	defer p.session.Unlock()

	p.mu.Lock()
	b := p.backend
	p.backend = nil
	p.mu.Unlock()
	if b == nil {
		return nil
	}

	if p.registry != nil {
		p.registry.remove(p.id)
	}
	p.logger.Debug("pyramid freed", "id", p.id)
	if err := b.Close(); err != nil && !errors.Is(err, container.ErrClosed) {
		return err
	}
	return nil
}

// storage returns the backend, or ErrNotInitialized after Free. Callers
// hold a session.
func (p *Pyramid) storage() (backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil {
		return nil, ErrNotInitialized
	}
	return p.backend, nil
}
