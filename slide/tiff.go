package slide

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mrjoshuak/go-pyramid/container"
)

// DefaultCacheTiles is the number of decoded tiles a TIFF slide keeps.
const DefaultCacheTiles = 64

// TIFF is a Slide backed by a pyramidal tiled TIFF. Decoded tiles are
// kept in an LRU cache shared by all levels.
type TIFF struct {
	file        *container.File
	levels      []container.Level
	downsamples []float64
	props       map[string]string
	cache       *lru.Cache
	closed      atomic.Bool
}

type tileKey struct {
	level, tx, ty int
}

// Option configures OpenTIFF.
type Option func(*tiffOptions)

type tiffOptions struct {
	cacheTiles int
}

// WithCacheTiles sets the decoded tile cache capacity.
func WithCacheTiles(n int) Option {
	return func(o *tiffOptions) {
		if n > 0 {
			o.cacheTiles = n
		}
	}
}

// OpenTIFF opens a pyramidal TIFF or SVS file.
func OpenTIFF(path string, opts ...Option) (*TIFF, error) {
	o := tiffOptions{cacheTiles: DefaultCacheTiles}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(o.cacheTiles)
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &TIFF{
		file:   f,
		levels: f.Levels(),
		cache:  cache,
	}
	w0, h0 := float64(s.levels[0].Width), float64(s.levels[0].Height)
	for _, l := range s.levels {
		ds := (w0/float64(l.Width) + h0/float64(l.Height)) / 2
		s.downsamples = append(s.downsamples, ds)
	}
	s.props = s.buildProperties()
	return s, nil
}

func (s *TIFF) buildProperties() map[string]string {
	p := make(map[string]string)
	for name, v := range s.file.Metadata(0) {
		p["tiff."+name] = v
	}
	p[PropertyLevelCount] = strconv.Itoa(len(s.levels))
	for i, l := range s.levels {
		p[LevelProperty(i, "width")] = strconv.Itoa(l.Width)
		p[LevelProperty(i, "height")] = strconv.Itoa(l.Height)
		p[LevelProperty(i, "downsample")] = formatFloat(s.downsamples[i])
		p[LevelProperty(i, "tile-width")] = strconv.Itoa(l.TileWidth)
		p[LevelProperty(i, "tile-height")] = strconv.Itoa(l.TileHeight)
	}

	if res, err := s.file.Resolution(0); err == nil && res.X > 0 && res.Y > 0 {
		p[PropertyXResolution] = formatFloat(res.X)
		p[PropertyYResolution] = formatFloat(res.Y)
		var umPerUnit float64
		switch res.Unit {
		case container.ResolutionCentimeter:
			p[PropertyResolutionUnit] = "centimeter"
			umPerUnit = 10000
		case container.ResolutionInch:
			p[PropertyResolutionUnit] = "inch"
			umPerUnit = 25400
		default:
			p[PropertyResolutionUnit] = "none"
		}
		if umPerUnit > 0 {
			p[PropertyMPPX] = formatFloat(umPerUnit / res.X)
			p[PropertyMPPY] = formatFloat(umPerUnit / res.Y)
		}
	}

	desc := s.file.Description(0)
	if !strings.HasPrefix(desc, "Aperio") {
		p[PropertyVendor] = "generic-tiff"
		if mag := parseAperio(desc)["AppMag"]; mag != "" {
			p[PropertyObjectivePower] = mag
		}
		return p
	}
	p[PropertyVendor] = "aperio"
	for k, v := range parseAperio(desc) {
		p["aperio."+k] = v
		switch k {
		case "AppMag":
			p[PropertyObjectivePower] = v
		case "MPP":
			p[PropertyMPPX] = v
			p[PropertyMPPY] = v
		}
	}
	return p
}

// parseAperio splits an Aperio ImageDescription of the form
// "Aperio Image Library v12\r\n... |AppMag = 40|MPP = 0.25" into fields.
func parseAperio(desc string) map[string]string {
	out := make(map[string]string)
	parts := strings.Split(desc, "|")
	for _, part := range parts[1:] {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// LevelCount returns the number of levels.
func (s *TIFF) LevelCount() int { return len(s.levels) }

// LevelDimensions returns the size of a level, or -1, -1 when out of range.
func (s *TIFF) LevelDimensions(level int) (w, h int64) {
	if level < 0 || level >= len(s.levels) {
		return -1, -1
	}
	return int64(s.levels[level].Width), int64(s.levels[level].Height)
}

// LevelDownsample returns the downsample factor of a level relative to
// level 0, or -1 when out of range.
func (s *TIFF) LevelDownsample(level int) float64 {
	if level < 0 || level >= len(s.levels) {
		return -1
	}
	return s.downsamples[level]
}

// TileSize returns the stored tile size of a level.
func (s *TIFF) TileSize(level int) (w, h int) {
	if level < 0 || level >= len(s.levels) {
		return 0, 0
	}
	return s.levels[level].TileWidth, s.levels[level].TileHeight
}

// BestLevelForDownsample returns the coarsest level that is not coarser
// than downsample.
func (s *TIFF) BestLevelForDownsample(downsample float64) int {
	return bestLevel(s.downsamples, downsample)
}

// Properties returns the sorted property names.
func (s *TIFF) Properties() []string {
	names := make([]string, 0, len(s.props))
	for k := range s.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PropertyValue returns a property, or "" when unset.
func (s *TIFF) PropertyValue(name string) string {
	return s.props[name]
}

// ReadRegion implements Slide.
func (s *TIFF) ReadRegion(dst []byte, x, y int64, level int, w, h int64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if level < 0 || level >= len(s.levels) {
		return ErrLevelOutOfRange
	}
	if w < 0 || h < 0 || int64(len(dst)) < w*h*4 {
		return fmt.Errorf("%w: %dx%d into %d bytes", ErrRegion, w, h, len(dst))
	}
	clear(dst[:w*h*4])

	lv := s.levels[level]
	ds := s.downsamples[level]
	lx := int64(math.Round(float64(x) / ds))
	ly := int64(math.Round(float64(y) / ds))
	tw, th := int64(lv.TileWidth), int64(lv.TileHeight)

	x0, x1 := max(lx, 0), min(lx+w, int64(lv.Width))
	y0, y1 := max(ly, 0), min(ly+h, int64(lv.Height))
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	ch := s.file.Channels()
	for ty := y0 / th; ty <= (y1-1)/th; ty++ {
		for tx := x0 / tw; tx <= (x1-1)/tw; tx++ {
			tile, err := s.tile(level, int(tx), int(ty))
			if err != nil {
				return err
			}
			if tile == nil {
				continue
			}

			cx0, cx1 := max(x0, tx*tw), min(x1, (tx+1)*tw)
			cy0, cy1 := max(y0, ty*th), min(y1, (ty+1)*th)
			n := int(cx1 - cx0)
			for py := cy0; py < cy1; py++ {
				src := tile[((py-ty*th)*tw+(cx0-tx*tw))*int64(ch):]
				out := dst[((py-ly)*w+(cx0-lx))*4:]
				toBGRA(out[:n*4], src[:n*ch], ch)
			}
		}
	}
	return nil
}

func toBGRA(out, src []byte, ch int) {
	for i, j := 0, 0; i < len(out); i, j = i+4, j+ch {
		switch ch {
		case 1:
			out[i], out[i+1], out[i+2], out[i+3] = src[j], src[j], src[j], 255
		case 3:
			out[i], out[i+1], out[i+2], out[i+3] = src[j+2], src[j+1], src[j], 255
		default:
			out[i], out[i+1], out[i+2], out[i+3] = src[j+2], src[j+1], src[j], src[j+3]
		}
	}
}

// tile returns a decoded tile, or nil when the tile has no payload.
func (s *TIFF) tile(level, tx, ty int) ([]byte, error) {
	key := tileKey{level, tx, ty}
	if v, ok := s.cache.Get(key); ok {
		return v.([]byte), nil
	}

	l := s.levels[level]
	buf := make([]byte, l.TileWidth*l.TileHeight*s.file.Channels())
	ok, err := s.file.ReadTile(level, tx, ty, buf)
	if err != nil {
		return nil, err
	}
	if !ok {
		buf = nil
	}
	s.cache.Add(key, buf)
	return buf, nil
}

// Close releases the file. It is safe to call more than once.
func (s *TIFF) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cache.Purge()
	return s.file.Close()
}
