package pyramid

import (
	"log/slog"
	"os"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/tiletable"
)

// Defaults for created pyramids.
const (
	DefaultTileSize  = 256
	DefaultThreshold = 4096
	DefaultQuality   = 90
)

// TileAlign divides every tile width and height of a created pyramid.
const TileAlign = 16

// Option configures a pyramid constructor.
type Option func(*options)

type options struct {
	tileWidth   int
	tileHeight  int
	threshold   int
	rawMemory   bool
	compression compression.Compression
	quality     int
	tempDir     string
	logger      *slog.Logger
	registry    *Registry
	memoryLimit int64
	index       tiletable.IndexKind
	pool        *BufferPool
}

func newOptions(opts []Option) *options {
	o := &options{
		tileWidth:  DefaultTileSize,
		tileHeight: DefaultTileSize,
		threshold:  DefaultThreshold,
		quality:    DefaultQuality,
		tempDir:    os.TempDir(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.pool = NewBufferPool(o.memoryLimit)
	return o
}

// WithTileSize sets the tile size of created pyramids. Create rejects
// sizes that are not multiples of TileAlign.
func WithTileSize(width, height int) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.tileWidth, o.tileHeight = width, height
		}
	}
}

// WithThreshold sets the dimension below which the level chain of a
// created pyramid ends.
func WithThreshold(threshold int) Option {
	return func(o *options) {
		if threshold > 0 {
			o.threshold = threshold
		}
	}
}

// WithRawMemory stores a created pyramid uncompressed in a memory-mapped
// temporary file instead of a tiled TIFF.
func WithRawMemory() Option {
	return func(o *options) { o.rawMemory = true }
}

// WithCompression selects the tile compression of a created container.
// The default is LZW for one channel and JPEG otherwise.
func WithCompression(c compression.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithQuality sets the lossy compression quality from 1 to 100.
func WithQuality(q int) Option {
	return func(o *options) {
		if q > 0 {
			o.quality = min(q, 100)
		}
	}
}

// WithTempDir sets the directory of temporary storage files.
func WithTempDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.tempDir = dir
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry records the pyramid in r until it is freed.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithMemoryLimit bounds the scratch memory used to assemble patches.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) { o.memoryLimit = bytes }
}

// WithIndex selects the tile index used by OpenFile for tile tables.
func WithIndex(kind tiletable.IndexKind) Option {
	return func(o *options) { o.index = kind }
}
