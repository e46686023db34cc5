package pyramid

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/container"
	"github.com/mrjoshuak/go-pyramid/internal/interleave"
)

// containerBackend stores tiles in a tiled TIFF. Four-channel pyramids
// are stored as RGB: alpha is dropped on write and read back as 255.
type containerBackend struct {
	file     *container.File
	kind     Kind
	channels int // pyramid channels
	pool     *BufferPool
	owned    string // temporary file removed on Close
	logger   *slog.Logger
}

// containerChannels returns the samples per pixel stored for a pyramid
// with the given channels.
func containerChannels(channels int) (int, error) {
	switch channels {
	case 1:
		return 1, nil
	case 3, 4:
		return 3, nil
	}
	return 0, fmt.Errorf("%w: tiled container with %d channels", ErrUnsupportedOperation, channels)
}

// newContainerBackend creates a temporary container for levels. Every
// level receives an all-zero placeholder tile at (0, 0).
func newContainerBackend(levels []Level, channels int, o *options) (*containerBackend, error) {
	stored, err := containerChannels(channels)
	if err != nil {
		return nil, err
	}
	c := o.compression
	if c == 0 {
		c = compression.JPEG
		if channels == 1 {
			c = compression.LZW
		}
	}
	if !c.CanEncode() {
		return nil, fmt.Errorf("%w: compression %v", ErrUnsupportedOperation, c)
	}
	if c == compression.JPEG && channels == 1 {
		return nil, fmt.Errorf("%w: jpeg tiles need 3 or 4 channels", ErrUnsupportedOperation)
	}

	cl := make([]container.Level, len(levels))
	for i, lv := range levels {
		cl[i] = container.Level{Width: lv.Width, Height: lv.Height, TileWidth: lv.TileWidth, TileHeight: lv.TileHeight}
	}

	path := filepath.Join(o.tempDir, "pyramid-"+uuid.NewString()+".tiff")
	f, err := container.Create(path, cl, stored, container.Options{
		Compression: c,
		Quality:     o.quality,
		Predictor:   c.Predicted(),
	})
	if err != nil {
		return nil, classify(err)
	}

	b := &containerBackend{file: f, kind: WritableContainer, channels: channels, pool: o.pool, owned: path, logger: o.logger}
	for i, lv := range levels {
		levels[i].Offset = int64(i)
		if err := f.WriteTile(i, 0, 0, make([]byte, lv.TileWidth*lv.TileHeight*stored)); err != nil {
			b.Close()
			return nil, classify(err)
		}
	}
	return b, nil
}

// openContainerBackend wraps an existing file read-only.
func openContainerBackend(f *container.File, pool *BufferPool, logger *slog.Logger) *containerBackend {
	return &containerBackend{file: f, kind: Container, channels: f.Channels(), pool: pool, logger: logger}
}

func (b *containerBackend) Kind() Kind { return b.kind }

func (b *containerBackend) restoresAlpha() bool {
	return b.channels == 4 && b.file.Channels() == 3
}

func (b *containerBackend) ReadTile(level, tx, ty int, dst []byte) (bool, error) {
	if !b.restoresAlpha() {
		present, err := b.file.ReadTile(level, tx, ty, dst)
		return present, classify(err)
	}

	rgb, err := b.pool.Get(len(dst) / 4 * 3)
	if err != nil {
		return false, err
	}
	defer b.pool.Put(rgb)
	present, err := b.file.ReadTile(level, tx, ty, rgb)
	if err != nil || !present {
		return present, classify(err)
	}
	interleave.AddAlpha(rgb, 255, dst)
	return true, nil
}

func (b *containerBackend) WriteTile(level, tx, ty int, src []byte) error {
	if b.kind != WritableContainer {
		return ErrUnsupportedOperation
	}
	if !b.restoresAlpha() {
		return classify(b.file.WriteTile(level, tx, ty, src))
	}

	rgb, err := b.pool.Get(len(src) / 4 * 3)
	if err != nil {
		return err
	}
	defer b.pool.Put(rgb)
	interleave.DropAlpha(src, rgb)
	return classify(b.file.WriteTile(level, tx, ty, rgb))
}

func (b *containerBackend) WriteBlank(level, tx, ty int) error {
	if b.kind != WritableContainer {
		return ErrUnsupportedOperation
	}
	return classify(b.file.WriteBlank(level, tx, ty))
}

// WriteSpacing stores the resolution of every level in pixels per
// centimetre.
func (b *containerBackend) WriteSpacing(levels []Level, x, y float64) error {
	if b.kind != WritableContainer {
		return ErrUnsupportedOperation
	}
	full := levels[0]
	for i, lv := range levels {
		scaleX := float64(full.Width) / float64(lv.Width)
		scaleY := float64(full.Height) / float64(lv.Height)
		res := container.Resolution{
			X:    10 / (x * scaleX),
			Y:    10 / (y * scaleY),
			Unit: container.ResolutionCentimeter,
		}
		if err := b.file.SetResolution(i, res); err != nil {
			return classify(err)
		}
	}
	return nil
}

// WriteMagnification records mag in the description of level 0.
func (b *containerBackend) WriteMagnification(mag float64) error {
	if b.kind != WritableContainer {
		return ErrUnsupportedOperation
	}
	return classify(b.file.SetDescription(formatDescription(mag)))
}

// Save flushes the offset tables and copies the container to path.
func (b *containerBackend) Save(path string) error {
	if err := b.file.Flush(); err != nil {
		return classify(err)
	}
	src, err := os.Open(b.file.Path())
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Close closes the file and removes it when it is temporary.
func (b *containerBackend) Close() error {
	err := b.file.Close()
	if b.owned != "" {
		if rmErr := os.Remove(b.owned); rmErr != nil && !os.IsNotExist(rmErr) {
			b.logger.Warn("removing temporary container", "path", b.owned, "err", rmErr)
		}
		b.owned = ""
	}
	return err
}
