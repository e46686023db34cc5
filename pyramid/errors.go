package pyramid

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/container"
	"github.com/mrjoshuak/go-pyramid/slide"
	"github.com/mrjoshuak/go-pyramid/tiletable"
)

// Pyramid errors
var (
	ErrNotInitialized       = errors.New("pyramid: not initialized")
	ErrOutOfRange           = errors.New("pyramid: out of range")
	ErrUnsupportedOperation = errors.New("pyramid: unsupported operation")
	ErrDecode               = errors.New("pyramid: malformed tile payload")
	ErrNoSuitableLevel      = errors.New("pyramid: no suitable level")
	ErrUseAfterRelease      = errors.New("pyramid: access used after release")
)

// TileError reports a failed tile read or write.
type TileError struct {
	Op    string
	Level int
	X, Y  int
	Err   error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("pyramid: %s tile (%d, %d) of level %d: %v", e.Op, e.X, e.Y, e.Level, e.Err)
}

func (e *TileError) Unwrap() error { return e.Err }

// RegionError reports a failed region request in pixel coordinates.
type RegionError struct {
	Level         int
	X, Y          int
	Width, Height int
	Err           error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("pyramid: region %dx%d at (%d, %d) of level %d: %v",
		e.Width, e.Height, e.X, e.Y, e.Level, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }

// PropagationError reports the level at which downsample propagation
// stopped. Levels finer than Level were already written.
type PropagationError struct {
	Level int
	Err   error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("pyramid: propagation to level %d: %v", e.Level, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }

// classify attaches the pyramid sentinel matching a storage error, keeping
// the original error in the chain.
func classify(err error) error {
	var sentinel error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDecode), errors.Is(err, ErrOutOfRange),
		errors.Is(err, ErrUnsupportedOperation), errors.Is(err, ErrNotInitialized):
		return err
	case errors.Is(err, compression.ErrCorrupted), errors.Is(err, tiletable.ErrPayload),
		errors.Is(err, tiletable.ErrTruncated), errors.Is(err, tiletable.ErrHeader):
		sentinel = ErrDecode
	case errors.Is(err, compression.ErrUnsupported), errors.Is(err, container.ErrReadOnly),
		errors.Is(err, container.ErrTooLarge):
		sentinel = ErrUnsupportedOperation
	case errors.Is(err, container.ErrTileOutOfRange), errors.Is(err, container.ErrLevelOutOfRange),
		errors.Is(err, tiletable.ErrOutOfRange), errors.Is(err, slide.ErrLevelOutOfRange),
		errors.Is(err, slide.ErrRegion):
		sentinel = ErrOutOfRange
	case errors.Is(err, container.ErrClosed), errors.Is(err, tiletable.ErrClosed),
		errors.Is(err, slide.ErrClosed):
		sentinel = ErrNotInitialized
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
