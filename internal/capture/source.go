// Package capture opens cameras and yields frames one at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
)

var (
	// ErrDeviceUnavailable is returned when a camera cannot be opened:
	// absent, busy, permission denied or no usable stream.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrFrameUnavailable is returned by Read when the device stops producing
	// frames: end of stream, disconnect, closed source or read timeout.
	ErrFrameUnavailable = errors.New("frame unavailable")

	// ErrReadTimeout is wrapped in ErrFrameUnavailable when a read exceeds
	// the configured read timeout.
	ErrReadTimeout = errors.New("read timeout")
)

// Source is an open camera. Read is called from a single goroutine;
// Close may be called concurrently with Read to unblock it.
type Source interface {
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (*frame.Frame, error)
	// Size returns the native frame dimensions.
	Size() (width, height int)
	// FPS returns the device frame rate, or a configured fallback.
	FPS() float64
	// Close releases the device. Safe to call more than once.
	Close() error
}

// Opener creates Sources. Each Open returns an independent handle.
type Opener interface {
	Open(ctx context.Context) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Source, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Source, error) {
	return f(ctx)
}

// Backend names.
const (
	BackendFFmpeg       = "ffmpeg"
	BackendMediaDevices = "mediadevices"
	BackendGoCV         = "gocv"
)

// DefaultFPS is used when neither the device nor the config report a rate.
const DefaultFPS = 20.0

// Config selects and tunes the capture backend.
type Config struct {
	Backend     string
	Device      string // /dev/video0, or a camera index for gocv
	InputFormat string
	Width       int
	Height      int
	FPS         float64
	Options     []string      // ffmpeg capture options
	OpenTimeout time.Duration // time allowed for the first frame
	ReadTimeout time.Duration // 0 = reads may block indefinitely
	FFmpegBin   string        // ffmpeg executable, defaults to "ffmpeg"
}

// New returns an Opener for the configured backend. A non-zero ReadTimeout
// wraps every opened source with a timed reader.
func New(cfg Config, logger logging.Logger) (Opener, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("capture device is required")
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}

	var opener Opener
	switch cfg.Backend {
	case "", BackendFFmpeg:
		opener = newFFmpegOpener(cfg, logger)
	case BackendMediaDevices:
		opener = newMediaDevicesOpener(cfg, logger)
	case BackendGoCV:
		o, err := newGocvOpener(cfg, logger)
		if err != nil {
			return nil, err
		}
		opener = o
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}

	if cfg.ReadTimeout > 0 {
		return withReadTimeout(opener, cfg.ReadTimeout), nil
	}
	return opener, nil
}

// unavailable wraps err so that errors.Is reports ErrDeviceUnavailable.
func unavailable(device string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, device, err)
}

// frameUnavailable wraps err so that errors.Is reports ErrFrameUnavailable.
func frameUnavailable(err error) error {
	if err == nil {
		return ErrFrameUnavailable
	}
	return fmt.Errorf("%w: %w", ErrFrameUnavailable, err)
}
