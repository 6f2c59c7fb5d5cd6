// Package sink writes frames into video files.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/smazurov/facegate/internal/ffmpeg"
	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
)

var (
	// ErrSinkCreate is returned by Open when the output cannot be created
	// or the encoder cannot start.
	ErrSinkCreate = errors.New("sink create failed")

	// ErrDimensionMismatch is returned by Write for a frame whose size
	// differs from the one given to Open.
	ErrDimensionMismatch = errors.New("frame dimensions do not match sink")

	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("sink closed")
)

// Sink owns one output file. Write and Close are called from one goroutine
// at a time; Close is idempotent.
type Sink interface {
	Write(f *frame.Frame) error
	Close() error
	Path() string
}

// Checker is implemented by sinks that can fail between writes, such as an
// encoder process exiting on its own. Err returns nil while the sink is usable.
type Checker interface {
	Err() error
}

// Opener creates sinks for a fixed encoder configuration.
type Opener interface {
	Open(path string, width, height int, fps float64) (Sink, error)
	// Ext is the file extension of the containers this opener writes.
	Ext() string
}

// Backend names.
const (
	BackendFFmpeg = "ffmpeg"
	BackendGoCV   = "gocv"
)

// Config selects and tunes the sink backend.
type Config struct {
	Backend   string
	Container ffmpeg.Container
	Encoder   string
	Preset    string
	CRF       int
	Bitrate   string
	FFmpegBin string
}

// New returns an Opener for the configured backend.
func New(cfg Config, logger logging.Logger) (Opener, error) {
	if cfg.Container == "" {
		cfg.Container = ffmpeg.ContainerAVI
	}
	switch cfg.Container {
	case ffmpeg.ContainerAVI, ffmpeg.ContainerMP4:
	default:
		return nil, fmt.Errorf("unsupported container %q", cfg.Container)
	}

	switch cfg.Backend {
	case "", BackendFFmpeg:
		return &ffmpegOpener{cfg: cfg, logger: logger, grace: encoderGrace}, nil
	case BackendGoCV:
		return newGocvOpener(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
}

// FileName returns recording_<unix-seconds>.<ext>. Two sessions started in
// the same second map to the same name; the second one fails in Open.
func FileName(t time.Time, ext string) string {
	return "recording_" + strconv.FormatInt(t.Unix(), 10) + "." + ext
}

// PathAt joins dir with the file name for a session started at t.
func PathAt(dir string, t time.Time, ext string) string {
	return filepath.Join(dir, FileName(t, ext))
}

// reserve creates path exclusively, making its directory first. The empty
// file is removed again by the returned cleanup if the encoder fails to start.
func reserve(path string) (cleanup func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrSinkCreate, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkCreate, err)
	}
	f.Close()
	return func() { os.Remove(path) }, nil
}

func checkSize(f *frame.Frame, width, height int) error {
	if f.Width != width || f.Height != height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrDimensionMismatch, f.Width, f.Height, width, height)
	}
	return nil
}
