//go:build gocv

package sink

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/smazurov/facegate/internal/ffmpeg"
	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
)

type gocvOpener struct {
	cfg    Config
	logger logging.Logger
}

func newGocvOpener(cfg Config, logger logging.Logger) (Opener, error) {
	return &gocvOpener{cfg: cfg, logger: logger}, nil
}

func (o *gocvOpener) Ext() string {
	return o.cfg.Container.Ext()
}

// fourcc picks the OpenCV codec for the container.
func (o *gocvOpener) fourcc() string {
	if o.cfg.Container == ffmpeg.ContainerMP4 {
		return "mp4v"
	}
	return "XVID"
}

func (o *gocvOpener) Open(path string, width, height int, fps float64) (Sink, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("%w: invalid geometry %dx%d@%v", ErrSinkCreate, width, height, fps)
	}
	cleanup, err := reserve(path)
	if err != nil {
		return nil, err
	}
	w, err := gocv.VideoWriterFile(path, o.fourcc(), fps, width, height, true)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %w", ErrSinkCreate, err)
	}
	if !w.IsOpened() {
		w.Close()
		cleanup()
		return nil, fmt.Errorf("%w: writer for %s did not open", ErrSinkCreate, path)
	}
	o.logger.Info("Recording file opened", "path", path, "width", width, "height", height, "fps", fps)
	return &gocvSink{path: path, width: width, height: height, writer: w, logger: o.logger}, nil
}

type gocvSink struct {
	path   string
	width  int
	height int
	writer *gocv.VideoWriter
	logger logging.Logger

	mu     sync.Mutex // Close can run from a forced release while the worker writes
	closed bool
}

func (s *gocvSink) Path() string {
	return s.path
}

func (s *gocvSink) Write(f *frame.Frame) error {
	if err := checkSize(f, s.width, s.height); err != nil {
		return err
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
	if err != nil {
		return fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writer.Write(mat)
}

// Close waits for an in-flight Write, which is bounded by one frame encode.
func (s *gocvSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.writer.Close()
	s.logger.Info("Recording file closed", "path", s.path)
	return err
}
