//go:build gocv

package capture

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

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

// gocvSource reads frames through OpenCV's VideoCapture.
type gocvSource struct {
	device  string
	cap     *gocv.VideoCapture
	mat     gocv.Mat
	width   int
	height  int
	fps     float64
	release func()
	logger  logging.Logger

	guard *readGuard
	seq   atomic.Uint64
}

func (o *gocvOpener) Open(_ context.Context) (Source, error) {
	cfg := o.cfg
	release, err := acquire(cfg.Device)
	if err != nil {
		return nil, err
	}

	var vc *gocv.VideoCapture
	if id, convErr := strconv.Atoi(cfg.Device); convErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.VideoCaptureFile(cfg.Device)
	}
	if err != nil {
		release()
		return nil, unavailable(cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		release()
		return nil, unavailable(cfg.Device, errors.New("capture not opened"))
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, cfg.FPS)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = cfg.FPS
	}
	if fps <= 0 {
		fps = DefaultFPS
	}

	src := &gocvSource{
		device:  cfg.Device,
		cap:     vc,
		mat:     gocv.NewMat(),
		width:   int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(vc.Get(gocv.VideoCaptureFrameHeight)),
		fps:     fps,
		release: release,
		logger:  o.logger,
	}
	src.guard = newReadGuard(src.free)
	if src.width <= 0 || src.height <= 0 {
		src.Close()
		return nil, unavailable(cfg.Device, errors.New("device reported no frame size"))
	}

	o.logger.Info("Camera opened", "device", cfg.Device, "backend", BackendGoCV,
		"width", src.width, "height", src.height, "fps", fps)
	return src, nil
}

func (s *gocvSource) Read(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, frameUnavailable(err)
	}

	if !s.guard.begin() {
		return nil, frameUnavailable(errors.New("source closed"))
	}
	f, err := s.grab()
	if !s.guard.end() {
		return nil, frameUnavailable(errors.New("source closed"))
	}
	if err != nil {
		return nil, frameUnavailable(err)
	}
	f.Seq = s.seq.Add(1)
	return f, nil
}

// grab runs between guard.begin and guard.end, so the capture is never
// freed underneath it.
func (s *gocvSource) grab() (*frame.Frame, error) {
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, errors.New("capture returned no frame")
	}
	if s.mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.New("unexpected pixel format")
	}
	return frame.New(s.mat.Cols(), s.mat.Rows(), s.mat.ToBytes(), time.Now())
}

func (s *gocvSource) Size() (int, int) {
	return s.width, s.height
}

func (s *gocvSource) FPS() float64 {
	return s.fps
}

// Close does not wait for an in-flight Read. OpenCV's capture cannot be
// released concurrently with a read, so a stalled read frees it when it
// returns, and the device stays held until then.
func (s *gocvSource) Close() error {
	return s.guard.close()
}

func (s *gocvSource) free() error {
	s.mat.Close()
	err := s.cap.Close()
	s.release()
	s.logger.Info("Camera closed", "device", s.device, "frames", s.seq.Load())
	return err
}
