package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers V4L2 cameras
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
)

// mediadevicesOpener captures through pion/mediadevices, decoding frames in
// process without an external ffmpeg binary.
type mediadevicesOpener struct {
	cfg    Config
	logger logging.Logger
}

func newMediaDevicesOpener(cfg Config, logger logging.Logger) *mediadevicesOpener {
	return &mediadevicesOpener{cfg: cfg, logger: logger}
}

type mediadevicesSource struct {
	device  string
	track   mediadevices.Track
	reader  video.Reader
	width   int
	height  int
	fps     float64
	release func()
	logger  logging.Logger

	seq       atomic.Uint64
	primed    *frame.Frame
	closed    atomic.Bool
	closeOnce sync.Once
}

func (o *mediadevicesOpener) Open(ctx context.Context) (Source, error) {
	cfg := o.cfg
	release, err := acquire(cfg.Device)
	if err != nil {
		return nil, err
	}

	deviceID, err := resolveDeviceID(cfg.Device)
	if err != nil {
		release()
		return nil, unavailable(cfg.Device, err)
	}

	constraints := mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(deviceID)
			if cfg.Width > 0 && cfg.Height > 0 {
				c.Width = prop.Int(cfg.Width)
				c.Height = prop.Int(cfg.Height)
			}
			if cfg.FPS > 0 {
				c.FrameRate = prop.Float(cfg.FPS)
			}
		},
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		release()
		return nil, unavailable(cfg.Device, err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		release()
		return nil, unavailable(cfg.Device, errors.New("no video track"))
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		release()
		return nil, unavailable(cfg.Device, fmt.Errorf("unexpected track type %T", tracks[0]))
	}

	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	src := &mediadevicesSource{
		device:  cfg.Device,
		track:   vt,
		reader:  vt.NewReader(false),
		fps:     fps,
		release: release,
		logger:  o.logger,
	}

	first, err := src.prime(ctx, cfg.OpenTimeout)
	if err != nil {
		src.Close()
		return nil, unavailable(cfg.Device, err)
	}
	src.primed = first
	src.width, src.height = first.Width, first.Height

	o.logger.Info("Camera opened", "device", cfg.Device, "backend", BackendMediaDevices,
		"width", src.width, "height", src.height)
	return src, nil
}

// resolveDeviceID maps a device path or label onto a mediadevices device ID.
func resolveDeviceID(device string) (string, error) {
	base := filepath.Base(device)
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind != mediadevices.VideoInput {
			continue
		}
		if info.DeviceID == device || info.Label == device || strings.Contains(info.Label, base) {
			return info.DeviceID, nil
		}
	}
	return "", fmt.Errorf("no camera matches %q", device)
}

func (s *mediadevicesSource) prime(ctx context.Context, timeout time.Duration) (*frame.Frame, error) {
	ch := make(chan readResult, 1)
	go func() {
		f, err := s.readFrame()
		ch <- readResult{f, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.f, res.err
	case <-timer.C:
		return nil, fmt.Errorf("no frame within %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mediadevicesSource) Read(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, frameUnavailable(err)
	}
	if f := s.primed; f != nil {
		s.primed = nil
		return f, nil
	}
	if s.closed.Load() {
		return nil, frameUnavailable(errors.New("source closed"))
	}

	f, err := s.readFrame()
	if err != nil {
		return nil, frameUnavailable(err)
	}
	if f.Width != s.width || f.Height != s.height {
		s.logger.Debug("Camera changed frame size", "width", f.Width, "height", f.Height)
	}
	return f, nil
}

func (s *mediadevicesSource) readFrame() (*frame.Frame, error) {
	img, release, err := s.reader.Read()
	if err != nil {
		if s.closed.Load() {
			return nil, errors.New("source closed")
		}
		return nil, err
	}
	f := frame.FromImage(img, time.Now())
	release()
	f.Seq = s.seq.Add(1)
	return f, nil
}

func (s *mediadevicesSource) Size() (int, int) {
	return s.width, s.height
}

func (s *mediadevicesSource) FPS() float64 {
	return s.fps
}

func (s *mediadevicesSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.track.Close()
		s.release()
		s.logger.Info("Camera closed", "device", s.device, "frames", s.seq.Load())
	})
	return err
}
