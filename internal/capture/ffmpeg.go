package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/facegate/internal/ffmpeg"
	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/process"
)

type ffmpegOpener struct {
	cfg    Config
	logger logging.Logger
	probe  func(ctx context.Context, device string) (ffmpeg.StreamInfo, error)
}

func newFFmpegOpener(cfg Config, logger logging.Logger) *ffmpegOpener {
	return &ffmpegOpener{cfg: cfg, logger: logger, probe: ffmpeg.Probe}
}

// ffmpegSource reads packed bgr24 frames from an ffmpeg subprocess.
type ffmpegSource struct {
	device  string
	width   int
	height  int
	fps     float64
	proc    *process.Process
	stdout  io.Reader
	release func()
	logger  logging.Logger

	seq       atomic.Uint64
	primed    *frame.Frame
	closeOnce sync.Once
}

// Open starts ffmpeg and waits for the first frame, so a device that cannot
// be opened is reported here rather than on the first Read.
func (o *ffmpegOpener) Open(ctx context.Context) (Source, error) {
	cfg := o.cfg
	if _, err := os.Stat(cfg.Device); err != nil {
		return nil, unavailable(cfg.Device, err)
	}

	release, err := acquire(cfg.Device)
	if err != nil {
		return nil, err
	}

	width, height, fps := cfg.Width, cfg.Height, cfg.FPS
	if width <= 0 || height <= 0 {
		info, probeErr := o.probe(ctx, cfg.Device)
		if probeErr != nil {
			release()
			return nil, unavailable(cfg.Device, probeErr)
		}
		width, height = info.Width, info.Height
		if fps <= 0 {
			fps = info.FPS
		}
	}
	if fps <= 0 {
		fps = DefaultFPS
	}

	opts, unknown := ffmpeg.ParseOptions(cfg.Options)
	if len(unknown) > 0 {
		o.logger.Warn("Ignoring unknown capture options", "options", unknown)
	}
	args := ffmpeg.BuildCaptureArgs(ffmpeg.CaptureParams{
		DevicePath:  cfg.Device,
		InputFormat: cfg.InputFormat,
		Width:       width,
		Height:      height,
		FPS:         cfg.FPS,
		Options:     opts,
	})
	if cfg.FFmpegBin != "" {
		args[0] = cfg.FFmpegBin
	}

	proc := process.New("capture", args, o.logger,
		process.WithStdout(),
		process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel),
		process.WithTimeouts(2*time.Second, 2*time.Second),
	)
	if err := proc.Start(); err != nil {
		release()
		return nil, unavailable(cfg.Device, err)
	}

	src := &ffmpegSource{
		device:  cfg.Device,
		width:   width,
		height:  height,
		fps:     fps,
		proc:    proc,
		stdout:  proc.Stdout(),
		release: release,
		logger:  o.logger,
	}

	first, err := src.prime(ctx, cfg.OpenTimeout)
	if err != nil {
		src.Close()
		return nil, unavailable(cfg.Device, err)
	}
	src.primed = first

	o.logger.Info("Camera opened", "device", cfg.Device, "width", width, "height", height, "fps", fps)
	return src, nil
}

// prime reads the first frame within timeout. On timeout the process is
// stopped, which closes stdout and unblocks the reader goroutine.
func (s *ffmpegSource) prime(ctx context.Context, timeout time.Duration) (*frame.Frame, error) {
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
		s.proc.Stop()
		<-ch
		return nil, fmt.Errorf("no frame within %v", timeout)
	case <-ctx.Done():
		s.proc.Stop()
		<-ch
		return nil, ctx.Err()
	}
}

func (s *ffmpegSource) Read(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, frameUnavailable(err)
	}
	if f := s.primed; f != nil {
		s.primed = nil
		return f, nil
	}
	f, err := s.readFrame()
	if err != nil {
		return nil, frameUnavailable(err)
	}
	return f, nil
}

func (s *ffmpegSource) readFrame() (*frame.Frame, error) {
	buf := make([]byte, frame.Size(s.width, s.height))
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil, fmt.Errorf("source closed")
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("ffmpeg stream ended")
		}
		return nil, err
	}
	f, err := frame.New(s.width, s.height, buf, time.Now())
	if err != nil {
		return nil, err
	}
	f.Seq = s.seq.Add(1)
	return f, nil
}

func (s *ffmpegSource) Size() (int, int) {
	return s.width, s.height
}

func (s *ffmpegSource) FPS() float64 {
	return s.fps
}

// Close stops ffmpeg and frees the device for the next Open.
func (s *ffmpegSource) Close() error {
	s.closeOnce.Do(func() {
		code := s.proc.Stop()
		s.release()
		// 255 is ffmpeg's exit code when interrupted by SIGINT
		if code != 0 && code != 255 {
			s.logger.Debug("ffmpeg capture exited", "device", s.device, "exit_code", code)
		}
		s.logger.Info("Camera closed", "device", s.device, "frames", s.seq.Load())
	})
	return nil
}
