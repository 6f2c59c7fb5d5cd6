package sink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/facegate/internal/ffmpeg"
	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/process"
)

// encoderGrace is how long Open watches a fresh encoder for an early exit,
// which is how ffmpeg reports an unknown encoder or unusable geometry.
const encoderGrace = 300 * time.Millisecond

type ffmpegOpener struct {
	cfg    Config
	logger logging.Logger
	grace  time.Duration
}

func (o *ffmpegOpener) Ext() string {
	return o.cfg.Container.Ext()
}

// Open reserves path and starts an encoder reading raw frames on stdin.
func (o *ffmpegOpener) Open(path string, width, height int, fps float64) (Sink, error) {
	args, err := ffmpeg.BuildEncodeArgs(ffmpeg.EncodeParams{
		Width:      width,
		Height:     height,
		FPS:        fps,
		Container:  o.cfg.Container,
		Encoder:    o.cfg.Encoder,
		Preset:     o.cfg.Preset,
		CRF:        o.cfg.CRF,
		Bitrate:    o.cfg.Bitrate,
		OutputPath: path,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkCreate, err)
	}
	if o.cfg.FFmpegBin != "" {
		args[0] = o.cfg.FFmpegBin
	}

	cleanup, err := reserve(path)
	if err != nil {
		return nil, err
	}

	proc := process.New("encoder", args, o.logger,
		process.WithStdin(),
		process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel),
		process.WithTimeouts(10*time.Second, 2*time.Second),
	)
	if err := proc.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %w", ErrSinkCreate, err)
	}

	grace := time.NewTimer(o.grace)
	defer grace.Stop()
	select {
	case <-proc.Done():
		code, _ := proc.ExitCode()
		cleanup()
		return nil, fmt.Errorf("%w: encoder exited with code %d during startup", ErrSinkCreate, code)
	case <-grace.C:
	}

	o.logger.Info("Recording file opened", "path", path, "width", width, "height", height, "fps", fps)
	return &ffmpegSink{
		path:   path,
		width:  width,
		height: height,
		proc:   proc,
		logger: o.logger,
	}, nil
}

type ffmpegSink struct {
	path   string
	width  int
	height int
	proc   *process.Process
	logger logging.Logger

	frames    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegSink) Path() string {
	return s.path
}

// Write may race with Close during a forced shutdown; closing stdin makes a
// blocked Write return.
func (s *ffmpegSink) Write(f *frame.Frame) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := checkSize(f, s.width, s.height); err != nil {
		return err
	}
	if _, err := s.proc.Stdin().Write(f.Pix); err != nil {
		select {
		case <-s.proc.Done():
			code, _ := s.proc.ExitCode()
			return fmt.Errorf("encoder exited with code %d: %w", code, err)
		default:
			return fmt.Errorf("write frame: %w", err)
		}
	}
	s.frames.Add(1)
	return nil
}

// Err reports an encoder that exited while the sink is still open.
func (s *ffmpegSink) Err() error {
	if s.closed.Load() {
		return nil
	}
	select {
	case <-s.proc.Done():
		code, _ := s.proc.ExitCode()
		return fmt.Errorf("encoder exited with code %d", code)
	default:
		return nil
	}
}

// Close ends the input and waits for ffmpeg to write the trailer.
func (s *ffmpegSink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if code := s.proc.Finish(); code != 0 {
			s.closeErr = fmt.Errorf("encoder exited with code %d", code)
			s.logger.Warn("Recording file may be incomplete", "path", s.path, "frames", s.frames.Load(), "exit_code", code)
			return
		}
		s.logger.Info("Recording file closed", "path", s.path, "frames", s.frames.Load())
	})
	return s.closeErr
}
