// Package recorder owns the recording lifecycle: it opens the camera and the
// output file on Start, runs one capture worker per session and releases
// everything on Stop or when the worker ends on its own.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/facegate/internal/capture"
	"github.com/smazurov/facegate/internal/detect"
	"github.com/smazurov/facegate/internal/events"
	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/metrics"
	"github.com/smazurov/facegate/internal/sink"
)

// State of the controller.
type State int32

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Detector is the part of detect.Detector the worker needs.
type Detector interface {
	Detect(f *frame.Frame) detect.Result
}

// Config tunes a Controller. It is fixed for the controller's lifetime.
type Config struct {
	Dir             string        // recordings directory, created on first Start
	Annotate        bool          // draw detection boxes on persisted frames
	StopTimeout     time.Duration // bound on joining the worker, default 5s
	PreviewInterval time.Duration // 0 disables preview frames
	PreviewQuality  int           // JPEG quality for preview frames
}

const defaultStopTimeout = 5 * time.Second

// StartResult describes the session a successful Start created.
type StartResult struct {
	SessionInfo
}

// StopResult describes the session Stop ended.
type StopResult struct {
	SessionInfo
}

// Status is a point-in-time view of the controller.
type Status struct {
	State   State        `json:"-"`
	Session *SessionInfo `json:"session,omitempty"`
	Last    *SessionInfo `json:"last,omitempty"`
}

// Controller runs at most one recording session at a time.
type Controller struct {
	cfg      Config
	source   capture.Opener
	detector Detector
	sinks    sink.Opener
	bus      *events.Bus
	logger   logging.Logger
	now      func() time.Time

	mu   sync.Mutex // serializes Start, Stop and state transitions
	snap atomic.Pointer[snapshot]
}

// snapshot is replaced whole on every transition, so a reader never sees
// Recording without the session that made it so.
type snapshot struct {
	current *session
	last    *SessionInfo
}

// New creates an idle controller. bus may be nil.
func New(cfg Config, source capture.Opener, detector Detector, sinks sink.Opener, bus *events.Bus, logger logging.Logger) *Controller {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.PreviewQuality <= 0 {
		cfg.PreviewQuality = 75
	}
	c := &Controller{
		cfg:      cfg,
		source:   source,
		detector: detector,
		sinks:    sinks,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
	c.snap.Store(&snapshot{})
	return c
}

func (c *Controller) live() *session {
	return c.snap.Load().current
}

// IsRecording reports whether a session is live. It never blocks.
func (c *Controller) IsRecording() bool {
	return c.live() != nil
}

// Status returns the current state, the live session if any and the last
// finished session. It never blocks.
func (c *Controller) Status() Status {
	snap := c.snap.Load()
	st := Status{State: Idle, Last: snap.last}
	if snap.current != nil {
		info := snap.current.info()
		st.State = Recording
		st.Session = &info
	}
	return st
}

// Start opens the camera and a new output file and starts the worker.
// The controller is only visible as Recording once all of that succeeded.
func (c *Controller) Start(ctx context.Context) (StartResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live() != nil {
		return StartResult{}, ErrAlreadyRecording
	}

	src, err := c.source.Open(ctx)
	if err != nil {
		metrics.StartFailed("device")
		c.logger.Error("Failed to open camera", "error", err)
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		return StartResult{}, err
	}

	width, height := src.Size()
	fps := src.FPS()
	startedAt := c.now()
	path := sink.PathAt(c.cfg.Dir, startedAt, c.sinks.Ext())

	snk, err := c.sinks.Open(path, width, height, fps)
	if err != nil {
		metrics.StartFailed("sink")
		if closeErr := src.Close(); closeErr != nil {
			c.logger.Warn("Failed to close camera after sink error", "error", closeErr)
		}
		c.logger.Error("Failed to open recording file", "path", path, "error", err)
		if !errors.Is(err, ErrSinkCreate) {
			err = fmt.Errorf("%w: %w", ErrSinkCreate, err)
		}
		return StartResult{}, err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:        uuid.NewString(),
		path:      path,
		width:     width,
		height:    height,
		fps:       fps,
		annotated: c.cfg.Annotate,
		startedAt: startedAt,
		src:       src,
		snk:       snk,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.snap.Store(&snapshot{current: sess, last: c.snap.Load().last})
	metrics.SetRecording(true)
	go c.run(workerCtx, sess)

	c.logger.Info("Recording started", "session", sess.id, "path", path, "width", width, "height", height, "fps", fps)
	c.publish(events.RecordingStartedEvent{
		SessionID: sess.id,
		Path:      path,
		Width:     width,
		Height:    height,
		FPS:       fps,
		Annotated: sess.annotated,
		Timestamp: startedAt.Format(time.RFC3339),
	})
	return StartResult{sess.info()}, nil
}

// Stop cancels the worker, waits for it to exit and releases the output file
// and the camera. When the worker does not exit within the stop timeout the
// resources are released anyway, which unblocks a stalled read, and
// ErrShutdownTimeout is returned. Either way the controller ends Idle.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	return c.stop(ctx, ReasonRequested)
}

// Close stops a running session. It is meant for process shutdown.
func (c *Controller) Close(ctx context.Context) error {
	_, err := c.stop(ctx, ReasonShutdown)
	if errors.Is(err, ErrNotRecording) {
		return nil
	}
	return err
}

func (c *Controller) stop(ctx context.Context, reason string) (StopResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.live()
	if sess == nil {
		return StopResult{}, ErrNotRecording
	}

	began := time.Now()
	sess.cancel()

	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()

	var joinErr error
	select {
	case <-sess.done:
	case <-timer.C:
		joinErr = ErrShutdownTimeout
	case <-ctx.Done():
		joinErr = fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}

	var endErr error
	switch {
	case joinErr != nil:
		c.logger.Warn("Recording worker did not stop, forcing release", "session", sess.id, "timeout", c.cfg.StopTimeout)
		reason = ReasonTimeout
		endErr = joinErr
	case sess.failReason != "":
		// the worker ended on its own just before this Stop
		reason, endErr = sess.failReason, sess.failErr
	}

	if err := sess.release(); err != nil {
		c.logger.Warn("Error releasing recording resources", "session", sess.id, "error", err)
		if endErr == nil {
			endErr = err
		}
	}
	metrics.ObserveStop(time.Since(began).Seconds())

	info := c.end(sess, reason, endErr)
	return StopResult{info}, joinErr
}

// end moves the controller to Idle and records how sess finished.
// Callers hold c.mu and have already released sess.
func (c *Controller) end(sess *session, reason string, err error) SessionInfo {
	info := sess.info()
	ended := c.now()
	info.EndedAt = &ended
	info.Reason = reason
	if err != nil {
		info.Error = err.Error()
	}

	c.snap.Store(&snapshot{last: &info})
	metrics.SetRecording(false)
	metrics.SessionEnded(reason)

	c.logger.Info("Recording stopped", "session", sess.id, "path", sess.path, "reason", reason,
		"frames_read", info.FramesRead, "frames_written", info.FramesWritten)
	c.publish(events.RecordingStoppedEvent{
		SessionID:     sess.id,
		Path:          sess.path,
		Reason:        reason,
		Error:         info.Error,
		FramesRead:    info.FramesRead,
		FramesWritten: info.FramesWritten,
		Timestamp:     ended.Format(time.RFC3339),
	})
	return info
}

func (c *Controller) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}
