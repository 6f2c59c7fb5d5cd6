package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/facegate/internal/capture"
	"github.com/smazurov/facegate/internal/sink"
)

// Reasons a session ended.
const (
	ReasonRequested    = "requested"
	ReasonSourceFailed = "source_failed"
	ReasonSinkFailed   = "sink_failed"
	ReasonTimeout      = "timeout"
	ReasonShutdown     = "shutdown"
)

// SessionInfo is a snapshot of a running or finished session.
type SessionInfo struct {
	ID            string     `json:"id" doc:"Session identifier"`
	Path          string     `json:"path" doc:"Output file path"`
	Width         int        `json:"width" doc:"Frame width"`
	Height        int        `json:"height" doc:"Frame height"`
	FPS           float64    `json:"fps" doc:"Output frame rate"`
	Annotated     bool       `json:"annotated" doc:"Whether persisted frames carry detection boxes"`
	StartedAt     time.Time  `json:"started_at" doc:"When the session started"`
	EndedAt       *time.Time `json:"ended_at,omitempty" doc:"When the session released its resources"`
	FramesRead    uint64     `json:"frames_read" doc:"Frames read from the camera"`
	FramesWritten uint64     `json:"frames_written" doc:"Frames persisted to the output file"`
	Detections    uint64     `json:"detections" doc:"Frames with at least one face"`
	Reason        string     `json:"reason,omitempty" doc:"Why the session ended"`
	Error         string     `json:"error,omitempty" doc:"Failure detail for abnormal endings"`
}

// session is the state owned by the controller for one recording.
type session struct {
	id        string
	path      string
	width     int
	height    int
	fps       float64
	annotated bool
	startedAt time.Time

	src capture.Source
	snk sink.Sink

	cancel context.CancelFunc
	done   chan struct{} // closed when the worker loop has returned

	// set by the worker before done is closed
	failReason string
	failErr    error

	framesRead    atomic.Uint64
	framesWritten atomic.Uint64
	detections    atomic.Uint64

	releaseOnce sync.Once
	releaseErr  error
}

// release closes the sink, then the source. Both Stop and a worker ending on
// its own go through here; only the first call does any work.
func (s *session) release() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = errors.Join(s.snk.Close(), s.src.Close())
	})
	return s.releaseErr
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:            s.id,
		Path:          s.path,
		Width:         s.width,
		Height:        s.height,
		FPS:           s.fps,
		Annotated:     s.annotated,
		StartedAt:     s.startedAt,
		FramesRead:    s.framesRead.Load(),
		FramesWritten: s.framesWritten.Load(),
		Detections:    s.detections.Load(),
	}
}
