package recorder

import (
	"errors"

	"github.com/smazurov/facegate/internal/capture"
	"github.com/smazurov/facegate/internal/sink"
)

// Errors surfaced by the controller. Component errors are re-exported so
// callers only need this package for errors.Is checks.
var (
	ErrDeviceUnavailable = capture.ErrDeviceUnavailable
	ErrFrameUnavailable  = capture.ErrFrameUnavailable
	ErrSinkCreate        = sink.ErrSinkCreate
	ErrDimensionMismatch = sink.ErrDimensionMismatch

	// ErrShutdownTimeout means the worker did not exit within the stop
	// timeout. Resources were force-released and the controller is Idle.
	ErrShutdownTimeout = errors.New("recording worker did not stop in time")

	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)
