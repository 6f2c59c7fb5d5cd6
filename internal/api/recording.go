package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/facegate/internal/api/models"
	"github.com/smazurov/facegate/internal/recorder"
)

func sessionData(info *recorder.SessionInfo) *models.SessionData {
	if info == nil {
		return nil
	}
	return &models.SessionData{
		ID:            info.ID,
		File:          filepath.Base(info.Path),
		Width:         info.Width,
		Height:        info.Height,
		FPS:           info.FPS,
		Annotated:     info.Annotated,
		StartedAt:     info.StartedAt,
		EndedAt:       info.EndedAt,
		FramesRead:    info.FramesRead,
		FramesWritten: info.FramesWritten,
		Detections:    info.Detections,
		Reason:        info.Reason,
		Error:         info.Error,
	}
}

func statusData(st recorder.Status) models.RecordingStatusData {
	return models.RecordingStatusData{
		Recording: st.State == recorder.Recording,
		Session:   sessionData(st.Session),
		Last:      sessionData(st.Last),
	}
}

// startError maps controller errors to HTTP statuses.
func startError(err error) error {
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording):
		return huma.Error409Conflict("already-recording")
	case errors.Is(err, recorder.ErrDeviceUnavailable):
		return huma.Error503ServiceUnavailable("Camera unavailable", err)
	case errors.Is(err, recorder.ErrSinkCreate):
		return huma.Error500InternalServerError("Failed to create recording file", err)
	default:
		return huma.Error500InternalServerError("Failed to start recording", err)
	}
}

func (s *Server) registerRecordingRoutes() {
	if s.options.Recorder == nil {
		s.logger.Debug("No recorder configured, skipping recording routes")
		return
	}
	rec := s.options.Recorder

	huma.Register(s.api, huma.Operation{
		OperationID: "start-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/start",
		Summary:     "Start Recording",
		Description: "Open the camera and a new recording file and start persisting frames with detected faces",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.RecordingActionResponse, error) {
		res, err := rec.Start(ctx)
		if err != nil {
			return nil, startError(err)
		}
		return &models.RecordingActionResponse{
			Body: models.RecordingActionData{Status: "started", Session: sessionData(&res.SessionInfo)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/stop",
		Summary:     "Stop Recording",
		Description: "Stop the worker and finalize the recording file. Returns once the file is playable and the camera is free.",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 504},
	}, func(ctx context.Context, _ *struct{}) (*models.RecordingActionResponse, error) {
		res, err := rec.Stop(ctx)
		switch {
		case errors.Is(err, recorder.ErrNotRecording):
			return nil, huma.Error409Conflict("not-recording")
		case errors.Is(err, recorder.ErrShutdownTimeout):
			return nil, huma.Error504GatewayTimeout("Recording worker did not stop in time; resources were released", err)
		case err != nil:
			return nil, huma.Error500InternalServerError("Failed to stop recording", err)
		}
		return &models.RecordingActionResponse{
			Body: models.RecordingActionData{Status: "stopped", Session: sessionData(&res.SessionInfo)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-recording-status",
		Method:      http.MethodGet,
		Path:        "/api/recording/status",
		Summary:     "Recording Status",
		Description: "Whether a session is live, its progress and the last finished session",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.RecordingStatusResponse, error) {
		return &models.RecordingStatusResponse{Body: statusData(rec.Status())}, nil
	})
}
