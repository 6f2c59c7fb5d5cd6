package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/facegate/internal/api/models"
	"github.com/smazurov/facegate/internal/events"
)

// registerSSERoutes registers the recording event stream.
func (s *Server) registerSSERoutes() {
	if s.options.EventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "recording-events",
		Method:      http.MethodGet,
		Path:        "/api/recording/events",
		Summary:     "Recording Events",
		Description: "Server-Sent Events for session start and stop, face presence and annotated preview frames. " +
			"The current status is sent first.",
		Tags:     []string{"events"},
		Security: withAuth(),
		Errors:   []int{401},
	}, map[string]any{
		"status":            models.RecordingStatusData{},
		"recording-started": events.RecordingStartedEvent{},
		"recording-stopped": events.RecordingStoppedEvent{},
		"face-detected":     events.FaceDetectedEvent{},
		"preview-frame":     events.PreviewFrameEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// State events are never dropped. Preview frames are large and a
		// slow client loses them instead of stalling delivery.
		stateCh := make(chan any, 16)
		previewCh := make(chan any, 2)

		bus := s.options.EventBus
		unsubscribers := []func(){
			events.SubscribeToChannelUntil[events.RecordingStartedEvent](bus, stateCh, ctx.Done()),
			events.SubscribeToChannelUntil[events.RecordingStoppedEvent](bus, stateCh, ctx.Done()),
			events.SubscribeToChannelUntil[events.FaceDetectedEvent](bus, stateCh, ctx.Done()),
			events.SubscribeToChannel[events.PreviewFrameEvent](bus, previewCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		var initial models.RecordingStatusData
		if s.options.Recorder != nil {
			initial = statusData(s.options.Recorder.Status())
		}
		if err := send.Data(initial); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-stateCh:
				if err := send.Data(event); err != nil {
					return
				}
			case frame := <-previewCh:
				// pending state events go out ahead of the frame
				for drained := false; !drained; {
					select {
					case event := <-stateCh:
						if err := send.Data(event); err != nil {
							return
						}
					default:
						drained = true
					}
				}
				if err := send.Data(frame); err != nil {
					return
				}
			}
		}
	})
}
