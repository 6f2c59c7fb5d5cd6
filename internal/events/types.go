package events

// Event type constants for kelindar/event.
const (
	TypeRecordingStarted uint32 = iota + 1
	TypeRecordingStopped
	TypeFaceDetected
	TypePreviewFrame
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RecordingStartedEvent is published once a session has its source and sink open.
type RecordingStartedEvent struct {
	SessionID string  `json:"session_id" example:"0b8f6f0e-5d1c-4a8e-9d7e-3f3f0f3c2a11" doc:"Session identifier"`
	Path      string  `json:"path" example:"recordings/recording_1718000000.avi" doc:"Output file path"`
	Width     int     `json:"width" example:"640" doc:"Frame width"`
	Height    int     `json:"height" example:"480" doc:"Frame height"`
	FPS       float64 `json:"fps" example:"30" doc:"Output frame rate"`
	Annotated bool    `json:"annotated" doc:"Whether persisted frames carry detection boxes"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// IsRecording implements the RecordingStateEvent interface for the LED manager.
func (e RecordingStartedEvent) IsRecording() bool { return true }

// RecordingStoppedEvent is published after a session released its resources,
// whether it was stopped by a caller or ended on its own.
type RecordingStoppedEvent struct {
	SessionID     string `json:"session_id" doc:"Session identifier"`
	Path          string `json:"path" doc:"Output file path"`
	Reason        string `json:"reason" example:"requested" enum:"requested,source_failed,sink_failed,timeout,shutdown" doc:"Why the session ended"`
	Error         string `json:"error,omitempty" doc:"Failure detail for abnormal endings"`
	FramesRead    uint64 `json:"frames_read" doc:"Frames read from the camera"`
	FramesWritten uint64 `json:"frames_written" doc:"Frames persisted to the output file"`
	Timestamp     string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStoppedEvent.
func (e RecordingStoppedEvent) Type() uint32 { return TypeRecordingStopped }

// IsRecording implements the RecordingStateEvent interface for the LED manager.
func (e RecordingStoppedEvent) IsRecording() bool { return false }

// FaceDetectedEvent is published when a frame crosses from no detections to
// at least one, so subscribers see presence edges rather than every frame.
type FaceDetectedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Count     int    `json:"count" example:"1" doc:"Number of faces in the frame"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Frame capture time"`
}

// Type returns the event type identifier for FaceDetectedEvent.
func (e FaceDetectedEvent) Type() uint32 { return TypeFaceDetected }

// PreviewFrameEvent carries an annotated preview of the live camera feed.
type PreviewFrameEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	ImageData string `json:"image_data" doc:"Base64-encoded JPEG image"`
	Faces     int    `json:"faces" doc:"Number of faces drawn on the preview"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Frame capture time"`
}

// Type returns the event type identifier for PreviewFrameEvent.
func (e PreviewFrameEvent) Type() uint32 { return TypePreviewFrame }
