package models

import "time"

// SessionData describes a recording session.
type SessionData struct {
	ID            string     `json:"id" example:"0b8f6f0e-5d1c-4a8e-9d7e-3f3f0f3c2a11" doc:"Session identifier"`
	File          string     `json:"file" example:"recording_1718000000.avi" doc:"Output file name"`
	Width         int        `json:"width" example:"640" doc:"Frame width"`
	Height        int        `json:"height" example:"480" doc:"Frame height"`
	FPS           float64    `json:"fps" example:"30" doc:"Output frame rate"`
	Annotated     bool       `json:"annotated" doc:"Whether persisted frames carry detection boxes"`
	StartedAt     time.Time  `json:"started_at" doc:"When the session started"`
	EndedAt       *time.Time `json:"ended_at,omitempty" doc:"When the session released its resources"`
	FramesRead    uint64     `json:"frames_read" doc:"Frames read from the camera"`
	FramesWritten uint64     `json:"frames_written" doc:"Frames persisted to the output file"`
	Detections    uint64     `json:"detections" doc:"Frames with at least one face"`
	Reason        string     `json:"reason,omitempty" example:"requested" doc:"Why the session ended"`
	Error         string     `json:"error,omitempty" doc:"Failure detail for abnormal endings"`
}

// RecordingActionData is returned by start and stop.
type RecordingActionData struct {
	Status  string       `json:"status" enum:"started,stopped" doc:"Outcome of the request"`
	Session *SessionData `json:"session,omitempty" doc:"The session that was started or stopped"`
}

type RecordingActionResponse struct {
	Body RecordingActionData
}

// RecordingStatusData is the controller state.
type RecordingStatusData struct {
	Recording bool         `json:"recording" doc:"Whether a session is live"`
	Session   *SessionData `json:"session,omitempty" doc:"The live session"`
	Last      *SessionData `json:"last,omitempty" doc:"The most recently finished session"`
}

type RecordingStatusResponse struct {
	Body RecordingStatusData
}

// RecordingFile is one file in the recordings directory.
type RecordingFile struct {
	Name     string    `json:"name" example:"recording_1718000000.avi" doc:"File name"`
	Size     int64     `json:"size" example:"1048576" doc:"Size in bytes"`
	Modified time.Time `json:"modified" doc:"Last modification time"`
}

type RecordingListResponse struct {
	Body struct {
		Recordings []RecordingFile `json:"recordings" doc:"Recordings, newest first"`
		Count      int             `json:"count" doc:"Number of recordings"`
	}
}

type RecordingFileRequest struct {
	Name string `path:"name" pattern:"^recording_[0-9]+\\.(avi|mp4)$" example:"recording_1718000000.avi" doc:"Recording file name"`
}
