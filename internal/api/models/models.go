package models

// Health check models
type HealthData struct {
	Status    string `json:"status" example:"ok" doc:"Service status"`
	Message   string `json:"message" example:"API is healthy" doc:"Status message"`
	Recording bool   `json:"recording" example:"false" doc:"Whether a recording session is live"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Log models
type LogsRequest struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Number of most recent entries"`
}

type LogEntry struct {
	Timestamp  string         `json:"timestamp" doc:"Entry time (RFC3339Nano)"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module,omitempty" example:"recorder" doc:"Module that logged the entry"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsResponse struct {
	Body struct {
		Entries []LogEntry `json:"entries" doc:"Log entries, oldest first"`
	}
}
