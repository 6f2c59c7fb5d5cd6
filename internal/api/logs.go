package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/facegate/internal/api/models"
	"github.com/smazurov/facegate/internal/logging"
)

// registerLogRoutes exposes the in-memory log ring buffer.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Most recent log entries kept in memory, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		entries := logging.GetBuffer().Tail(input.Limit)

		resp := &models.LogsResponse{}
		resp.Body.Entries = make([]models.LogEntry, 0, len(entries))
		for _, e := range entries {
			resp.Body.Entries = append(resp.Body.Entries, models.LogEntry{
				Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			})
		}
		return resp, nil
	})
}
