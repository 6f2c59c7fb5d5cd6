package api

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/facegate/internal/api/models"
)

var recordingName = regexp.MustCompile(`^recording_[0-9]+\.(avi|mp4)$`)

// listRecordings returns recording files in dir, newest first. A missing
// directory means nothing has been recorded yet.
func listRecordings(dir string) ([]models.RecordingFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.RecordingFile{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := make([]models.RecordingFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !recordingName.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, models.RecordingFile{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Modified.Equal(files[j].Modified) {
			return files[i].Name > files[j].Name
		}
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

func contentType(name string) string {
	if filepath.Ext(name) == ".mp4" {
		return "video/mp4"
	}
	return "video/x-msvideo"
}

func (s *Server) registerRecordingFileRoutes() {
	dir := s.options.RecordingsDir
	if dir == "" {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-recordings",
		Method:      http.MethodGet,
		Path:        "/api/recordings",
		Summary:     "List Recordings",
		Description: "List recording files, newest first",
		Tags:        []string{"recordings"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.RecordingListResponse, error) {
		files, err := listRecordings(dir)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read recordings directory", err)
		}
		resp := &models.RecordingListResponse{}
		resp.Body.Recordings = files
		resp.Body.Count = len(files)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "download-recording",
		Method:      http.MethodGet,
		Path:        "/api/recordings/{name}",
		Summary:     "Download Recording",
		Description: "Download one recording file. Only names of the form recording_<unix-seconds>.<ext> are accepted.",
		Tags:        []string{"recordings"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 422},
	}, func(_ context.Context, input *models.RecordingFileRequest) (*huma.StreamResponse, error) {
		if !recordingName.MatchString(input.Name) {
			return nil, huma.Error404NotFound("Recording not found")
		}
		f, err := os.Open(filepath.Join(dir, input.Name))
		if err != nil {
			return nil, huma.Error404NotFound("Recording not found")
		}
		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			f.Close()
			return nil, huma.Error404NotFound("Recording not found")
		}

		return &huma.StreamResponse{
			Body: func(ctx huma.Context) {
				defer f.Close()
				ctx.SetHeader("Content-Type", contentType(input.Name))
				ctx.SetHeader("Content-Length", strconv.FormatInt(info.Size(), 10))
				ctx.SetHeader("Content-Disposition", `attachment; filename="`+input.Name+`"`)
				if _, err := io.Copy(ctx.BodyWriter(), f); err != nil {
					s.logger.Debug("Recording download interrupted", "file", input.Name, "error", err)
				}
			},
		}, nil
	})
}
