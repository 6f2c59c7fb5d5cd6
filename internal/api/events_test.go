package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/facegate/internal/events"
	"github.com/smazurov/facegate/internal/recorder"
)

// sseLines streams the data and event lines of an SSE response.
func sseLines(t *testing.T, resp *http.Response) <-chan string {
	t.Helper()
	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") || strings.HasPrefix(line, "event:") {
				lines <- line
			}
		}
	}()
	return lines
}

// next returns the next data line, recording the event name that preceded it.
func next(t *testing.T, lines <-chan string) (event, data string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("event stream closed")
			}
			if name, found := strings.CutPrefix(line, "event:"); found {
				event = strings.TrimSpace(name)
				continue
			}
			return event, strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case <-timeout:
			t.Fatal("timeout waiting for SSE message")
		}
	}
}

func TestRecordingEventStream(t *testing.T) {
	bus := events.New()
	last := testSession()
	last.Reason = recorder.ReasonRequested
	rec := &fakeRecorder{status: recorder.Status{State: recorder.Idle, Last: &last}}
	s := newTestServer(t, &Options{Recorder: rec, EventBus: bus})

	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/recording/events?auth="+credentials(), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := sseLines(t, resp)

	name, data := next(t, lines)
	if name != "status" || !strings.Contains(data, `"recording":false`) || !strings.Contains(data, `"reason":"requested"`) {
		t.Fatalf("initial message = %s %s", name, data)
	}

	bus.Publish(events.RecordingStartedEvent{SessionID: "s-1", Path: "recording_1.avi", Width: 640, Height: 480})
	name, data = next(t, lines)
	if name != "recording-started" || !strings.Contains(data, `"session_id":"s-1"`) {
		t.Errorf("got %s %s, want recording-started for s-1", name, data)
	}

	bus.Publish(events.FaceDetectedEvent{SessionID: "s-1", Count: 2})
	name, data = next(t, lines)
	if name != "face-detected" || !strings.Contains(data, `"count":2`) {
		t.Errorf("got %s %s, want face-detected", name, data)
	}

	bus.Publish(events.RecordingStoppedEvent{SessionID: "s-1", Reason: recorder.ReasonSourceFailed})
	name, data = next(t, lines)
	if name != "recording-stopped" || !strings.Contains(data, `"reason":"source_failed"`) {
		t.Errorf("got %s %s, want recording-stopped", name, data)
	}
}

func TestRecordingEventStreamRequiresAuth(t *testing.T) {
	s := newTestServer(t, &Options{Recorder: &fakeRecorder{}, EventBus: events.New()})
	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/recording/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
