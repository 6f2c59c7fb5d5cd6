package detect

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	in := classifyReply{Faces: [][4]int{{1, 2, 3, 4}}}
	if err := writeMessage(&buf, in); err != nil {
		t.Fatal(err)
	}
	if size := binary.BigEndian.Uint32(buf.Bytes()[:4]); int(size) != buf.Len()-4 {
		t.Errorf("length prefix = %d, payload = %d", size, buf.Len()-4)
	}

	var out classifyReply
	if err := readMessage(&buf, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("read %+v, want %+v", out, in)
	}
}

func TestReadMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{0, 0}},
		{"oversized", []byte{0xff, 0xff, 0xff, 0xff}},
		{"truncated payload", []byte{0, 0, 0, 8, 0xa0}},
		{"not cbor map", []byte{0, 0, 0, 1, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out classifyReply
			if err := readMessage(bytes.NewReader(tt.data), &out); err == nil {
				t.Error("readMessage() should fail")
			}
		})
	}
}

// serveOnce answers a single request on the given pipes.
func serveOnce(t *testing.T, reqR io.Reader, repW io.Writer, reply classifyReply) <-chan classifyRequest {
	t.Helper()
	got := make(chan classifyRequest, 1)
	go func() {
		var req classifyRequest
		if err := readMessage(reqR, &req); err != nil {
			t.Errorf("server read: %v", err)
			close(got)
			return
		}
		got <- req
		if err := writeMessage(repW, reply); err != nil {
			t.Errorf("server write: %v", err)
		}
	}()
	return got
}

func TestRoundTrip(t *testing.T) {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	seen := serveOnce(t, reqR, repW, classifyReply{Faces: [][4]int{{5, 6, 10, 12}}})

	gray := image.NewGray(image.Rect(0, 0, 4, 2))
	gray.Pix[3] = 200
	params := Params{ScaleFactor: 1.1, MinNeighbors: 3, MinSize: image.Pt(2, 2)}

	rects, err := roundTrip(reqW, repR, gray, params)
	if err != nil {
		t.Fatalf("roundTrip() error = %v", err)
	}
	if want := []image.Rectangle{image.Rect(5, 6, 15, 18)}; !reflect.DeepEqual(rects, want) {
		t.Errorf("rects = %v, want %v", rects, want)
	}

	req := <-seen
	if req.Width != 4 || req.Height != 2 || req.Stride != 4 {
		t.Errorf("request geometry = %dx%d stride %d", req.Width, req.Height, req.Stride)
	}
	if req.ScaleFactor != 1.1 || req.MinNeighbors != 3 || req.MinWidth != 2 || req.MinHeight != 2 {
		t.Errorf("request params = %+v", req)
	}
	if !bytes.Equal(req.Pix, gray.Pix) {
		t.Errorf("request pix = %v, want %v", req.Pix, gray.Pix)
	}
}

func TestRoundTripWorkerError(t *testing.T) {
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	serveOnce(t, reqR, repW, classifyReply{Error: "cascade not loaded"})

	_, err := roundTrip(reqW, repR, image.NewGray(image.Rect(0, 0, 1, 1)), DefaultParams())
	if err == nil || !strings.Contains(err.Error(), "cascade not loaded") {
		t.Errorf("roundTrip() error = %v, want worker error", err)
	}
}

// oneShotWorker replies with a single face {1,2,3,4} and then swallows input.
func oneShotWorker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	// 13 byte CBOR map {"faces": [[1,2,3,4]]}
	script := "#!/bin/sh\nprintf '\\000\\000\\000\\015\\241\\145faces\\201\\204\\001\\002\\003\\004'\nexec cat >/dev/null\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWorkerRestartsAfterTimeout(t *testing.T) {
	w, err := NewWorker(oneShotWorker(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	w.replyTimeout = 300 * time.Millisecond
	defer w.Close()

	gray := image.NewGray(image.Rect(0, 0, 8, 8))
	want := []image.Rectangle{image.Rect(1, 2, 4, 6)}

	rects, err := w.Classify(gray, DefaultParams())
	if err != nil {
		t.Fatalf("first Classify() error = %v", err)
	}
	if !reflect.DeepEqual(rects, want) {
		t.Errorf("first Classify() = %v, want %v", rects, want)
	}

	if _, err := w.Classify(gray, DefaultParams()); !errors.Is(err, errWorkerTimeout) {
		t.Fatalf("second Classify() error = %v, want timeout", err)
	}

	rects, err = w.Classify(gray, DefaultParams())
	if err != nil {
		t.Fatalf("Classify() after restart error = %v", err)
	}
	if !reflect.DeepEqual(rects, want) {
		t.Errorf("Classify() after restart = %v, want %v", rects, want)
	}
}

func TestWorkerMissingExecutable(t *testing.T) {
	for _, cmd := range []string{"/nonexistent/facegate-worker", "facegate-no-such-classifier --flag"} {
		if _, err := NewWorker(cmd, testLogger()); err == nil {
			t.Errorf("NewWorker(%q) should fail for a missing executable", cmd)
		}
	}
}

func TestWorkerBacksOffWhileFailing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := NewWorker(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	var backoff bool
	for range 5 {
		_, err := w.Classify(gray, DefaultParams())
		if err == nil {
			t.Fatal("Classify() against a dead worker succeeded")
		}
		if errors.Is(err, errWorkerBackoff) {
			backoff = true
			break
		}
	}
	if !backoff {
		t.Fatal("repeated failures never backed off")
	}

	start := time.Now()
	if _, err := w.Classify(gray, DefaultParams()); !errors.Is(err, errWorkerBackoff) {
		t.Errorf("Classify() during backoff error = %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Classify() during backoff should return without starting a process")
	}
}
