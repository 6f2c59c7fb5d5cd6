package detect

import (
	"bytes"
	"errors"
	"image"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/facegate/internal/frame"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClassifier struct {
	rects  []image.Rectangle
	err    error
	sizes  []image.Point
	params []Params
}

func (f *fakeClassifier) Classify(gray *image.Gray, p Params) ([]image.Rectangle, error) {
	f.sizes = append(f.sizes, gray.Bounds().Size())
	f.params = append(f.params, p)
	return f.rects, f.err
}

func (f *fakeClassifier) Close() error { return nil }

func blankFrame(t *testing.T, w, h int) *frame.Frame {
	t.Helper()
	f, err := frame.New(w, h, make([]byte, frame.Size(w, h)), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		rects []image.Rectangle
		err   error
		want  Result
	}{
		{
			name:  "single face",
			rects: []image.Rectangle{image.Rect(10, 20, 40, 60)},
			want:  Result{{X: 10, Y: 20, W: 30, H: 40}},
		},
		{
			name:  "order preserved",
			rects: []image.Rectangle{image.Rect(50, 0, 60, 10), image.Rect(0, 0, 10, 10)},
			want:  Result{{X: 50, Y: 0, W: 10, H: 10}, {X: 0, Y: 0, W: 10, H: 10}},
		},
		{
			name:  "clipped to frame",
			rects: []image.Rectangle{image.Rect(90, 70, 120, 100)},
			want:  Result{{X: 90, Y: 70, W: 10, H: 10}},
		},
		{
			name:  "outside frame dropped",
			rects: []image.Rectangle{image.Rect(200, 200, 220, 220)},
			want:  Result{},
		},
		{
			name: "nothing found",
			want: Result{},
		},
		{
			name:  "classifier error is empty",
			rects: []image.Rectangle{image.Rect(0, 0, 5, 5)},
			err:   errors.New("worker crashed"),
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(&fakeClassifier{rects: tt.rects, err: tt.err}, DefaultParams(), testLogger())
			if err != nil {
				t.Fatal(err)
			}
			got := d.Detect(blankFrame(t, 100, 80))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
			if got.Empty() != (len(tt.want) == 0) {
				t.Errorf("Empty() = %v", got.Empty())
			}
		})
	}
}

func TestDetectVaryingSizes(t *testing.T) {
	fc := &fakeClassifier{}
	d, _ := New(fc, DefaultParams(), testLogger())

	d.Detect(blankFrame(t, 64, 48))
	d.Detect(blankFrame(t, 32, 16))
	d.Detect(nil)

	want := []image.Point{{64, 48}, {32, 16}}
	if !reflect.DeepEqual(fc.sizes, want) {
		t.Errorf("classified sizes = %v, want %v", fc.sizes, want)
	}
	for _, p := range fc.params {
		if p != DefaultParams() {
			t.Errorf("params = %+v, want defaults", p)
		}
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"scale factor one", Params{ScaleFactor: 1, MinNeighbors: 3}},
		{"negative neighbors", Params{ScaleFactor: 1.2, MinNeighbors: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(None{}, tt.params, testLogger()); err == nil {
				t.Error("New() should reject params")
			}
		})
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"none", Config{Classifier: ClassifierNone, Params: DefaultParams()}, false},
		{"missing worker", Config{Classifier: ClassifierWorker, Command: "facegate-no-such-classifier", Params: DefaultParams()}, true},
		{"worker without command", Config{Classifier: ClassifierWorker, Params: DefaultParams()}, true},
		{"cascade without path", Config{Classifier: ClassifierCascade, Params: DefaultParams()}, true},
		{"unknown", Config{Classifier: "dnn", Params: DefaultParams()}, true},
		{"bad params", Config{Classifier: ClassifierNone}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Open(tt.cfg, testLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				d.Close()
			}
		})
	}
}

func TestResultRects(t *testing.T) {
	r := Result{{X: 1, Y: 2, W: 3, H: 4}}
	want := []image.Rectangle{image.Rect(1, 2, 4, 6)}
	if got := r.Rects(); !reflect.DeepEqual(got, want) {
		t.Errorf("Rects() = %v, want %v", got, want)
	}
}

func TestOpenStartsWorker(t *testing.T) {
	d, err := Open(Config{Classifier: ClassifierWorker, Command: oneShotWorker(t), Params: DefaultParams()}, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	w := d.classifier.(*Worker)
	w.mu.Lock()
	started := w.proc != nil
	w.mu.Unlock()
	if !started {
		t.Error("Open() did not start the worker process")
	}
}

func TestDetectLimitsFailureWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	fc := &fakeClassifier{err: errors.New("worker gone")}
	d, err := New(fc, DefaultParams(), logger)
	if err != nil {
		t.Fatal(err)
	}

	f := blankFrame(t, 8, 8)
	for range 50 {
		d.Detect(f)
	}
	if n := strings.Count(buf.String(), "Classifier failed"); n != 1 {
		t.Errorf("logged %d failure warnings for 50 frames, want 1", n)
	}

	fc.err = nil
	d.Detect(f)
	if !strings.Contains(buf.String(), "Classifier recovered") || !strings.Contains(buf.String(), "suppressed=49") {
		t.Errorf("recovery not logged with suppressed count:\n%s", buf.String())
	}

	fc.err = errors.New("worker gone again")
	d.Detect(f)
	if n := strings.Count(buf.String(), "Classifier failed"); n != 2 {
		t.Errorf("failure after recovery not reported, got %d warnings", n)
	}
}
