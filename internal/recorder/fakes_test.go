package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/facegate/internal/capture"
	"github.com/smazurov/facegate/internal/detect"
	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/sink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// journal records release order across fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeSource struct {
	frames    chan *frame.Frame
	closed    chan struct{}
	closeOnce sync.Once
	closes    int
	mu        sync.Mutex
	journal   *journal
}

func (s *fakeSource) Read(ctx context.Context) (*frame.Frame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, fmt.Errorf("%w: end of stream", capture.ErrFrameUnavailable)
		}
		return f, nil
	case <-s.closed:
		return nil, fmt.Errorf("%w: closed", capture.ErrFrameUnavailable)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSource) Size() (int, int) { return 4, 4 }
func (s *fakeSource) FPS() float64     { return 15 }

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() {
		close(s.closed)
		s.journal.add("source")
	})
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// fakeCamera hands out one fakeSource per Open, like a single device.
type fakeCamera struct {
	mu      sync.Mutex
	err     error
	sources []*fakeSource
	journal *journal
	frames  chan *frame.Frame
}

func newFakeCamera(j *journal) *fakeCamera {
	return &fakeCamera{journal: j, frames: make(chan *frame.Frame)}
}

func (c *fakeCamera) Open(context.Context) (capture.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	for _, s := range c.sources {
		select {
		case <-s.closed:
		default:
			return nil, fmt.Errorf("%w: device busy", capture.ErrDeviceUnavailable)
		}
	}
	s := &fakeSource{frames: c.frames, closed: make(chan struct{}), journal: c.journal}
	c.sources = append(c.sources, s)
	return s, nil
}

func (c *fakeCamera) last() *fakeSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sources) == 0 {
		return nil
	}
	return c.sources[len(c.sources)-1]
}

func (c *fakeCamera) opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

type fakeSink struct {
	path     string
	width    int
	height   int
	mu       sync.Mutex
	frames   []*frame.Frame
	closes   int
	writeErr error
	failed   error
	journal  *journal
}

func (s *fakeSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return nil
	}
	return s.failed
}

func (s *fakeSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = err
}

func (s *fakeSink) Write(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return sink.ErrClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	if f.Width != s.width || f.Height != s.height {
		return sink.ErrDimensionMismatch
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		s.journal.add("sink")
	}
	return nil
}

func (s *fakeSink) Path() string { return s.path }

func (s *fakeSink) written() []*frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*frame.Frame(nil), s.frames...)
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeSinks struct {
	mu       sync.Mutex
	err      error
	writeErr error
	sinks    []*fakeSink
	journal  *journal
}

func (o *fakeSinks) Ext() string { return "avi" }

func (o *fakeSinks) Open(path string, width, height int, _ float64) (sink.Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	s := &fakeSink{path: path, width: width, height: height, writeErr: o.writeErr, journal: o.journal}
	o.sinks = append(o.sinks, s)
	return s, nil
}

func (o *fakeSinks) opened() []*fakeSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeSink(nil), o.sinks...)
}

// pixelDetector finds one face in frames whose first byte is 1.
type pixelDetector struct {
	block chan struct{} // when set, Detect waits on it
}

func (d *pixelDetector) Detect(f *frame.Frame) detect.Result {
	if d.block != nil {
		<-d.block
	}
	if f.Pix[0] == 1 {
		return detect.Result{{X: 0, Y: 0, W: 2, H: 2}}
	}
	return detect.Result{}
}

func testFrame(t *testing.T, first byte) *frame.Frame {
	t.Helper()
	pix := make([]byte, frame.Size(4, 4))
	pix[0] = first
	f, err := frame.New(4, 4, pix, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

type harness struct {
	ctrl    *Controller
	camera  *fakeCamera
	sinks   *fakeSinks
	journal *journal
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	j := &journal{}
	h := &harness{
		camera:  newFakeCamera(j),
		sinks:   &fakeSinks{journal: j},
		journal: j,
	}
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	h.ctrl = New(cfg, h.camera, &pixelDetector{}, h.sinks, nil, discardLogger())
	return h
}

func (h *harness) send(t *testing.T, f *frame.Frame) {
	t.Helper()
	select {
	case h.camera.frames <- f:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not read frame")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func framesRead(c *Controller) uint64 {
	if s := c.Status().Session; s != nil {
		return s.FramesRead
	}
	return 0
}
