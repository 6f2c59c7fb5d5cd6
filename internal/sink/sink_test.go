package sink

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/facegate/internal/ffmpeg"
	"github.com/smazurov/facegate/internal/frame"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEncoder writes an executable that runs body with the output path in $out.
func fakeEncoder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor out; do :; done\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newOpener(t *testing.T, body string) Opener {
	t.Helper()
	o, err := New(Config{FFmpegBin: fakeEncoder(t, body)}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func solidFrame(t *testing.T, w, h int, value byte) *frame.Frame {
	t.Helper()
	f, err := frame.New(w, h, bytes.Repeat([]byte{value}, frame.Size(w, h)), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFileName(t *testing.T) {
	ts := time.Unix(1700000000, 999)
	if got := FileName(ts, "avi"); got != "recording_1700000000.avi" {
		t.Errorf("FileName() = %q", got)
	}
	if got := PathAt("/var/lib/facegate", ts, "mp4"); got != "/var/lib/facegate/recording_1700000000.mp4" {
		t.Errorf("PathAt() = %q", got)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantExt string
		wantErr bool
	}{
		{"defaults", Config{}, "avi", false},
		{"mp4", Config{Container: ffmpeg.ContainerMP4}, "mp4", false},
		{"bad container", Config{Container: "mkv"}, "", true},
		{"bad backend", Config{Backend: "gstreamer"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := New(tt.cfg, testLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && o.Ext() != tt.wantExt {
				t.Errorf("Ext() = %q, want %q", o.Ext(), tt.wantExt)
			}
		})
	}
}

func TestFFmpegSinkWritesFramesInOrder(t *testing.T) {
	o := newOpener(t, `cat > "$out"`)
	path := filepath.Join(t.TempDir(), "nested", "dir", FileName(time.Unix(1, 0), o.Ext()))

	s, err := o.Open(path, 2, 2, 10)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}

	var want []byte
	for _, v := range []byte{1, 2, 3} {
		f := solidFrame(t, 2, 2, v)
		if err := s.Write(f); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		want = append(want, f.Pix...)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("file has %d bytes, want %d in write order", len(got), len(want))
	}

	if err := s.Write(solidFrame(t, 2, 2, 9)); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}
}

func TestFFmpegSinkDimensionMismatch(t *testing.T) {
	o := newOpener(t, `cat > "$out"`)
	s, err := o.Open(filepath.Join(t.TempDir(), "r.avi"), 4, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Write(solidFrame(t, 2, 2, 0)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Write() error = %v, want ErrDimensionMismatch", err)
	}
	if err := s.Write(solidFrame(t, 4, 2, 0)); err != nil {
		t.Errorf("Write() with matching frame error = %v", err)
	}
}

func TestFFmpegSinkOpenFailures(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "recording_1.avi")
	if err := os.WriteFile(existing, []byte("earlier session"), 0o644); err != nil {
		t.Fatal(err)
	}
	notDir := filepath.Join(dir, "file")
	if err := os.WriteFile(notDir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		bin    string
		path   string
		w, h   int
		remain bool
	}{
		{"existing file", "", existing, 2, 2, true},
		{"parent is a file", "", filepath.Join(notDir, "r.avi"), 2, 2, false},
		{"invalid size", "", filepath.Join(dir, "zero.avi"), 0, 2, false},
		{"missing encoder", "/nonexistent/ffmpeg", filepath.Join(dir, "missing.avi"), 2, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := tt.bin
			if bin == "" {
				bin = fakeEncoder(t, `cat > "$out"`)
			}
			o, _ := New(Config{FFmpegBin: bin}, testLogger())

			if _, err := o.Open(tt.path, tt.w, tt.h, 10); !errors.Is(err, ErrSinkCreate) {
				t.Fatalf("Open() error = %v, want ErrSinkCreate", err)
			}
			_, statErr := os.Stat(tt.path)
			if exists := statErr == nil; exists != tt.remain {
				t.Errorf("file exists = %v, want %v", exists, tt.remain)
			}
		})
	}

	if data, _ := os.ReadFile(existing); string(data) != "earlier session" {
		t.Error("existing recording was modified")
	}
}

func TestFFmpegSinkEncoderExitsDuringStartup(t *testing.T) {
	o := newOpener(t, "echo 'Unknown encoder' >&2\nexit 8")
	path := filepath.Join(t.TempDir(), FileName(time.Unix(1, 0), o.Ext()))

	s, err := o.Open(path, 2, 2, 10)
	if !errors.Is(err, ErrSinkCreate) {
		t.Fatalf("Open() error = %v, want ErrSinkCreate", err)
	}
	if s != nil {
		t.Error("Open() returned a sink for a dead encoder")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("reserved file left behind: %v", err)
	}
}

func TestFFmpegSinkEncoderExitsLater(t *testing.T) {
	o := newOpener(t, "sleep 0.2\nexit 3")
	o.(*ffmpegOpener).grace = 10 * time.Millisecond

	s, err := o.Open(filepath.Join(t.TempDir(), "r.avi"), 2, 2, 10)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	chk, ok := s.(Checker)
	if !ok {
		t.Fatal("ffmpeg sink does not implement Checker")
	}
	if err := chk.Err(); err != nil {
		t.Errorf("Err() before exit = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for chk.Err() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if chk.Err() == nil {
		t.Fatal("Err() = nil after the encoder exited")
	}
	if err := s.Write(solidFrame(t, 2, 2, 0)); err == nil {
		t.Error("Write() to a dead encoder should fail")
	}
	if err := s.Close(); err == nil {
		t.Error("Close() should report the encoder exit code")
	}
	if err := chk.Err(); err != nil {
		t.Errorf("Err() after Close = %v", err)
	}
}
