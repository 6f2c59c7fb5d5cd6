package process

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcess(t *testing.T, script string, opts ...Option) *Process {
	t.Helper()
	opts = append([]Option{WithTimeouts(100*time.Millisecond, 100*time.Millisecond)}, opts...)
	return New("test", []string{"sh", "-c", script}, testLogger(), opts...)
}

func waitDone(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
	}
}

func TestGracefulStop(t *testing.T) {
	p := newTestProcess(t, "trap 'exit 0' INT TERM; while :; do sleep 0.05; done",
		WithTimeouts(500*time.Millisecond, 100*time.Millisecond))
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if code := p.Stop(); code != 0 {
		t.Errorf("Stop() = %d, want 0", code)
	}
	waitDone(t, p, time.Second)
}

func TestForceKillOnTimeout(t *testing.T) {
	p := newTestProcess(t, "trap '' INT; sleep 10",
		WithTimeouts(50*time.Millisecond, 500*time.Millisecond))
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if code := p.Stop(); code != ExitCodeKilled {
		t.Errorf("Stop() = %d, want %d", code, ExitCodeKilled)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := newTestProcess(t, "trap 'exit 3' INT; while :; do sleep 0.05; done",
		WithTimeouts(500*time.Millisecond, 100*time.Millisecond))
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	first := p.Stop()
	second := p.Stop()
	if first != second {
		t.Errorf("second Stop() = %d, want %d", second, first)
	}
}

func TestStopBeforeStart(t *testing.T) {
	p := newTestProcess(t, "true")
	if code := p.Stop(); code != 0 {
		t.Errorf("Stop() on unstarted process = %d, want 0", code)
	}
}

func TestFinishClosesStdin(t *testing.T) {
	p := newTestProcess(t, "cat >/dev/null", WithStdin(),
		WithTimeouts(time.Second, 100*time.Millisecond))
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := p.Stdin().Write([]byte("payload")); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	if code := p.Finish(); code != 0 {
		t.Errorf("Finish() = %d, want 0", code)
	}
}

func TestStdoutIsReadable(t *testing.T) {
	p := newTestProcess(t, "printf 'abcdef'", WithStdout())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	buf := make([]byte, 6)
	if _, err := io.ReadFull(p.Stdout(), buf); err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if string(buf) != "abcdef" {
		t.Errorf("stdout = %q, want %q", buf, "abcdef")
	}
	waitDone(t, p, time.Second)
	if code, _ := p.ExitCode(); code != 0 {
		t.Errorf("ExitCode() = %d, want 0", code)
	}
}

func TestExitCodePropagates(t *testing.T) {
	p := newTestProcess(t, "exit 7")
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p, time.Second)
	if code, err := p.ExitCode(); code != 7 || err == nil {
		t.Errorf("ExitCode() = %d, %v; want 7 and an error", code, err)
	}
}

func TestStartMissingBinary(t *testing.T) {
	p := New("missing", []string{"/nonexistent/binary-for-test"}, testLogger())
	err := p.Start()
	if err == nil {
		t.Fatal("expected error starting missing binary")
	}
	if !strings.Contains(err.Error(), "start") {
		t.Errorf("error = %v, want it to mention start", err)
	}
}

type recordingLogger struct {
	levels []string
}

func (r *recordingLogger) Debug(string, ...any) { r.levels = append(r.levels, "debug") }
func (r *recordingLogger) Info(string, ...any)  { r.levels = append(r.levels, "info") }
func (r *recordingLogger) Warn(string, ...any)  { r.levels = append(r.levels, "warn") }
func (r *recordingLogger) Error(string, ...any) { r.levels = append(r.levels, "error") }

func TestStderrUsesLogParser(t *testing.T) {
	out := &recordingLogger{}
	parser := func(line string) (string, string) {
		if strings.HasPrefix(line, "E:") {
			return "error", line[2:]
		}
		return "info", line
	}
	p := newTestProcess(t, "echo 'E:boom' >&2; echo fine >&2", WithLogParser(out, parser))
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p, time.Second)

	want := []string{"error", "info"}
	if !reflect.DeepEqual(out.levels, want) {
		t.Errorf("levels = %v, want %v", out.levels, want)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{`ffmpeg -i /dev/video0`, []string{"ffmpeg", "-i", "/dev/video0"}, false},
		{`python3 "my worker.py" --flag`, []string{"python3", "my worker.py", "--flag"}, false},
		{`echo hello\ world`, []string{"echo", "hello world"}, false},
		{`sh -c 'echo "x"'`, []string{"sh", "-c", `echo "x"`}, false},
		{`broken "quote`, nil, true},
		{`   `, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCommand() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
