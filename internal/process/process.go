package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/facegate/internal/logging"
)

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output (ffmpeg, classifier workers, etc.)
type LogParser func(line string) (level, msg string)

// ExitCodeKilled is reported when the process had to be force-killed.
const ExitCodeKilled = 137

// Process manages the lifecycle of a subprocess that exchanges data over its
// standard streams. Stderr is always streamed into the logger; stdin and stdout
// are exposed as pipes when requested.
type Process struct {
	id              string
	args            []string
	cmd             *exec.Cmd
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // parses process output for log level (nil = no parsing)
	wantStdin       bool
	wantStdout      bool
	stdin           io.WriteCloser
	stdout          *os.File
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up

	done     chan struct{}
	exitCode int
	exitErr  error
	stopOnce sync.Once
	stopCode int
}

// Option configures a Process.
type Option func(*Process)

// WithStdin exposes the subprocess stdin through Stdin().
func WithStdin() Option {
	return func(p *Process) { p.wantStdin = true }
}

// WithStdout exposes the subprocess stdout through Stdout().
func WithStdout() Option {
	return func(p *Process) { p.wantStdout = true }
}

// WithLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="ffmpeg").
// The parser extracts log level from process-specific output formats.
func WithLogParser(logger logging.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.processLogger = logger
		p.logParser = parser
	}
}

// WithTimeouts overrides the graceful and kill timeouts used by Stop and Finish.
func WithTimeouts(graceful, kill time.Duration) Option {
	return func(p *Process) {
		p.gracefulTimeout = graceful
		p.killTimeout = kill
	}
}

// New creates a process for the given argv. It is not started.
func New(id string, args []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		id:              id,
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromCommand parses a shell-like command string and creates a process for it.
func NewFromCommand(id, command string, logger logging.Logger, opts ...Option) (*Process, error) {
	args, err := ParseCommand(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return New(id, args, logger, opts...), nil
}

// Args returns the argv the process was created with.
func (p *Process) Args() []string {
	return p.args
}

// Start launches the subprocess.
func (p *Process) Start() error {
	if len(p.args) == 0 {
		return fmt.Errorf("empty command")
	}

	p.cmd = exec.Command(p.args[0], p.args[1:]...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if p.wantStdin {
		stdin, err := p.cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("create stdin pipe: %w", err)
		}
		p.stdin = stdin
	}

	// Stdout goes through an os.Pipe owned by us so that cmd.Wait never
	// closes it underneath a reader still draining buffered frames.
	var stdoutW *os.File
	if p.wantStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("create stdout pipe: %w", err)
		}
		p.stdout = r
		stdoutW = w
		p.cmd.Stdout = w
	}

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		p.closePipes(stdoutW)
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		p.closePipes(stdoutW)
		return fmt.Errorf("start %s: %w", p.args[0], err)
	}
	if stdoutW != nil {
		// Only the child holds the write end now
		stdoutW.Close()
	}

	p.logger.Debug("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "command", strings.Join(p.args, " "))

	outputDone := make(chan struct{})
	go func() {
		p.streamOutput(stderr, "stderr")
		close(outputDone)
	}()

	go func() {
		<-outputDone
		err := p.cmd.Wait()
		p.exitCode = exitCodeFromError(err)
		p.exitErr = err
		close(p.done)
	}()

	return nil
}

func (p *Process) closePipes(stdoutW *os.File) {
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.stdout != nil {
		p.stdout.Close()
	}
	if stdoutW != nil {
		stdoutW.Close()
	}
}

// Stdin returns the subprocess stdin, or nil if WithStdin was not given.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout returns the subprocess stdout, or nil if WithStdout was not given.
func (p *Process) Stdout() io.ReadCloser {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// Done is closed once the subprocess has exited and its stderr is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code and error after Done is closed.
func (p *Process) ExitCode() (int, error) {
	<-p.done
	return p.exitCode, p.exitErr
}

// Finish closes stdin so the subprocess can flush and exit on its own, then
// waits for it. It falls back to Stop if the graceful timeout elapses.
func (p *Process) Finish() int {
	if p.stdin != nil {
		if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.logger.Debug("Closing stdin failed", "error", err)
		}
	}
	select {
	case <-p.done:
		p.releaseStdout()
		return p.exitCode
	case <-time.After(p.gracefulTimeout):
		p.logger.Warn("Process did not exit after stdin closed, stopping", "timeout", p.gracefulTimeout)
		return p.Stop()
	}
}

// Stop sends SIGINT, waits for the graceful timeout and force-kills the
// process if it is still running. Safe to call multiple times.
func (p *Process) Stop() int {
	p.stopOnce.Do(func() {
		if p.cmd == nil || p.cmd.Process == nil {
			p.stopCode = 0
			return
		}
		select {
		case <-p.done:
			p.stopCode = p.exitCode
		default:
			p.sendStopSignal()
			p.stopCode = p.waitForExit(p.gracefulTimeout)
		}
		p.releaseStdout()
	})
	return p.stopCode
}

func (p *Process) releaseStdout() {
	if p.stdout != nil {
		p.stdout.Close()
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	p.logger.Debug("Sending SIGINT to process", "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.exitCode
	case <-time.After(timeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
		// Kill the whole process group so helpers spawned by the child
		// release the stderr pipe as well.
		if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil {
			// ESRCH is OK - process exited between timeout and kill
			if !errors.Is(err, syscall.ESRCH) {
				p.logger.Error("Failed to kill process", "error", err)
			}
		}
		// Wait for process to exit with a secondary timeout to prevent hanging
		select {
		case <-p.done:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal")
		}
		return ExitCodeKilled
	}
}

// streamOutput forwards subprocess output lines to the process logger,
// using the configured LogParser to pick a level.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "panic", "error":
			logger.Error(msg, "id", p.id)
		case "warning":
			logger.Warn(msg, "id", p.id)
		case "debug", "trace", "verbose":
			logger.Debug(msg, "id", p.id)
		default:
			logger.Info(msg, "id", p.id)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Debug("Error reading output", "source", source, "error", err)
	}
}

// ParseCommand parses a command string into arguments.
// Handles quoted strings and basic escaping.
func ParseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
