package detect

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/process"
)

// maxMessageSize bounds a single request or reply on the worker pipe.
const maxMessageSize = 32 << 20

var (
	errWorkerTimeout = errors.New("classifier worker did not reply in time")
	errWorkerBackoff = errors.New("classifier worker is failing, waiting to restart")
)

// Consecutive worker failures past the first delay the next start,
// doubling from minRestartDelay up to maxRestartDelay.
const (
	minRestartDelay = 500 * time.Millisecond
	maxRestartDelay = 30 * time.Second
)

// classifyRequest is sent to the worker for every frame.
type classifyRequest struct {
	Width        int     `cbor:"width"`
	Height       int     `cbor:"height"`
	Stride       int     `cbor:"stride"`
	ScaleFactor  float64 `cbor:"scale_factor"`
	MinNeighbors int     `cbor:"min_neighbors"`
	MinWidth     int     `cbor:"min_width"`
	MinHeight    int     `cbor:"min_height"`
	Pix          []byte  `cbor:"pix"`
}

// classifyReply lists faces as [x, y, w, h].
type classifyReply struct {
	Faces [][4]int `cbor:"faces"`
	Error string   `cbor:"error,omitempty"`
}

// writeMessage sends v as a 4-byte big-endian length followed by its CBOR encoding.
func writeMessage(w io.Writer, v any) error {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if len(payload) > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}

// readMessage reads one length-prefixed CBOR message into v.
func readMessage(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	if err := cbor.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// roundTrip sends one request and waits for its reply.
func roundTrip(w io.Writer, r io.Reader, gray *image.Gray, p Params) ([]image.Rectangle, error) {
	b := gray.Bounds()
	req := classifyRequest{
		Width:        b.Dx(),
		Height:       b.Dy(),
		Stride:       gray.Stride,
		ScaleFactor:  p.ScaleFactor,
		MinNeighbors: p.MinNeighbors,
		MinWidth:     p.MinSize.X,
		MinHeight:    p.MinSize.Y,
		Pix:          gray.Pix,
	}
	if err := writeMessage(w, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var reply classifyReply
	if err := readMessage(r, &reply); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("worker: %s", reply.Error)
	}

	rects := make([]image.Rectangle, 0, len(reply.Faces))
	for _, f := range reply.Faces {
		rects = append(rects, image.Rect(f[0], f[1], f[0]+f[2], f[1]+f[3]))
	}
	return rects, nil
}

// Worker runs face classification in an external process, one request at a
// time. The process is restarted after any protocol or I/O failure, with
// a growing delay while it keeps failing.
type Worker struct {
	args         []string
	logger       logging.Logger
	replyTimeout time.Duration

	mu       sync.Mutex
	proc     *process.Process
	failures int
	retryAt  time.Time
}

// NewWorker prepares a worker for command, e.g. "python3 /usr/lib/facegate/haar_worker.py".
func NewWorker(command string, logger logging.Logger) (*Worker, error) {
	args, err := process.ParseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("classifier command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("classifier command is required")
	}
	bin, err := exec.LookPath(args[0])
	if err != nil {
		return nil, fmt.Errorf("classifier worker %q: %w", args[0], err)
	}
	args[0] = bin
	return &Worker{args: args, logger: logger, replyTimeout: 5 * time.Second}, nil
}

// Start launches the worker process now rather than on the first frame.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ensureStarted()
}

// Classify sends gray to the worker and returns its detections.
func (w *Worker) Classify(gray *image.Gray, p Params) ([]image.Rectangle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureStarted(); err != nil {
		return nil, err
	}
	proc := w.proc

	type result struct {
		rects []image.Rectangle
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		rects, err := roundTrip(proc.Stdin(), proc.Stdout(), gray, p)
		ch <- result{rects, err}
	}()

	timer := time.NewTimer(w.replyTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			w.restart()
			return nil, res.err
		}
		w.failures = 0
		return res.rects, nil
	case <-timer.C:
		// stopping closes the pipes and unblocks the round trip
		w.restart()
		<-ch
		return nil, errWorkerTimeout
	}
}

func (w *Worker) ensureStarted() error {
	if w.proc != nil {
		select {
		case <-w.proc.Done():
			code, _ := w.proc.ExitCode()
			w.logger.Warn("Classifier worker exited", "exit_code", code, "failures", w.failures+1)
			w.restart()
		default:
			return nil
		}
	}
	if time.Now().Before(w.retryAt) {
		return errWorkerBackoff
	}

	proc := process.New("classifier", w.args, w.logger,
		process.WithStdin(),
		process.WithStdout(),
		process.WithLogParser(logging.GetLogger("classifier"), nil),
		process.WithTimeouts(time.Second, time.Second),
	)
	if err := proc.Start(); err != nil {
		w.fail()
		return fmt.Errorf("start classifier worker: %w", err)
	}
	w.proc = proc
	return nil
}

// restart drops the current process; the next Classify starts a new one.
func (w *Worker) restart() {
	if w.proc != nil {
		w.proc.Stop()
		w.proc = nil
	}
	w.fail()
}

func (w *Worker) fail() {
	w.failures++
	if w.failures < 2 {
		return
	}
	delay := maxRestartDelay
	if shift := w.failures - 2; shift < 16 {
		delay = min(minRestartDelay<<shift, maxRestartDelay)
	}
	w.retryAt = time.Now().Add(delay)
}

// Close stops the worker process.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.proc != nil {
		w.proc.Finish()
		w.proc = nil
	}
	return nil
}
