// Package detect finds faces in frames using a pluggable classifier.
package detect

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/smazurov/facegate/internal/frame"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/metrics"
)

// Params tune the multi-scale search. They are fixed when a Detector is built.
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point // smallest face considered, zero = classifier default
}

// DefaultParams returns scale factor 1.1 and 3 neighbors.
func DefaultParams() Params {
	return Params{ScaleFactor: 1.1, MinNeighbors: 3}
}

func (p Params) validate() error {
	if p.ScaleFactor <= 1 {
		return fmt.Errorf("scale factor must be greater than 1, got %v", p.ScaleFactor)
	}
	if p.MinNeighbors < 0 {
		return fmt.Errorf("min neighbors must not be negative, got %d", p.MinNeighbors)
	}
	return nil
}

// Region is a detected face in frame pixel coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Result holds the regions found in one frame, in classifier order.
// An empty result means no face was found.
type Result []Region

// Empty reports whether nothing was detected.
func (r Result) Empty() bool {
	return len(r) == 0
}

// Rects converts the result for drawing.
func (r Result) Rects() []image.Rectangle {
	rects := make([]image.Rectangle, len(r))
	for i, region := range r {
		rects[i] = region.Rect()
	}
	return rects
}

// Classifier runs a face search over a grayscale image.
type Classifier interface {
	Classify(gray *image.Gray, p Params) ([]image.Rectangle, error)
	Close() error
}

// Detector wraps a Classifier with fixed parameters.
// Detect keeps no state between calls, so frame sizes may vary.
type Detector struct {
	classifier Classifier
	params     Params
	logger     logging.Logger

	mu         sync.Mutex
	failing    bool
	lastWarn   time.Time
	suppressed int
}

// failureLogInterval bounds how often a failing classifier is reported.
const failureLogInterval = 10 * time.Second

// New builds a Detector. Invalid params are rejected here rather than per frame.
func New(classifier Classifier, params Params, logger logging.Logger) (*Detector, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Detector{classifier: classifier, params: params, logger: logger}, nil
}

// Params returns the parameters the detector was built with.
func (d *Detector) Params() Params {
	return d.params
}

// Detect returns the faces in f. A classifier failure is logged and
// reported as an empty result.
func (d *Detector) Detect(f *frame.Frame) Result {
	if f == nil {
		return nil
	}
	start := time.Now()
	rects, err := d.classifier.Classify(f.Gray(), d.params)
	metrics.ObserveDetect(time.Since(start).Seconds())
	if err != nil {
		metrics.ClassifierError()
		d.classifierFailed(f.Seq, err)
		return nil
	}
	d.classifierOK()

	bounds := f.Bounds()
	result := make(Result, 0, len(rects))
	for _, r := range rects {
		r = r.Intersect(bounds)
		if r.Empty() {
			continue
		}
		result = append(result, Region{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()})
	}
	if len(result) > 0 {
		metrics.FacesDetected(len(result))
	}
	return result
}

func (d *Detector) classifierFailed(seq uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = true
	now := time.Now()
	if !d.lastWarn.IsZero() && now.Sub(d.lastWarn) < failureLogInterval {
		d.suppressed++
		return
	}
	d.logger.Warn("Classifier failed, treating frame as empty", "seq", seq, "error", err, "suppressed", d.suppressed)
	d.lastWarn = now
	d.suppressed = 0
}

func (d *Detector) classifierOK() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.failing {
		return
	}
	d.logger.Info("Classifier recovered", "suppressed", d.suppressed)
	d.failing = false
	d.lastWarn = time.Time{}
	d.suppressed = 0
}

// Close releases the classifier.
func (d *Detector) Close() error {
	return d.classifier.Close()
}
