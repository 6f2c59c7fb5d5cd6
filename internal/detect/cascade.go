//go:build gocv

package detect

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// cascade runs an OpenCV Haar cascade in process.
type cascade struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

func newCascade(path string) (Classifier, error) {
	if path == "" {
		return nil, fmt.Errorf("cascade path is required")
	}
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		c.Close()
		return nil, fmt.Errorf("load cascade %s", path)
	}
	return &cascade{classifier: c}, nil
}

func (c *cascade) Classify(gray *image.Gray, p Params) ([]image.Rectangle, error) {
	b := gray.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, gray.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.DetectMultiScaleWithParams(mat, p.ScaleFactor, p.MinNeighbors, 0, p.MinSize, image.Point{}), nil
}

func (c *cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}
