package detect

import (
	"fmt"
	"image"

	"github.com/smazurov/facegate/internal/logging"
)

// Classifier names.
const (
	ClassifierWorker  = "worker"
	ClassifierCascade = "cascade"
	ClassifierNone    = "none"
)

// Config selects the classifier and its parameters.
type Config struct {
	Classifier  string
	Command     string // worker executable and arguments
	CascadePath string // Haar cascade XML for the cascade classifier
	Params      Params
}

// Open builds a Detector for cfg.
func Open(cfg Config, logger logging.Logger) (*Detector, error) {
	var (
		c   Classifier
		err error
	)
	switch cfg.Classifier {
	case "", ClassifierWorker:
		var w *Worker
		if w, err = NewWorker(cfg.Command, logger); err == nil {
			if err = w.Start(); err != nil {
				w.Close()
			}
		}
		c = w
	case ClassifierCascade:
		c, err = newCascade(cfg.CascadePath)
	case ClassifierNone:
		c = None{}
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}
	if err != nil {
		return nil, err
	}

	d, err := New(c, cfg.Params, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	return d, nil
}

// None never finds anything. Useful for dry runs of the capture and sink path.
type None struct{}

func (None) Classify(*image.Gray, Params) ([]image.Rectangle, error) { return nil, nil }
func (None) Close() error                                            { return nil }
