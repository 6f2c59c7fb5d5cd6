//go:build !gocv

package sink

import (
	"errors"

	"github.com/smazurov/facegate/internal/logging"
)

func newGocvOpener(Config, logging.Logger) (Opener, error) {
	return nil, errors.New("gocv sink backend requires building with -tags gocv")
}
