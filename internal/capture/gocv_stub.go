//go:build !gocv

package capture

import (
	"errors"

	"github.com/smazurov/facegate/internal/logging"
)

func newGocvOpener(Config, logging.Logger) (Opener, error) {
	return nil, errors.New("gocv capture backend requires building with -tags gocv")
}
