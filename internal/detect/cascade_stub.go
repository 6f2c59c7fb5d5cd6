//go:build !gocv

package detect

import "errors"

func newCascade(string) (Classifier, error) {
	return nil, errors.New("cascade classifier requires building with -tags gocv")
}
