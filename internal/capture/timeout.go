package capture

import (
	"context"
	"time"

	"github.com/smazurov/facegate/internal/frame"
)

type readResult struct {
	f   *frame.Frame
	err error
}

// timedSource bounds each Read. A read that times out keeps running in the
// background; the next Read collects its result before issuing another one,
// so the underlying source never sees concurrent reads.
type timedSource struct {
	Source
	timeout time.Duration
	pending chan readResult
}

func withReadTimeout(opener Opener, timeout time.Duration) Opener {
	return OpenerFunc(func(ctx context.Context) (Source, error) {
		src, err := opener.Open(ctx)
		if err != nil {
			return nil, err
		}
		return &timedSource{Source: src, timeout: timeout}, nil
	})
}

func (s *timedSource) Read(ctx context.Context) (*frame.Frame, error) {
	ch := s.pending
	if ch == nil {
		ch = make(chan readResult, 1)
		go func() {
			f, err := s.Source.Read(ctx)
			ch <- readResult{f, err}
		}()
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		s.pending = nil
		return res.f, res.err
	case <-timer.C:
		s.pending = ch
		return nil, frameUnavailable(ErrReadTimeout)
	case <-ctx.Done():
		s.pending = ch
		return nil, frameUnavailable(ctx.Err())
	}
}
