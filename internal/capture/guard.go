package capture

import "sync"

// readGuard lets Close return while a native read is blocked in a driver
// call. Handles that cannot be released concurrently with a read are freed
// by whichever side finishes last: Close when idle, otherwise the reader
// when its call returns.
type readGuard struct {
	mu      sync.Mutex
	reading bool
	closed  bool

	free     func() error
	freeOnce sync.Once
	freeErr  error
}

func newReadGuard(free func() error) *readGuard {
	return &readGuard{free: free}
}

// begin marks a read in flight. It returns false once closed.
func (g *readGuard) begin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.reading = true
	return true
}

// end finishes a read. It returns false when Close ran during the read, in
// which case the handle has been freed and the result must be discarded.
func (g *readGuard) end() bool {
	g.mu.Lock()
	g.reading = false
	closed := g.closed
	g.mu.Unlock()
	if closed {
		g.release()
		return false
	}
	return true
}

// close marks the guard closed and frees the handle unless a read is in
// flight. It never waits for the reader.
func (g *readGuard) close() error {
	g.mu.Lock()
	g.closed = true
	busy := g.reading
	g.mu.Unlock()
	if busy {
		return nil
	}
	return g.release()
}

func (g *readGuard) release() error {
	g.freeOnce.Do(func() {
		g.freeErr = g.free()
	})
	return g.freeErr
}
