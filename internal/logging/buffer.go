package logging

import (
	"sync"
	"time"
)

// LogEntry is one record kept for the log API.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries. Safe for concurrent use.
type RingBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	written uint64
}

// NewRingBuffer creates a buffer holding up to capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, max(capacity, 1))}
}

// Write stores e, evicting the oldest entry when full.
func (rb *RingBuffer) Write(e LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.written%uint64(len(rb.entries))] = e
	rb.written++
}

// Len returns the number of entries held.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.held()
}

// Tail returns up to n of the newest entries, oldest first. n <= 0 returns
// everything held.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	held := rb.held()
	if n <= 0 || n > held {
		n = held
	}
	out := make([]LogEntry, n)
	first := rb.written - uint64(n)
	for i := range out {
		out[i] = rb.entries[(first+uint64(i))%uint64(len(rb.entries))]
	}
	return out
}

func (rb *RingBuffer) held() int {
	return int(min(rb.written, uint64(len(rb.entries))))
}
