// Package memory provides a Terminator that records requests in memory.
package memory

import (
	"context"
	"sync"
	"time"
)

// Terminator counts terminate requests for inspection.
type Terminator struct {
	mu       sync.RWMutex
	requests []time.Time
	err      error
}

// New returns a memory Terminator.
func New() *Terminator {
	return &Terminator{}
}

// FailWith makes subsequent requests return err.
func (t *Terminator) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Terminate records the request.
func (t *Terminator) Terminate(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.requests = append(t.requests, time.Now().UTC())
	return nil
}

// Requests returns the recorded request times.
func (t *Terminator) Requests() []time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]time.Time, len(t.requests))
	copy(out, t.requests)
	return out
}
