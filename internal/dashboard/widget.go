package dashboard

import (
	"sync"

	"github.com/JakeFAU/batchwatch/internal/notification"
)

// Widget owns the dashboard State of one monitor instance. Handle and Reset
// are serialized; Snapshot may be called from any goroutine.
type Widget struct {
	mu    sync.RWMutex
	state State
}

// NewWidget returns a Widget with jobs pending slots. A non-positive jobs
// falls back to DefaultJobs.
func NewWidget(jobs int) *Widget {
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	return &Widget{state: NewState(jobs)}
}

// Reset reinitializes display state while keeping the tracked process.
func (w *Widget) Reset() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = Reset(w.state, w.state.ProcessID)
	return w.state.View()
}

// Handle applies evt and returns the resulting view.
func (w *Widget) Handle(evt notification.Event) (View, Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, outcome := Apply(w.state, evt)
	w.state = next
	return next.View(), outcome
}

// Snapshot returns the current view.
func (w *Widget) Snapshot() View {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.View()
}

// State returns a copy of the current state.
func (w *Widget) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.clone()
}
