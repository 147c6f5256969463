// Package stream fans dashboard views out to live SSE and WebSocket clients.
package stream

import (
	"context"
	"sync"

	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/progress"
)

const defaultClientBuffer = 16

// Broker keeps the set of connected clients and pushes each new view to
// them. A client that falls behind loses its oldest queued view; the latest
// one is always delivered.
type Broker struct {
	mu      sync.Mutex
	clients map[chan dashboard.View]struct{}
	buffer  int
	closed  bool
}

// NewBroker builds a Broker whose clients queue up to buffer views.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Broker{
		clients: make(map[chan dashboard.View]struct{}),
		buffer:  buffer,
	}
}

// Subscribe registers a client. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe() (<-chan dashboard.View, func()) {
	ch := make(chan dashboard.View, b.buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(ch) })
	}
}

// Clients reports the number of connected clients.
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast delivers v to every client without blocking.
func (b *Broker) Broadcast(v dashboard.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Consume broadcasts the last view in batch that changed the dashboard.
func (b *Broker) Consume(_ context.Context, batch []progress.Update) error {
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i].Changed() {
			b.Broadcast(batch[i].View)
			return nil
		}
	}
	return nil
}

// Close disconnects every client. Later subscribers get a closed channel.
func (b *Broker) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
	return nil
}

func (b *Broker) remove(ch chan dashboard.View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	close(ch)
}
