// Package memory provides an in-process Source backed by buffered channels.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/batchwatch/internal/subscriber"
)

// Source fans published messages out to every open subscription of a
// channel. With ReplayAll a new subscription first receives the retained
// history of the channel: the last capacity messages published to it.
type Source struct {
	mu       sync.Mutex
	capacity int
	subs     map[string][]*Subscription
	history  map[string][]subscriber.Message
	seq      int
	closed   bool
	subErr   error
}

// NewSource constructs a Source whose subscriptions buffer up to capacity messages.
func NewSource(capacity int) *Source {
	if capacity <= 0 {
		capacity = 64
	}
	return &Source{
		capacity: capacity,
		subs:     make(map[string][]*Subscription),
		history:  make(map[string][]subscriber.Message),
	}
}

// FailSubscribe makes subsequent Subscribe calls return err.
func (s *Source) FailSubscribe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subErr = err
}

// Subscribe opens a subscription to channel.
func (s *Source) Subscribe(ctx context.Context, channel string, replay subscriber.Replay) (subscriber.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	if s.closed {
		return nil, subscriber.ErrClosed
	}
	sub := &Subscription{
		source:  s,
		channel: channel,
		ch:      make(chan subscriber.Message, s.capacity),
		done:    make(chan struct{}),
	}
	if replay == subscriber.ReplayAll {
		for _, msg := range s.history[channel] {
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
	s.subs[channel] = append(s.subs[channel], sub)
	return sub, nil
}

// Publish delivers data to every subscription of channel. It blocks while a
// subscriber's buffer is full, or until ctx is done.
func (s *Source) Publish(ctx context.Context, channel string, data []byte) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", subscriber.ErrClosed
	}
	s.seq++
	msg := subscriber.Message{
		ID:          strconv.Itoa(s.seq),
		Data:        append([]byte(nil), data...),
		PublishTime: time.Now().UTC(),
	}
	history := append(s.history[channel], msg)
	if len(history) > s.capacity {
		history = append(history[:0], history[len(history)-s.capacity:]...)
	}
	s.history[channel] = history
	targets := append([]*Subscription(nil), s.subs[channel]...)
	s.mu.Unlock()

	for _, sub := range targets {
		if err := sub.deliver(ctx, msg); err != nil {
			return "", err
		}
	}
	return msg.ID, nil
}

// Close closes every subscription. Pending messages can still be received.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	s.subs = map[string][]*Subscription{}
}

func (s *Source) remove(target *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[target.channel]
	for i, sub := range subs {
		if sub == target {
			s.subs[target.channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subscription is one reader of a memory channel.
type Subscription struct {
	source  *Source
	channel string
	ch      chan subscriber.Message

	doneOnce sync.Once
	done     chan struct{}
}

// Receive hands messages to handler sequentially until ctx is done or the
// subscription is closed and drained.
func (s *Subscription) Receive(ctx context.Context, handler subscriber.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("receive canceled: %w", ctx.Err())
		case msg := <-s.ch:
			_ = handler(ctx, msg)
		case <-s.done:
			for {
				select {
				case msg := <-s.ch:
					_ = handler(ctx, msg)
				default:
					return subscriber.ErrClosed
				}
			}
		}
	}
}

// Close detaches the subscription from its source.
func (s *Subscription) Close(context.Context) error {
	s.source.remove(s)
	s.close()
	return nil
}

func (s *Subscription) deliver(ctx context.Context, msg subscriber.Message) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case <-s.done:
		return nil
	case s.ch <- msg:
		return nil
	}
}

func (s *Subscription) close() {
	s.doneOnce.Do(func() { close(s.done) })
}
