// Package subscriber defines the channel subscription abstraction the monitor
// listens on. Implementations live in subpackages: memory for local runs and
// tests, pubsub for Google Cloud Pub/Sub.
package subscriber

import (
	"context"
	"errors"
	"time"
)

// DefaultChannel is the platform event channel batch jobs publish to.
const DefaultChannel = "/event/ForceeaAsyncNotification__e"

// Replay selects where a new subscription starts reading.
type Replay int

const (
	// ReplayLatest delivers only messages published after subscribing.
	ReplayLatest Replay = -1
	// ReplayAll delivers every retained message.
	ReplayAll Replay = -2
)

var (
	// ErrSubscriptionNotFound is returned when the configured subscription does not exist.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrClosed is returned when receiving from a closed source.
	ErrClosed = errors.New("subscriber closed")
)

// Message is one raw notification received from a channel.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

// Handler processes one message. Returning an error does not cause
// redelivery; the message is acknowledged either way.
type Handler func(ctx context.Context, msg Message) error

// Source opens subscriptions to named channels.
type Source interface {
	// Subscribe returns once the subscription is acknowledged.
	Subscribe(ctx context.Context, channel string, replay Replay) (Subscription, error)
}

// Subscription delivers messages of one channel.
type Subscription interface {
	// Receive calls handler for each message, one at a time, until ctx is
	// done or the subscription fails.
	Receive(ctx context.Context, handler Handler) error
	// Close releases the subscription.
	Close(ctx context.Context) error
}

// ParseReplay maps the configuration keywords "latest" and "all".
func ParseReplay(s string) (Replay, error) {
	switch s {
	case "", "latest":
		return ReplayLatest, nil
	case "all":
		return ReplayAll, nil
	default:
		return 0, errors.New("replay must be \"latest\" or \"all\"")
	}
}

func (r Replay) String() string {
	switch r {
	case ReplayLatest:
		return "latest"
	case ReplayAll:
		return "all"
	default:
		return "unknown"
	}
}
