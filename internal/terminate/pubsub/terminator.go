// Package pubsub publishes terminate requests to a Google Cloud Pub/Sub
// control topic consumed by the batch backend.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/batchwatch/internal/telemetry"
)

// ActionTerminate is the action name carried by every request.
const ActionTerminate = "terminate"

// Request is the JSON body of a terminate message.
type Request struct {
	Action      string    `json:"action"`
	RequestedAt time.Time `json:"requested_at"`
}

// Terminator publishes terminate requests to a topic.
type Terminator struct {
	topic *pubsub.Topic
	now   func() time.Time
}

// New creates a Terminator for the provided topic.
func New(topic *pubsub.Topic) *Terminator {
	return &Terminator{topic: topic, now: time.Now}
}

// Terminate publishes the request and waits for the server to accept it.
func (t *Terminator) Terminate(ctx context.Context) error {
	if t.topic == nil {
		return fmt.Errorf("terminate topic is not configured")
	}
	data, err := json.Marshal(Request{Action: ActionTerminate, RequestedAt: t.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal terminate request: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"action": ActionTerminate}}
	telemetry.Inject(ctx, msg.Attributes)

	if _, err := t.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish terminate request: %w", err)
	}
	return nil
}

// Stop flushes pending publishes.
func (t *Terminator) Stop() {
	if t.topic != nil {
		t.topic.Stop()
	}
}
