// Package pubsub implements subscriber.Source on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/batchwatch/internal/subscriber"
)

const defaultPrefix = "batchwatch"

// IDGenerator produces unique suffixes for ephemeral subscriptions.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls how channels map onto Pub/Sub resources.
type Config struct {
	// SubscriptionID names an existing subscription to read from. When empty
	// an ephemeral subscription is created on the channel's topic and
	// deleted again on Close.
	SubscriptionID string
	// TopicID overrides the topic derived from the channel name.
	TopicID string
	// EphemeralPrefix prefixes generated subscription IDs.
	EphemeralPrefix string
	// Expiration is the idle expiration for ephemeral subscriptions.
	Expiration time.Duration
}

// Source opens Pub/Sub subscriptions.
type Source struct {
	client *pubsub.Client
	cfg    Config
	ids    IDGenerator
	now    func() time.Time
	logger *zap.Logger
}

// New wraps an existing client.
func New(client *pubsub.Client, cfg Config, ids IDGenerator, logger *zap.Logger) *Source {
	if cfg.EphemeralPrefix == "" {
		cfg.EphemeralPrefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client: client,
		cfg:    cfg,
		ids:    ids,
		now:    time.Now,
		logger: logger,
	}
}

// TopicID converts a platform channel name such as /event/Foo__e into a
// valid topic ID (event-Foo__e).
func TopicID(channel string) string {
	return strings.ReplaceAll(strings.Trim(channel, "/"), "/", "-")
}

// Subscribe opens the configured subscription, or creates an ephemeral one.
// With ReplayLatest a named subscription is seeked to the current time so
// its backlog is skipped; ephemeral subscriptions only ever see new messages.
func (s *Source) Subscribe(
	ctx context.Context,
	channel string,
	replay subscriber.Replay,
) (subscriber.Subscription, error) {
	if s.cfg.SubscriptionID != "" {
		return s.openNamed(ctx, replay)
	}
	return s.createEphemeral(ctx, channel)
}

func (s *Source) openNamed(ctx context.Context, replay subscriber.Replay) (subscriber.Subscription, error) {
	sub := s.client.Subscription(s.cfg.SubscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %q: %w", s.cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", subscriber.ErrSubscriptionNotFound, s.cfg.SubscriptionID)
	}
	if replay == subscriber.ReplayLatest {
		if err := sub.SeekToTime(ctx, s.now()); err != nil {
			return nil, fmt.Errorf("seek subscription %q: %w", s.cfg.SubscriptionID, err)
		}
	}
	s.logger.Info("subscribed",
		zap.String("subscription", sub.ID()),
		zap.String("replay", replay.String()),
	)
	return newSubscription(sub, false, s.logger), nil
}

func (s *Source) createEphemeral(ctx context.Context, channel string) (subscriber.Subscription, error) {
	topicID := s.cfg.TopicID
	if topicID == "" {
		topicID = TopicID(channel)
	}
	suffix, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate subscription id: %w", err)
	}
	cfg := pubsub.SubscriptionConfig{Topic: s.client.Topic(topicID)}
	if s.cfg.Expiration > 0 {
		cfg.ExpirationPolicy = s.cfg.Expiration
	}
	sub, err := s.client.CreateSubscription(ctx, s.cfg.EphemeralPrefix+"-"+suffix, cfg)
	if err != nil {
		return nil, fmt.Errorf("create subscription on topic %q: %w", topicID, err)
	}
	s.logger.Info("created ephemeral subscription",
		zap.String("subscription", sub.ID()),
		zap.String("topic", topicID),
	)
	return newSubscription(sub, true, s.logger), nil
}

// Subscription delivers Pub/Sub messages one at a time.
type Subscription struct {
	sub       *pubsub.Subscription
	ephemeral bool
	logger    *zap.Logger
}

func newSubscription(sub *pubsub.Subscription, ephemeral bool, logger *zap.Logger) *Subscription {
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	return &Subscription{sub: sub, ephemeral: ephemeral, logger: logger}
}

// ID returns the subscription ID.
func (s *Subscription) ID() string {
	return s.sub.ID()
}

// Receive blocks until ctx is done. Every message is acknowledged after the
// handler returns, whether or not it failed.
func (s *Subscription) Receive(ctx context.Context, handler subscriber.Handler) error {
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if herr := handler(ctx, toMessage(msg)); herr != nil {
			s.logger.Debug("handler failed", zap.String("message_id", msg.ID), zap.Error(herr))
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive from %q: %w", s.sub.ID(), err)
	}
	return nil
}

// Close deletes ephemeral subscriptions; named ones are left in place.
func (s *Subscription) Close(ctx context.Context) error {
	if !s.ephemeral {
		return nil
	}
	if err := s.sub.Delete(ctx); err != nil {
		return fmt.Errorf("delete subscription %q: %w", s.sub.ID(), err)
	}
	return nil
}

func toMessage(msg *pubsub.Message) subscriber.Message {
	return subscriber.Message{
		ID:          msg.ID,
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		PublishTime: msg.PublishTime,
	}
}
