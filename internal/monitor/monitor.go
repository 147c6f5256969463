// Package monitor binds a subscription on the job status channel to the
// dashboard widget. It subscribes, resets the dashboard once the subscription
// is acknowledged, then applies every received notification in order and
// emits the resulting updates.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/notification"
	"github.com/JakeFAU/batchwatch/internal/progress"
	"github.com/JakeFAU/batchwatch/internal/subscriber"
	"github.com/JakeFAU/batchwatch/internal/telemetry"
)

// Clock supplies timestamps for emitted updates.
type Clock interface {
	Now() time.Time
}

// Config tunes the monitor.
type Config struct {
	// Channel is the event channel to subscribe to; empty means subscriber.DefaultChannel.
	Channel string
	// Replay selects where the subscription starts; zero means ReplayLatest.
	Replay subscriber.Replay
	// OnReady, if set, is called with the reset view once subscribed.
	OnReady func(dashboard.View)
}

// Monitor is the listener half of the dashboard.
type Monitor struct {
	source  subscriber.Source
	widget  *dashboard.Widget
	emitter progress.Emitter
	clock   Clock
	cfg     Config
	logger  *zap.Logger
	ready   atomic.Bool
}

// New wires a monitor. emitter and logger may be nil.
func New(
	source subscriber.Source,
	widget *dashboard.Widget,
	emitter progress.Emitter,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Monitor {
	if cfg.Channel == "" {
		cfg.Channel = subscriber.DefaultChannel
	}
	if cfg.Replay == 0 {
		cfg.Replay = subscriber.ReplayLatest
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		source:  source,
		widget:  widget,
		emitter: emitter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Ready reports whether the subscription is currently established.
func (m *Monitor) Ready() bool {
	return m.ready.Load()
}

// Run subscribes and processes notifications until ctx is done or the
// subscription ends. A failed subscription is returned and leaves the
// dashboard untouched. Run returns nil when ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	sub, err := m.source.Subscribe(ctx, m.cfg.Channel, m.cfg.Replay)
	if err != nil {
		m.logger.Error("subscription failed",
			zap.String("channel", m.cfg.Channel),
			zap.Error(err),
		)
		return fmt.Errorf("subscribe to %s: %w", m.cfg.Channel, err)
	}
	defer func() {
		if cerr := sub.Close(context.WithoutCancel(ctx)); cerr != nil {
			m.logger.Warn("subscription close failed", zap.Error(cerr))
		}
	}()

	view := m.widget.Reset()
	m.ready.Store(true)
	defer m.ready.Store(false)
	m.logger.Info("subscribed to channel",
		zap.String("channel", m.cfg.Channel),
		zap.Stringer("replay", m.cfg.Replay),
	)
	m.emit(progress.Update{
		TS:      m.now(),
		Outcome: dashboard.OutcomeReset,
		View:    view,
	})
	if m.cfg.OnReady != nil {
		m.cfg.OnReady(view)
	}

	err = sub.Receive(ctx, m.handle)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("receive from %s: %w", m.cfg.Channel, err)
	}
	return nil
}

func (m *Monitor) handle(ctx context.Context, msg subscriber.Message) error {
	ctx = telemetry.Extract(ctx, msg.Attributes)
	_, span := telemetry.Tracer().Start(ctx, "monitor.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.message.id", msg.ID)),
	)
	defer span.End()

	evt, err := notification.Decode(msg.Data)
	if err != nil {
		m.logger.Warn("dropping malformed notification",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed payload")
		return fmt.Errorf("decode message %s: %w", msg.ID, err)
	}

	view, outcome := m.widget.Handle(evt)
	span.SetAttributes(
		attribute.String("batchwatch.process_id", evt.ProcessID),
		attribute.String("batchwatch.operation_type", string(evt.OperationType)),
		attribute.String("batchwatch.outcome", string(outcome)),
	)
	fields := []zap.Field{
		zap.String("message_id", msg.ID),
		zap.String("process_id", evt.ProcessID),
		zap.Int("job_id", evt.JobID),
	}
	switch outcome {
	case dashboard.OutcomeDiscarded:
		m.logger.Info("event originated from another process and will be ignored", fields...)
	case dashboard.OutcomeRejected:
		m.logger.Warn("notification names no job slot", fields...)
	default:
		m.logger.Debug("notification applied", append(fields, zap.String("outcome", string(outcome)))...)
	}

	m.emit(progress.Update{
		TS:            m.now(),
		MessageID:     msg.ID,
		ProcessID:     evt.ProcessID,
		OperationType: evt.OperationType,
		JobID:         evt.JobID,
		Outcome:       outcome,
		View:          view,
	})
	return nil
}

func (m *Monitor) emit(u progress.Update) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(u)
}

func (m *Monitor) now() time.Time {
	if m.clock == nil {
		return time.Now().UTC()
	}
	return m.clock.Now()
}
