package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/batchwatch/internal/progress"
)

// LogSink emits structured logs for every dashboard update. It is useful
// during development or when replaying captured notifications.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each update in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Update) error {
	for _, u := range batch {
		fields := []zap.Field{
			zap.String("message_id", u.MessageID),
			zap.String("process_id", u.ProcessID),
			zap.String("operation_type", string(u.OperationType)),
			zap.Int("job_id", u.JobID),
			zap.String("outcome", string(u.Outcome)),
			zap.Float64("progress", u.View.Progress),
			zap.String("footer", u.View.ProgressFooterMessage),
		}
		if u.Changed() {
			s.logger.Info("dashboard update", fields...)
			continue
		}
		s.logger.Debug("dashboard update skipped", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
