// Package terminate sends the remote request that stops every job of the
// running batch process. The request carries no arguments and its outcome is
// not reflected locally: terminated jobs report back through the normal
// notification stream.
package terminate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a fired termination request.
const DefaultTimeout = 10 * time.Second

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("termination is not configured")

// Terminator issues the remote terminate request.
type Terminator interface {
	Terminate(ctx context.Context) error
}

// Disabled is a Terminator for deployments without a control channel.
type Disabled struct{}

// Terminate always returns ErrNotConfigured.
func (Disabled) Terminate(context.Context) error { return ErrNotConfigured }

// Fire runs t in the background and only logs its result. The request
// outlives ctx cancellation but is bounded by timeout.
func Fire(ctx context.Context, t Terminator, timeout time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := t.Terminate(callCtx); err != nil {
			logger.Warn("terminate request failed", zap.Error(err))
			return
		}
		logger.Info("terminate request sent")
	}()
}
