package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/notification"
)

// Update captures one notification handled by the monitor and the view it
// produced.
type Update struct {
	// TS is the UTC time the monitor handled the notification.
	TS time.Time
	// MessageID is the transport message ID, when known.
	MessageID string
	// ProcessID is the process the notification claimed to belong to.
	ProcessID string
	// OperationType is the notification's operation type.
	OperationType notification.OperationType
	// JobID is the 1-based job the notification reported on.
	JobID int
	// Outcome tells how the dashboard treated the notification.
	Outcome dashboard.Outcome
	// View is the dashboard after the notification was applied.
	View dashboard.View
}

// Validate performs coarse validation on Update records.
func (u Update) Validate() error {
	if u.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch u.Outcome {
	case dashboard.OutcomeApplied, dashboard.OutcomeReset, dashboard.OutcomeUserMessage,
		dashboard.OutcomeDiscarded, dashboard.OutcomeRejected:
	default:
		return fmt.Errorf("unknown outcome %q", u.Outcome)
	}
	return nil
}

// Changed reports whether the update altered the visible dashboard.
func (u Update) Changed() bool {
	return u.Outcome != dashboard.OutcomeDiscarded && u.Outcome != dashboard.OutcomeRejected
}
