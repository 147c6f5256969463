package dashboard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/batchwatch/internal/notification"
)

func insertEvent(jobID int, executed, total, toExecute int64) notification.Event {
	return notification.Event{
		JobID:                 jobID,
		Jobs:                  3,
		JobUnitsExecuted:      executed,
		OperationType:         notification.OperationInsert,
		ProcessID:             "p1",
		ProcessUnitsToExecute: toExecute,
		TotalJobUnits:         total,
	}
}

func countBadges(statusMessage string) int {
	return strings.Count(statusMessage, "&#9646;")
}

func applyAll(t *testing.T, s State, events ...notification.Event) State {
	t.Helper()
	for _, evt := range events {
		s, _ = Apply(s, evt)
	}
	return s
}

func TestApplyFirstInsertEvent(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), notification.Event{
		OperationType: notification.OperationInitialize,
		ProcessID:     "p1",
		Jobs:          3,
	})
	require.Len(t, s.Slots, 3)

	next, outcome := Apply(s, insertEvent(1, 5, 10, 30))
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, int64(5), next.UnitsExecuted)
	require.InDelta(t, 16.67, next.Progress, 0.01)
	require.True(t, next.IsInsert)
	require.Equal(t, StatusPending, next.Slots[0].Status)
	require.Equal(t, "Inserted 5 of 30 iterations", next.ProgressFooter)

	require.Equal(t, 3, countBadges(next.StatusMessage))
	badges := next.View().JobStatuses
	require.Equal(t, Badge(1, StatusPending), badges[0])
	require.Contains(t, badges[0], "color:black")
	require.True(t, strings.HasSuffix(badges[0], "&nbsp;1"))
}

func TestApplyTruncatesDefaultSlotsOnFirstEvent(t *testing.T) {
	t.Parallel()

	s := NewState(DefaultJobs)
	require.Len(t, s.Slots, DefaultJobs)

	s = applyAll(t, s, insertEvent(2, 1, 10, 30))
	require.Len(t, s.Slots, 3)
	require.Equal(t, "p1", s.ProcessID)
	require.False(t, s.AwaitingFirst)
}

func TestApplyZeroUnitsDoesNotRetruncate(t *testing.T) {
	t.Parallel()

	wider := insertEvent(5, 0, 10, 30)
	wider.Jobs = 5
	s := applyAll(t, NewState(DefaultJobs),
		insertEvent(1, 0, 10, 30),
		wider,
		insertEvent(2, 0, 10, 30),
	)
	require.Len(t, s.Slots, 5)
	require.Equal(t, int64(0), s.UnitsExecuted)
}

func TestApplyFirstEventPadsToDeclaredJobs(t *testing.T) {
	t.Parallel()

	evt := insertEvent(1, 1, 10, 600)
	evt.Jobs = 60
	s, outcome := Apply(NewState(DefaultJobs), evt)
	require.Equal(t, OutcomeApplied, outcome)
	require.Len(t, s.Slots, 60)
	require.Equal(t, 60, countBadges(s.StatusMessage))
	require.Equal(t, StatusPending, s.Slots[59].Status)
}

func TestApplyFirstEventAfterEmptyInitialize(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), notification.Event{
		OperationType: notification.OperationInitialize,
		ProcessID:     "p1",
	})
	require.Empty(t, s.Slots)

	s = applyAll(t, s, insertEvent(2, 1, 10, 30))
	require.Len(t, s.Slots, 3)
	require.Equal(t, 3, countBadges(s.StatusMessage))
}

func TestApplySlotCountTracksDeclaredJobs(t *testing.T) {
	t.Parallel()

	s := NewState(DefaultJobs)
	for i := 0; i < 20; i++ {
		s, _ = Apply(s, insertEvent(i%3+1, int64(i), 10, 60))
		require.Equal(t, 3, countBadges(s.StatusMessage))
	}
}

func TestApplyAggregateEqualsSlotSum(t *testing.T) {
	t.Parallel()

	s := NewState(DefaultJobs)
	events := []notification.Event{
		insertEvent(1, 5, 10, 30),
		insertEvent(2, 7, 10, 30),
		insertEvent(1, 9, 10, 30),
		insertEvent(3, 10, 10, 30),
		insertEvent(2, 10, 10, 30),
	}
	for _, evt := range events {
		s, _ = Apply(s, evt)
		require.Equal(t, sumExecuted(s.Slots), s.UnitsExecuted)
	}
	require.Equal(t, int64(29), s.UnitsExecuted)
}

func TestApplyProgressFreezesAboveHundred(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), insertEvent(1, 15, 15, 10))
	require.InDelta(t, 150.0, s.Progress, 1e-9)
	frozenFooter := s.ProgressFooter

	s = applyAll(t, s, insertEvent(1, 2, 15, 10), insertEvent(2, 1, 15, 10))
	require.InDelta(t, 150.0, s.Progress, 1e-9)
	require.Equal(t, frozenFooter, s.ProgressFooter)
}

func TestApplyProgressStopsAtExactlyHundredIsNotFrozen(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), insertEvent(1, 10, 10, 10))
	require.InDelta(t, 100.0, s.Progress, 1e-9)

	s = applyAll(t, s, insertEvent(1, 5, 10, 10))
	require.InDelta(t, 50.0, s.Progress, 1e-9)
}

func TestApplyProgressIgnoresZeroUnitsToExecute(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), insertEvent(1, 3, 10, 0))
	require.Zero(t, s.Progress)
	require.Equal(t, "Inserted 3 of 0 iterations", s.ProgressFooter)
}

func TestApplyNonInsertFooters(t *testing.T) {
	t.Parallel()

	evt := notification.Event{JobID: 1, Jobs: 1, JobUnitsExecuted: 1234567, ProcessID: "p1"}

	evt.OperationType = notification.OperationDelete
	s, _ := Apply(NewState(1), evt)
	require.Equal(t, "Deleted 1,234,567 records", s.ProgressFooter)
	require.False(t, s.IsInsert)
	require.Zero(t, s.Progress)

	evt.OperationType = notification.OperationUpdate
	s, _ = Apply(NewState(1), evt)
	require.Equal(t, "Updated 1,234,567 records", s.ProgressFooter)
}

func TestApplyInitializeMidProcessResets(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs),
		insertEvent(1, 5, 10, 30),
		notification.Event{OperationType: notification.OperationUserMessage, Message: "hello"},
	)
	s.Slots[0].Status = StatusCompleted
	s.LogMessage = "line"

	next, outcome := Apply(s, notification.Event{
		OperationType: notification.OperationInitialize,
		ProcessID:     "p2",
		Jobs:          4,
	})
	require.Equal(t, OutcomeReset, outcome)
	require.Equal(t, "p2", next.ProcessID)
	require.Len(t, next.Slots, 4)
	for _, slot := range next.Slots {
		require.Equal(t, Slot{Status: StatusPending}, slot)
	}
	require.Empty(t, next.LogMessage)
	require.Empty(t, next.UserMessage)
	require.Empty(t, next.StatusMessage)
	require.Zero(t, next.Progress)
	require.Zero(t, next.UnitsExecuted)
	require.Equal(t, WaitingFooter, next.ProgressFooter)
	require.True(t, next.AwaitingFirst)
}

func TestApplyUserMessagePrepends(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs),
		insertEvent(1, 5, 10, 30),
		notification.Event{OperationType: notification.OperationUserMessage, Message: "first"},
	)
	before := s.View()

	next, outcome := Apply(s, notification.Event{
		OperationType: notification.OperationUserMessage,
		Message:       "Hi",
		ProcessID:     "other",
	})
	require.Equal(t, OutcomeUserMessage, outcome)

	after := next.View()
	require.Equal(t, "Hi"+before.UserMessage, after.UserMessage)
	after.UserMessage = before.UserMessage
	require.Equal(t, before, after)
}

func TestApplyDiscardsOtherProcess(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), insertEvent(1, 5, 10, 30))
	before := s.View()

	evt := insertEvent(2, 9, 10, 30)
	evt.ProcessID = "p2"
	evt.JobIsCompleted = true
	next, outcome := Apply(s, evt)
	require.Equal(t, OutcomeDiscarded, outcome)
	require.Equal(t, before, next.View())
}

func TestApplyEmptyProcessIDIsAccepted(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), insertEvent(1, 5, 10, 30))
	evt := insertEvent(2, 4, 10, 30)
	evt.ProcessID = ""
	next, outcome := Apply(s, evt)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, "p1", next.ProcessID)
	require.Equal(t, int64(9), next.UnitsExecuted)
}

func TestApplyBadgePriorityAndStickiness(t *testing.T) {
	t.Parallel()

	evt := insertEvent(1, 10, 10, 30)
	evt.JobIsCompleted = true
	evt.JobHasFailed = true
	evt.JobIsTerminated = true
	s := applyAll(t, NewState(DefaultJobs), evt)
	require.Equal(t, StatusCompleted, s.Slots[0].Status)

	failed := insertEvent(2, 3, 10, 30)
	failed.JobHasFailed = true
	failed.JobIsTerminated = true
	s = applyAll(t, s, failed)
	require.Equal(t, StatusFailed, s.Slots[1].Status)

	terminated := insertEvent(3, 3, 10, 30)
	terminated.JobIsTerminated = true
	s = applyAll(t, s, terminated)
	require.Equal(t, StatusTerminated, s.Slots[2].Status)

	s = applyAll(t, s, insertEvent(1, 10, 10, 30), insertEvent(2, 3, 10, 30))
	require.Equal(t, StatusCompleted, s.Slots[0].Status)
	require.Equal(t, StatusFailed, s.Slots[1].Status)
	require.Equal(t, strings.Join([]string{
		Badge(1, StatusCompleted),
		Badge(2, StatusFailed),
		Badge(3, StatusTerminated),
	}, " "), s.StatusMessage)
}

func TestApplyGrowsSlotsWhenJobsIncrease(t *testing.T) {
	t.Parallel()

	evt := insertEvent(5, 2, 10, 30)
	evt.Jobs = 5
	s := applyAll(t, NewState(DefaultJobs), insertEvent(1, 1, 10, 30), evt)
	require.Len(t, s.Slots, 5)
	require.Equal(t, int64(2), s.Slots[4].UnitsExecuted)
	require.Equal(t, StatusPending, s.Slots[3].Status)
}

func TestApplyRejectsJobIDBeyondSlots(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(3), insertEvent(1, 1, 10, 30))
	before := s.View()

	for _, jobID := range []int{4, 5_000_000, 1<<31 - 1} {
		next, outcome := Apply(s, insertEvent(jobID, 1, 10, 30))
		require.Equal(t, OutcomeRejected, outcome, "job %d", jobID)
		require.Len(t, next.Slots, 3)
		require.Equal(t, before, next.View())
	}
}

func TestApplyCapsDeclaredJobs(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), notification.Event{
		OperationType: notification.OperationInitialize,
		ProcessID:     "p1",
		Jobs:          1 << 30,
	})
	require.Len(t, s.Slots, MaxJobs)

	evt := insertEvent(MaxJobs+1, 1, 10, 30)
	evt.Jobs = 1 << 30
	next, outcome := Apply(s, evt)
	require.Equal(t, OutcomeRejected, outcome)
	require.Len(t, next.Slots, MaxJobs)

	evt.JobID = MaxJobs
	next, outcome = Apply(s, evt)
	require.Equal(t, OutcomeApplied, outcome)
	require.Len(t, next.Slots, MaxJobs)
}

func TestApplyRejectsNonPositiveJobID(t *testing.T) {
	t.Parallel()

	s := NewState(DefaultJobs)
	next, outcome := Apply(s, insertEvent(0, 5, 10, 30))
	require.Equal(t, OutcomeRejected, outcome)
	require.Equal(t, s.View(), next.View())
	require.Empty(t, next.ProcessID)
	require.True(t, next.AwaitingFirst)
	require.Zero(t, next.UnitsExecuted)
}

func TestApplyPrependsLogMessages(t *testing.T) {
	t.Parallel()

	first := insertEvent(1, 1, 10, 30)
	first.Message = "one<br/>"
	second := insertEvent(2, 1, 10, 30)
	second.Message = "two<br/>"
	s := applyAll(t, NewState(DefaultJobs), first, second)
	require.Equal(t, "two<br/>one<br/>", s.LogMessage)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	s := applyAll(t, NewState(DefaultJobs), insertEvent(1, 1, 10, 30))
	snapshot := s.clone()

	evt := insertEvent(1, 9, 10, 30)
	evt.JobIsCompleted = true
	_, _ = Apply(s, evt)
	assert.Equal(t, snapshot, s)
}

func TestBadgeFormat(t *testing.T) {
	t.Parallel()

	require.Equal(t, `<span style="font-size:1.2em;color:green">&#9646;</span>&nbsp;1`, Badge(1, StatusCompleted))
	require.Equal(t, `<span style="font-size:1.2em;color:darkorange">&#9646;</span>&nbsp;12`, Badge(12, StatusTerminated))
	require.Equal(t, Badge(3, StatusPending), Badge(3, JobStatus("bogus")))
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, StatusPending.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusTerminated.Terminal())
}
