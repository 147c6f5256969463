package dashboard

import (
	"github.com/JakeFAU/batchwatch/internal/notification"
)

const (
	// DefaultJobs is the slot count used before any notification declares one.
	DefaultJobs = 50
	// MaxJobs bounds the slot list regardless of what notifications declare.
	MaxJobs = 1000
)

// JobStatus is the display status of a job slot.
type JobStatus string

// Supported job statuses.
const (
	StatusPending    JobStatus = "pending"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusTerminated JobStatus = "terminated"
)

// Terminal reports whether the status is final for the job.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// Outcome tells the caller what Apply did with a notification.
type Outcome string

// Possible outcomes of Apply.
const (
	// OutcomeApplied means job and process counters were updated.
	OutcomeApplied Outcome = "applied"
	// OutcomeReset means an initialize signal bound a new process.
	OutcomeReset Outcome = "reset"
	// OutcomeUserMessage means only the user message log changed.
	OutcomeUserMessage Outcome = "user_message"
	// OutcomeDiscarded means the notification belongs to another process.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeRejected means the notification named no valid job slot.
	OutcomeRejected Outcome = "rejected"
)

// Slot is one job lane.
type Slot struct {
	UnitsExecuted int64
	TotalUnits    int64
	Status        JobStatus
}

// State is the complete dashboard state for the tracked process.
type State struct {
	ProcessID     string
	OperationType notification.OperationType
	IsInsert      bool
	// Jobs is the most recently declared job count.
	Jobs int

	Completed  bool
	Failed     bool
	Terminated bool

	Slots          []Slot
	UnitsExecuted  int64
	UnitsToExecute int64
	// AwaitingFirst is set by Reset and cleared by the first accepted data
	// notification of the process.
	AwaitingFirst bool

	Progress       float64
	ProgressFooter string
	StatusMessage  string
	LogMessage     string
	UserMessage    string
}

// NewState returns a reset State with the given number of pending slots.
func NewState(jobs int) State {
	return Reset(State{Jobs: jobs}, "")
}

// Reset clears messages, counters and progress, and rebuilds s.Jobs pending
// slots for the process identified by processID.
func Reset(s State, processID string) State {
	jobs := min(max(s.Jobs, 0), MaxJobs)
	slots := make([]Slot, jobs)
	for i := range slots {
		slots[i] = Slot{Status: StatusPending}
	}
	return State{
		ProcessID:      processID,
		Jobs:           s.Jobs,
		Slots:          slots,
		AwaitingFirst:  true,
		ProgressFooter: WaitingFooter,
	}
}

// Apply folds one notification into s and returns the new State. The input
// State is never modified.
func Apply(s State, evt notification.Event) (State, Outcome) {
	next := s.clone()
	next.Completed = evt.JobIsCompleted
	next.Failed = evt.JobHasFailed
	next.Terminated = evt.JobIsTerminated
	next.Jobs = evt.Jobs

	switch evt.OperationType {
	case notification.OperationInitialize:
		return Reset(next, evt.ProcessID), OutcomeReset
	case notification.OperationUserMessage:
		next.UserMessage = evt.Message + next.UserMessage
		return next, OutcomeUserMessage
	}

	if evt.JobID < 1 || evt.JobID > next.slotLimit(evt.Jobs) {
		return next, OutcomeRejected
	}
	if evt.ProcessID != "" {
		switch next.ProcessID {
		case "":
			next.ProcessID = evt.ProcessID
		case evt.ProcessID:
		default:
			return next, OutcomeDiscarded
		}
	}

	if next.AwaitingFirst {
		if evt.Jobs > 0 {
			next.resizeSlots(min(evt.Jobs, MaxJobs))
		}
		next.StatusMessage = formatStatusMessage(next.Slots)
		next.AwaitingFirst = false
	}

	next.OperationType = evt.OperationType
	next.IsInsert = evt.OperationType == notification.OperationInsert

	idx := evt.JobID - 1
	next.growSlots(idx + 1)
	next.Slots[idx].UnitsExecuted = evt.JobUnitsExecuted
	next.Slots[idx].TotalUnits = evt.TotalJobUnits
	next.UnitsToExecute = evt.ProcessUnitsToExecute
	next.UnitsExecuted = sumExecuted(next.Slots)

	next.updateJobStatus(idx)
	next.LogMessage = evt.Message + next.LogMessage
	next.updateProgress()
	return next, OutcomeApplied
}

func (s State) clone() State {
	out := s
	out.Slots = append([]Slot(nil), s.Slots...)
	return out
}

// slotLimit is the highest job id a notification declaring jobs may write.
// The first notification of a process sizes the slot list to its own count;
// later ones may grow it but never shrink it.
func (s State) slotLimit(jobs int) int {
	limit := max(len(s.Slots), jobs)
	if s.AwaitingFirst && jobs > 0 {
		limit = jobs
	}
	return min(limit, MaxJobs)
}

// resizeSlots truncates or pads the slot list to exactly jobs slots.
func (s *State) resizeSlots(jobs int) {
	if len(s.Slots) > jobs {
		s.Slots = s.Slots[:jobs]
		return
	}
	s.growSlots(jobs)
}

func (s *State) growSlots(n int) {
	for len(s.Slots) < n {
		s.Slots = append(s.Slots, Slot{Status: StatusPending})
	}
}

func (s *State) updateJobStatus(idx int) {
	switch {
	case s.Completed:
		s.Slots[idx].Status = StatusCompleted
	case s.Failed:
		s.Slots[idx].Status = StatusFailed
	case s.Terminated:
		s.Slots[idx].Status = StatusTerminated
	}
	s.StatusMessage = formatStatusMessage(s.Slots)
}

// updateProgress leaves progress and footer untouched once progress has
// gone past 100.
func (s *State) updateProgress() {
	if s.Progress > 100 {
		return
	}
	switch s.OperationType {
	case notification.OperationInsert:
		if s.UnitsToExecute > 0 {
			s.Progress = float64(s.UnitsExecuted) / float64(s.UnitsToExecute) * 100
		}
		s.ProgressFooter = formatInsertFooter(s.UnitsExecuted, s.UnitsToExecute)
	case notification.OperationDelete:
		s.ProgressFooter = formatRecordsFooter("Deleted", s.UnitsExecuted)
	case notification.OperationUpdate:
		s.ProgressFooter = formatRecordsFooter("Updated", s.UnitsExecuted)
	}
}

func sumExecuted(slots []Slot) int64 {
	var total int64
	for _, slot := range slots {
		total += slot.UnitsExecuted
	}
	return total
}
