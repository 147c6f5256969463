package dashboard

// View is the rendering surface handed to templates and stream clients.
type View struct {
	ProcessID             string    `json:"processId"`
	OperationType         string    `json:"operationType"`
	IsInsert              bool      `json:"isInsert"`
	Progress              float64   `json:"progress"`
	ProgressFooterMessage string    `json:"progressFooterMessage"`
	JobStatuses           []string  `json:"jobStatuses"`
	StatusMessage         string    `json:"statusMessage"`
	LogMessage            string    `json:"logMessage"`
	UserMessage           string    `json:"userMessage"`
	UnitsExecuted         int64     `json:"unitsExecuted"`
	UnitsToExecute        int64     `json:"unitsToExecute"`
	Jobs                  []JobView `json:"jobs"`
}

// JobView is the structured form of one job badge.
type JobView struct {
	Number        int       `json:"number"`
	Status        JobStatus `json:"status"`
	UnitsExecuted int64     `json:"unitsExecuted"`
	TotalUnits    int64     `json:"totalUnits"`
}

// View derives the rendering surface from s.
func (s State) View() View {
	jobs := make([]JobView, len(s.Slots))
	for i, slot := range s.Slots {
		jobs[i] = JobView{
			Number:        i + 1,
			Status:        slot.Status,
			UnitsExecuted: slot.UnitsExecuted,
			TotalUnits:    slot.TotalUnits,
		}
	}
	return View{
		ProcessID:             s.ProcessID,
		OperationType:         string(s.OperationType),
		IsInsert:              s.IsInsert,
		Progress:              s.Progress,
		ProgressFooterMessage: s.ProgressFooter,
		JobStatuses:           formatBadges(s.Slots),
		StatusMessage:         s.StatusMessage,
		LogMessage:            s.LogMessage,
		UserMessage:           s.UserMessage,
		UnitsExecuted:         s.UnitsExecuted,
		UnitsToExecute:        s.UnitsToExecute,
		Jobs:                  jobs,
	}
}
