package domain

import "time"

// RunSummary describes one finished verification run
type RunSummary struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    time.Time  `json:"finishedAt"`
	Outcome       RunOutcome `json:"outcome"`
	Properties    int        `json:"properties"`
	Completed     int        `json:"completed"`
	Uploaded      int        `json:"uploaded"`
	UploadsFailed int        `json:"uploadsFailed"`
	Message       string     `json:"message"`
}

// Duration returns how long the run took
func (r RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PersistResult is returned by the persistence collaborator for one verdict
type PersistResult struct {
	Success bool   `json:"success"`
	PageID  string `json:"pageId,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}
