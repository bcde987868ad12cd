package domain

// TaskStatus represents the lifecycle state of a property task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskError      TaskStatus = "error"
)

// IsTerminal reports whether the status is final for the run
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskError
}

// SiteStatus is the outcome of a single site visit
type SiteStatus string

const (
	SiteAvailable SiteStatus = "available"
	SiteOccupied  SiteStatus = "occupied"
	SiteUnknown   SiteStatus = "unknown"
	SiteError     SiteStatus = "error"
)

// Inconclusive reports whether the outcome says nothing about availability
func (s SiteStatus) Inconclusive() bool {
	return s == SiteUnknown || s == SiteError
}

// FinalStatus is the aggregated verdict for a property
type FinalStatus string

const (
	FinalAvailable FinalStatus = "available"
	FinalOccupied  FinalStatus = "occupied"
	FinalUnknown   FinalStatus = "unknown"
	FinalNeedsCall FinalStatus = "needs_call"
)

// RunOutcome summarizes how a verification run ended
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunPartial   RunOutcome = "partial"
	RunStopped   RunOutcome = "stopped"
	RunFailed    RunOutcome = "failed"
)
