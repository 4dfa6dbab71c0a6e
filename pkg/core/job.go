package core

import "time"

// JobStatus represents the current state of a queue job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Priority orders jobs in the queue. Higher runs first; FIFO within a tier.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Job wraps one PublishRequest with explicit queue lifecycle state.
//
// Invariants: StartedAt is set iff status is processing, completed or
// failed; CompletedAt is set iff status is completed or failed.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Request     *PublishRequest `json:"request"`
	Priority    Priority        `json:"priority"`
	Status      JobStatus       `json:"status"`
	QueuedAt    time.Time       `json:"queued_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Duration returns the processing time, or 0 while the job is not finished.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// ProcessingFor returns how long the job has been processing as of now.
func (j *Job) ProcessingFor(now time.Time) time.Duration {
	if j.Status != JobStatusProcessing || j.StartedAt == nil {
		return 0
	}
	return now.Sub(*j.StartedAt)
}
