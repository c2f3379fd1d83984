package model

import (
	"time"

	"github.com/google/uuid"
)

// Run is the diagnostic record of one ingestion pass.
type Run struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ThreadsSeen  int       `json:"threads_seen"`
	MessagesSeen int       `json:"messages_seen"`
	RowsAdded    int       `json:"rows_added"`
	Error        string    `json:"error,omitempty"`
}

func NewRun(label string, startedAt time.Time) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Label:     label,
		StartedAt: startedAt,
	}
}

// Finish stamps the run as completed, recording err when the run aborted.
func (r *Run) Finish(finishedAt time.Time, err error) {
	r.FinishedAt = finishedAt
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *Run) Succeeded() bool {
	return !r.FinishedAt.IsZero() && r.Error == ""
}
