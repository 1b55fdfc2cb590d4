package models

import (
	"time"

	"github.com/google/uuid"
)

// IngestionRun is the audit record for one execution of one source adapter.
// It is created when the run starts, finalized exactly once when the run
// ends, and never mutated after it is written to the run log.
type IngestionRun struct {
	ID          uuid.UUID  `json:"id"`
	Source      string     `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Found   int `json:"found"`
	New     int `json:"new"`
	Updated int `json:"updated"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewIngestionRun opens a run record for the given source.
func NewIngestionRun(source string) *IngestionRun {
	return &IngestionRun{
		ID:        uuid.New(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
}

// Complete finalizes the run. A non-empty errorMessage marks it failed.
func (r *IngestionRun) Complete(errorMessage string) {
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.Success = errorMessage == ""
	r.ErrorMessage = errorMessage
}
