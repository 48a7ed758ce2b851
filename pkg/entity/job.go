package entity

import (
	"encoding/json"
	"time"
)

// JobState is the queue-side state of a job.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is a queued operation.
type Job struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	State         JobState        `json:"state"`
	Payload       json.RawMessage `json:"payload"`
	Result        json.RawMessage `json:"result,omitzero"`
	Error         string          `json:"error,omitzero"`
	ErrorCategory string          `json:"error_category,omitzero"`
	Attempts      int             `json:"attempts"`
	RunAt         time.Time       `json:"run_at"`
	StartedAt     *time.Time      `json:"started_at,omitzero"`
	FinishedAt    *time.Time      `json:"finished_at,omitzero"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
