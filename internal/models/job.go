package models

import (
	"database/sql"
	"time"
)

// JobStatus is the lifecycle state of a queued job
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents a row in the 'jobs' table
type Job struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	ArticleID   int64          `db:"article_id"`
	Payload     string         `db:"payload"`
	Status      JobStatus      `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	BackoffMS   int64          `db:"backoff_ms"`
	RunAt       time.Time      `db:"run_at"`
	LastError   sql.NullString `db:"last_error"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	FinishedAt  sql.NullTime   `db:"finished_at"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// CanRetry reports whether another attempt is allowed after the current one.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}
