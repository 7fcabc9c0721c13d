// Package queue is a SQLite-backed job queue for article summarization.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/models"
)

// JobName is the only job type the queue carries.
const JobName = "summarize-article"

// JobOptions control retries and how much history is kept.
type JobOptions struct {
	Attempts      int
	Backoff       time.Duration
	KeepCompleted int
	KeepFailed    int
	// StaleAfter is how long a job may stay active before a starting worker
	// assumes its owner died and requeues it.
	StaleAfter time.Duration
}

// DefaultJobOptions retry three times starting at 2s and keep the last 10 completed and 5 failed jobs.
var DefaultJobOptions = JobOptions{
	Attempts:      3,
	Backoff:       2 * time.Second,
	KeepCompleted: 10,
	KeepFailed:    5,
	StaleAfter:    15 * time.Minute,
}

// Payload is the data a summarize job carries.
type Payload struct {
	ArticleID int64  `json:"articleId"`
	Content   string `json:"content"`
}

// Stats counts jobs per status. When the backend cannot be read Status is
// "disconnected", the counts are zero and Error holds the reason.
type Stats struct {
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Queue stores jobs in the 'jobs' table.
type Queue struct {
	db     *database.DB
	opts   JobOptions
	logger zerolog.Logger
	notify chan struct{}
	now    func() time.Time
}

// New creates a queue. Zero options fall back to DefaultJobOptions.
func New(db *database.DB, opts JobOptions, logger zerolog.Logger) *Queue {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultJobOptions.Attempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultJobOptions.Backoff
	}
	if opts.KeepCompleted <= 0 {
		opts.KeepCompleted = DefaultJobOptions.KeepCompleted
	}
	if opts.KeepFailed <= 0 {
		opts.KeepFailed = DefaultJobOptions.KeepFailed
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultJobOptions.StaleAfter
	}
	return &Queue{
		db:     db,
		opts:   opts,
		logger: logger.With().Str("component", "queue").Logger(),
		notify: make(chan struct{}, 1),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue adds a summarize job for the article and returns its id.
func (q *Queue) Enqueue(ctx context.Context, articleID int64, content string) (string, error) {
	payload, err := json.Marshal(Payload{ArticleID: articleID, Content: content})
	if err != nil {
		return "", fmt.Errorf("failed to encode job payload: %w", err)
	}

	now := q.now()
	job := models.Job{
		ID:          uuid.NewString(),
		Name:        JobName,
		ArticleID:   articleID,
		Payload:     string(payload),
		Status:      models.JobStatusWaiting,
		MaxAttempts: q.opts.Attempts,
		BackoffMS:   q.opts.Backoff.Milliseconds(),
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = q.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, name, article_id, payload, status, attempts, max_attempts, backoff_ms, run_at, created_at, updated_at)
		VALUES (:id, :name, :article_id, :payload, :status, :attempts, :max_attempts, :backoff_ms, :run_at, :created_at, :updated_at)`,
		&job)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job for article %d: %w", articleID, err)
	}

	q.logger.Debug().
		Str("job_id", job.ID).
		Int64("article_id", articleID).
		Msg("Job enqueued")

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return job.ID, nil
}

// Stats counts jobs per status. It never returns an error.
func (q *Queue) Stats(ctx context.Context) Stats {
	var rows []struct {
		Status models.JobStatus `db:"status"`
		Count  int64            `db:"count"`
	}
	if err := q.db.SelectContext(ctx, &rows, `SELECT status, COUNT(1) AS count FROM jobs GROUP BY status`); err != nil {
		q.logger.Error().Err(err).Msg("Failed to read queue stats")
		return Stats{Status: "disconnected", Error: err.Error()}
	}

	st := Stats{Status: "connected"}
	for _, r := range rows {
		switch r.Status {
		case models.JobStatusWaiting:
			st.Waiting = r.Count
		case models.JobStatusActive:
			st.Active = r.Count
		case models.JobStatusCompleted:
			st.Completed = r.Count
		case models.JobStatusFailed:
			st.Failed = r.Count
		}
	}
	return st
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := q.db.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// RequeueStale returns jobs that have been active longer than StaleAfter to the
// waiting state. Jobs another live worker is still running are left alone.
func (q *Queue) RequeueStale(ctx context.Context) (int64, error) {
	now := q.now()
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ? AND updated_at <= ?`,
		models.JobStatusWaiting, now, models.JobStatusActive, now.Add(-q.opts.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		q.logger.Warn().Int64("jobs", n).Msg("Requeued stale active jobs")
	}
	return n, nil
}

// claim marks the oldest due job active. It returns nil when nothing is due.
func (q *Queue) claim(ctx context.Context) (*models.Job, error) {
	for {
		now := q.now()
		var job models.Job
		err := q.db.GetContext(ctx, &job, `
			SELECT * FROM jobs
			WHERE status = ? AND run_at <= ?
			ORDER BY run_at, created_at
			LIMIT 1`, models.JobStatusWaiting, now)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select next job: %w", err)
		}

		res, err := q.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND status = ?`,
			models.JobStatusActive, now, job.ID, models.JobStatusWaiting)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// another worker took it
			continue
		}

		job.Status = models.JobStatusActive
		job.Attempts++
		job.UpdatedAt = now
		return &job, nil
	}
}

func (q *Queue) complete(ctx context.Context, job *models.Job) error {
	now := q.now()
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = NULL, updated_at = ?, finished_at = ?
		WHERE id = ?`,
		models.JobStatusCompleted, now, now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	job.Status = models.JobStatusCompleted
	return q.trim(ctx, models.JobStatusCompleted, q.opts.KeepCompleted)
}

// fail schedules another attempt with exponential backoff, or marks the job failed
// when attempts are exhausted or the error is permanent.
func (q *Queue) fail(ctx context.Context, job *models.Job, cause error) error {
	now := q.now()
	msg := sql.NullString{String: cause.Error(), Valid: true}

	if job.CanRetry() && !IsPermanent(cause) {
		delay := time.Duration(job.BackoffMS) * time.Millisecond * time.Duration(1<<(job.Attempts-1))
		_, err := q.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, last_error = ?, run_at = ?, updated_at = ?
			WHERE id = ?`,
			models.JobStatusWaiting, msg, now.Add(delay), now, job.ID)
		if err != nil {
			return fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
		}
		job.Status = models.JobStatusWaiting
		q.logger.Warn().
			Err(cause).
			Str("job_id", job.ID).
			Int("attempt", job.Attempts).
			Dur("retry_in", delay).
			Msg("Job failed, retrying")
		return nil
	}

	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, updated_at = ?, finished_at = ?
		WHERE id = ?`,
		models.JobStatusFailed, msg, now, now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}
	job.Status = models.JobStatusFailed
	q.logger.Error().
		Err(cause).
		Str("job_id", job.ID).
		Int64("article_id", job.ArticleID).
		Int("attempts", job.Attempts).
		Msg("Job failed permanently")
	return q.trim(ctx, models.JobStatusFailed, q.opts.KeepFailed)
}

// trim keeps only the most recent finished jobs of the status.
func (q *Queue) trim(ctx context.Context, status models.JobStatus, keep int) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status = ? AND id NOT IN (
			SELECT id FROM jobs WHERE status = ? ORDER BY finished_at DESC, updated_at DESC LIMIT ?
		)`, status, status, keep)
	if err != nil {
		return fmt.Errorf("failed to trim %s jobs: %w", status, err)
	}
	return nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the job fails without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
