package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/models"
	"newsbrief/aggregator/internal/summarizer"
)

const defaultPollInterval = 2 * time.Second

// Handler processes one job. A returned error triggers the retry policy.
type Handler func(ctx context.Context, p Payload) error

// WorkerConfig controls how jobs are consumed.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
}

// Worker consumes jobs from a Queue.
type Worker struct {
	queue        *Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	logger       zerolog.Logger
}

// NewWorker creates a worker; a single consumer unless Concurrency says otherwise.
func NewWorker(q *Queue, handler Handler, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Worker{
		queue:        q,
		handler:      handler,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		logger:       logger.With().Str("component", "worker").Logger(),
	}
}

// Run consumes jobs until ctx is cancelled. Stale jobs left active by a dead worker are requeued first.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.queue.RequeueStale(ctx); err != nil {
		return err
	}

	w.logger.Info().
		Int("concurrency", w.concurrency).
		Dur("poll_interval", w.pollInterval).
		Msg("Worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info().Msg("Worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		for {
			processed, err := w.ProcessNext(ctx)
			if err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("Failed to process job")
				break
			}
			if !processed || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.queue.notify:
		}
	}
}

// ProcessNext claims and runs one due job. It reports false when nothing was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.claim(ctx)
	if err != nil || job == nil {
		return false, err
	}

	log := w.logger.With().
		Str("job_id", job.ID).
		Int64("article_id", job.ArticleID).
		Int("attempt", job.Attempts).
		Logger()
	log.Debug().Msg("Processing job")

	runErr := w.run(ctx, job)

	// bookkeeping must land even when shutdown cancelled the handler
	bookCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := w.queue.fail(bookCtx, job, runErr); err != nil {
			return true, err
		}
		return true, nil
	}

	if err := w.queue.complete(bookCtx, job); err != nil {
		return true, err
	}
	log.Info().Msg("Job completed")
	return true, nil
}

func (w *Worker) run(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	var p Payload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return Permanent(fmt.Errorf("invalid job payload: %w", err))
	}
	if p.ArticleID == 0 {
		p.ArticleID = job.ArticleID
	}
	return w.handler(ctx, p)
}

// Summarizer is the part of the summarization gateway the handler needs.
type Summarizer interface {
	Summarize(ctx context.Context, text string, opts summarizer.Options) (summarizer.Result, error)
}

// SummaryWriter persists a summary and marks its article summarized.
type SummaryWriter interface {
	Create(ctx context.Context, s *models.Summary) (bool, error)
}

// SummarizeHandler summarizes the job content and stores the summary.
// Store errors are returned so the job is retried.
func SummarizeHandler(gw Summarizer, summaries SummaryWriter, logger zerolog.Logger) Handler {
	return func(ctx context.Context, p Payload) error {
		res, err := gw.Summarize(ctx, p.Content, summarizer.Options{})
		if err != nil {
			if errors.Is(err, summarizer.ErrEmptyText) {
				return Permanent(fmt.Errorf("article %d: %w", p.ArticleID, err))
			}
			return fmt.Errorf("summarize article %d: %w", p.ArticleID, err)
		}

		created, err := summaries.Create(ctx, models.NewSummary(p.ArticleID, res.Summary, res.Keywords))
		if err != nil {
			return fmt.Errorf("store summary for article %d: %w", p.ArticleID, err)
		}
		if !created {
			logger.Debug().Int64("article_id", p.ArticleID).Msg("Summary already existed")
		}
		return nil
	}
}
