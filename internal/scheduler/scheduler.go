// Package scheduler drives the periodic ingestion and fallback summarization passes.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/process"
)

const (
	DefaultFetchInterval    = 30 * time.Minute
	DefaultFallbackInterval = 10 * time.Minute

	// passTimeout bounds a single scheduled pass.
	passTimeout = 30 * time.Minute
)

// Fetcher runs one ingestion pass.
type Fetcher interface {
	FetchAll(ctx context.Context) (process.FetchResult, error)
}

// Fallback runs one fallback summarization sweep.
type Fallback interface {
	Run(ctx context.Context) (process.Report, error)
}

// Config sets the loop intervals. A zero interval disables that loop.
type Config struct {
	FetchInterval    time.Duration
	FallbackInterval time.Duration
	// FetchOnStart runs an ingestion pass as soon as Start is called.
	FetchOnStart bool
}

// DefaultConfig returns the 30 minute fetch and 10 minute fallback cadence.
func DefaultConfig() Config {
	return Config{FetchInterval: DefaultFetchInterval, FallbackInterval: DefaultFallbackInterval}
}

// Scheduler runs the fetch and fallback loops. Passes of the same kind never overlap.
type Scheduler struct {
	cfg      Config
	fetcher  Fetcher
	fallback Fallback
	logger   zerolog.Logger

	fetchMu    sync.Mutex
	fallbackMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config, fetcher Fetcher, fallback Fallback, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		fallback: fallback,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the loops. It returns immediately; calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.FetchInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.cfg.FetchOnStart {
				s.scheduledFetch(ctx)
			}
			s.every(ctx, s.cfg.FetchInterval, s.scheduledFetch)
		}()
	}
	if s.cfg.FallbackInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.every(ctx, s.cfg.FallbackInterval, s.scheduledFallback)
		}()
	}

	s.logger.Info().
		Dur("fetch_interval", s.cfg.FetchInterval).
		Dur("fallback_interval", s.cfg.FallbackInterval).
		Msg("Scheduler started")
}

// Stop cancels the loops and waits for running passes to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// TriggerFetch runs an ingestion pass now, waiting for a running one to finish first.
func (s *Scheduler) TriggerFetch(ctx context.Context) (process.FetchResult, error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	s.logger.Info().Msg("Manual RSS fetch triggered")
	return s.fetcher.FetchAll(ctx)
}

// TriggerFallback runs a fallback sweep now, waiting for a running one to finish first.
func (s *Scheduler) TriggerFallback(ctx context.Context) (process.Report, error) {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()
	s.logger.Info().Msg("Manual fallback summarization triggered")
	return s.fallback.Run(ctx)
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			job(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) scheduledFetch(ctx context.Context) {
	if !s.fetchMu.TryLock() {
		s.logger.Warn().Msg("Previous RSS fetch still running, skipping")
		return
	}
	defer s.fetchMu.Unlock()

	passCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.fetcher.FetchAll(passCtx)
	switch {
	case err != nil && process.IsCanceled(err) && ctx.Err() != nil:
		s.logger.Info().Msg("RSS fetch canceled by shutdown")
	case err != nil:
		s.logger.Error().Err(err).Msg("Scheduled RSS fetch failed")
	default:
		s.logger.Info().
			Int("articles", res.ArticlesProcessed).
			Int("errors", len(res.Errors)).
			Dur("duration", time.Since(start)).
			Msg("Scheduled RSS fetch completed")
	}
}

func (s *Scheduler) scheduledFallback(ctx context.Context) {
	if !s.fallbackMu.TryLock() {
		s.logger.Warn().Msg("Previous fallback sweep still running, skipping")
		return
	}
	defer s.fallbackMu.Unlock()

	passCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	report, err := s.fallback.Run(passCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("Scheduled fallback sweep failed")
		return
	}
	s.logger.Debug().Int("summarized", report.Summarized).Msg("Scheduled fallback sweep completed")
}
