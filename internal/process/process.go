package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/feeds"
	"newsbrief/aggregator/internal/models"
)

const (
	// NewSourceMaxItems caps how many items of a freshly added source are ingested.
	NewSourceMaxItems = 10
	// MinQueueContentLength is the content length, in runes, above which an article is queued for summarization.
	MinQueueContentLength = 100

	feedTimeout = 2 * time.Minute
)

// FeedFetcher downloads one feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]feeds.Candidate, error)
}

// SourceLister lists the sources to ingest.
type SourceLister interface {
	ListActive(ctx context.Context) ([]models.Source, error)
}

// ArticleWriter stores articles keyed by URL.
type ArticleWriter interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	InsertIfAbsent(ctx context.Context, a *models.Article) (bool, error)
}

// Enqueuer schedules an article for summarization.
type Enqueuer interface {
	Enqueue(ctx context.Context, articleID int64, content string) (string, error)
}

// FetchResult reports one ingestion pass.
type FetchResult struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	ArticlesProcessed int      `json:"articlesProcessed"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings,omitempty"`
}

// FeedProcessor ingests the configured sources in parallel.
type FeedProcessor struct {
	fetcher  FeedFetcher
	sources  SourceLister
	articles ArticleWriter
	queue    Enqueuer
	logger   zerolog.Logger

	WorkerCount int

	processed  atomic.Int64
	duplicates atomic.Int64
}

// NewFeedProcessor creates a processor. A non-positive workerCount means runtime.NumCPU().
func NewFeedProcessor(fetcher FeedFetcher, sources SourceLister, articles ArticleWriter, queue Enqueuer, workerCount int, logger zerolog.Logger) *FeedProcessor {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &FeedProcessor{
		fetcher:     fetcher,
		sources:     sources,
		articles:    articles,
		queue:       queue,
		WorkerCount: workerCount,
		logger:      logger.With().Str("component", "ingest").Logger(),
	}
}

// sourceOutcome is what one source contributed to a pass.
type sourceOutcome struct {
	source   models.Source
	inserted int
	warnings []string
	fetchErr error
	storeErr error
}

// FetchAll runs one ingestion pass over every active source. Feed failures are
// reported per source in the result; a store failure aborts the pass and is returned.
func (p *FeedProcessor) FetchAll(ctx context.Context) (FetchResult, error) {
	sources, err := p.sources.ListActive(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		p.logger.Warn().Msg("No RSS sources found")
		return FetchResult{Success: true, Message: "No RSS sources configured", Errors: []string{}}, nil
	}

	p.logger.Info().
		Int("sources", len(sources)).
		Int("workers", p.WorkerCount).
		Msg("Starting RSS fetch")

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sourceQueue := make(chan models.Source, len(sources))
	for _, src := range sources {
		sourceQueue <- src
	}
	close(sourceQueue)

	outcomes := make(chan sourceOutcome, len(sources))
	var wg sync.WaitGroup
	for i := 0; i < min(p.WorkerCount, len(sources)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range sourceQueue {
				if passCtx.Err() != nil {
					return
				}
				out := p.processSource(passCtx, src, 0)
				if out.storeErr != nil {
					// the database is gone for everyone, stop the pass
					cancel()
				}
				outcomes <- out
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	result := FetchResult{Success: true, Errors: []string{}}
	var storeErr error
	for out := range outcomes {
		result.ArticlesProcessed += out.inserted
		result.Warnings = append(result.Warnings, out.warnings...)
		if out.fetchErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("RSS fetch error for %s: %v", out.source.Name, out.fetchErr))
		}
		// workers stopped by cancel() report context.Canceled; keep the cause
		if out.storeErr != nil && (storeErr == nil || IsCanceled(storeErr) && !IsCanceled(out.storeErr)) {
			storeErr = out.storeErr
		}
	}
	if storeErr != nil {
		return result, fmt.Errorf("ingestion aborted: %w", storeErr)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Message = fmt.Sprintf("RSS fetch completed. Processed %d new articles from %d sources", result.ArticlesProcessed, len(sources))
	p.logger.Info().
		Int("articles", result.ArticlesProcessed).
		Int("errors", len(result.Errors)).
		Int64("duplicates_total", p.duplicates.Load()).
		Msg(result.Message)
	return result, nil
}

// ProcessNewSource ingests the first NewSourceMaxItems items of a newly added source.
func (p *FeedProcessor) ProcessNewSource(ctx context.Context, src models.Source) (int, error) {
	if src.FeedURL == "" {
		return 0, nil
	}
	p.logger.Info().Str("source", src.Name).Msg("Processing RSS for new source")

	out := p.processSource(ctx, src, NewSourceMaxItems)
	if out.fetchErr != nil {
		return 0, fmt.Errorf("RSS fetch error for %s: %w", src.Name, out.fetchErr)
	}
	if out.storeErr != nil {
		return out.inserted, out.storeErr
	}
	p.logger.Info().
		Str("source", src.Name).
		Int("articles", out.inserted).
		Msg("Processed new source")
	return out.inserted, nil
}

func (p *FeedProcessor) processSource(ctx context.Context, src models.Source, maxItems int) sourceOutcome {
	out := sourceOutcome{source: src}

	feedCtx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	log := p.logger.With().Int64("source_id", src.ID).Str("source", src.Name).Logger()
	log.Info().Str("url", src.FeedURL).Msg("Fetching RSS")

	items, err := p.fetcher.Fetch(feedCtx, src.FeedURL)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching RSS")
		out.fetchErr = err
		return out
	}
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	log.Info().Int("items", len(items)).Msg("Feed fetched")

	for _, item := range items {
		if item.Link == "" {
			log.Debug().Msg("Skipping item without URL")
			continue
		}

		exists, err := p.articles.ExistsByURL(ctx, item.Link)
		if err != nil {
			out.storeErr = err
			return out
		}
		if exists {
			p.duplicates.Add(1)
			continue
		}

		article := newArticle(src.ID, item)
		inserted, err := p.articles.InsertIfAbsent(ctx, article)
		if err != nil {
			out.storeErr = err
			return out
		}
		if !inserted {
			// lost a race with a concurrent writer
			p.duplicates.Add(1)
			log.Debug().Str("url", item.Link).Msg("Duplicate URL detected")
			continue
		}
		out.inserted++
		p.processed.Add(1)

		if utf8.RuneCountInString(article.OriginalContent) > MinQueueContentLength {
			if _, err := p.queue.Enqueue(ctx, article.ID, article.OriginalContent); err != nil {
				log.Error().Err(err).Int64("article_id", article.ID).Msg("Failed to queue article for summarization")
				out.warnings = append(out.warnings, fmt.Sprintf("Queue error for article %d: %v", article.ID, err))
			}
		}
	}
	return out
}

func newArticle(sourceID int64, item feeds.Candidate) *models.Article {
	a := models.NewArticle()
	a.Title = item.Title
	a.URL = item.Link
	a.SourceID = sql.NullInt64{Int64: sourceID, Valid: true}
	a.Categories = models.StringList(item.Categories)
	a.Description = item.Description
	a.OriginalContent = item.Content
	a.PublishedAt = item.PublishedAt
	if item.ImageURL != "" {
		a.ImageURL.String, a.ImageURL.Valid = item.ImageURL, true
	}
	return a
}

// Stats returns the articles inserted and the duplicates skipped since the processor was created.
func (p *FeedProcessor) Stats() (processed, duplicates int64) {
	return p.processed.Load(), p.duplicates.Load()
}

// IsCanceled reports whether err comes from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
