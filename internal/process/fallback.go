package process

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/models"
	"newsbrief/aggregator/internal/storage"
	"newsbrief/aggregator/internal/summarizer"
)

// ErrArticleNotFound is returned when a direct summary is requested for an article
// that does not exist or has no content.
var ErrArticleNotFound = errors.New("article not found or has no content")

// DefaultBatchSize is how many articles one fallback sweep handles.
const DefaultBatchSize = 5

// ArticleReader is the article access the fallback sweep needs.
type ArticleReader interface {
	GetByID(ctx context.Context, id int64) (*models.Article, error)
	ListUnsummarized(ctx context.Context, limit int) ([]models.Article, error)
	MarkSummarized(ctx context.Context, id int64) (*models.Article, error)
}

// SummaryStore is the summary access the fallback sweep needs.
type SummaryStore interface {
	ExistsForArticle(ctx context.Context, articleID int64) (bool, error)
	GetByArticle(ctx context.Context, articleID int64) (*models.Summary, error)
	Create(ctx context.Context, s *models.Summary) (bool, error)
}

// Summarizer produces a summary for article content.
type Summarizer interface {
	Summarize(ctx context.Context, text string, opts summarizer.Options) (summarizer.Result, error)
}

// Report describes one fallback sweep.
type Report struct {
	Scanned    int `json:"scanned"`
	Summarized int `json:"summarized"`
	Repaired   int `json:"repaired"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// FallbackProcessor summarizes articles the queue never finished, synchronously.
type FallbackProcessor struct {
	articles  ArticleReader
	summaries SummaryStore
	gateway   Summarizer
	batchSize int
	logger    zerolog.Logger
}

// fallbackOptions are the options every recovered summary is generated with.
var fallbackOptions = summarizer.Options{
	Length:   summarizer.LengthMedium,
	Style:    summarizer.StyleFormal,
	Language: summarizer.DefaultLanguage,
}

// NewFallbackProcessor creates a processor handling batchSize articles per sweep.
func NewFallbackProcessor(articles ArticleReader, summaries SummaryStore, gateway Summarizer, batchSize int, logger zerolog.Logger) *FallbackProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &FallbackProcessor{
		articles:  articles,
		summaries: summaries,
		gateway:   gateway,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "fallback").Logger(),
	}
}

// ProcessUnsummarizedArticles runs one sweep and never fails; errors are logged.
func (p *FallbackProcessor) ProcessUnsummarizedArticles(ctx context.Context) Report {
	report, err := p.Run(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Fallback sweep failed")
	}
	return report
}

// Run executes one sweep. Only a failure to load the batch is returned;
// per-article failures are logged and counted.
func (p *FallbackProcessor) Run(ctx context.Context) (Report, error) {
	var report Report

	articles, err := p.articles.ListUnsummarized(ctx, p.batchSize)
	if err != nil {
		return report, fmt.Errorf("failed to load unsummarized articles: %w", err)
	}
	if len(articles) == 0 {
		p.logger.Debug().Msg("No unsummarized articles")
		return report, nil
	}

	p.logger.Info().Int("articles", len(articles)).Msg("Processing unsummarized articles")
	for i := range articles {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++
		a := &articles[i]
		log := p.logger.With().Int64("article_id", a.ID).Logger()

		exists, err := p.summaries.ExistsForArticle(ctx, a.ID)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Msg("Failed to check existing summary")
			continue
		}
		if exists {
			if _, err := p.articles.MarkSummarized(ctx, a.ID); err != nil {
				report.Failed++
				log.Error().Err(err).Msg("Failed to mark article summarized")
				continue
			}
			report.Repaired++
			log.Info().Msg("Summary already existed, marked article summarized")
			continue
		}

		if strings.TrimSpace(a.OriginalContent) == "" {
			report.Skipped++
			log.Warn().Msg("Article has no content, skipping")
			continue
		}

		if _, err := p.summarize(ctx, a); err != nil {
			report.Failed++
			log.Error().Err(err).Msg("Failed to summarize article")
			continue
		}
		report.Summarized++
		log.Info().Msg("Article summarized by fallback")
	}

	p.logger.Info().
		Int("summarized", report.Summarized).
		Int("repaired", report.Repaired).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Fallback sweep completed")
	return report, nil
}

// SummarizeArticle returns the article's summary, generating it first when missing.
func (p *FallbackProcessor) SummarizeArticle(ctx context.Context, articleID int64) (*models.Summary, error) {
	a, err := p.articles.GetByID(ctx, articleID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("article %d: %w", articleID, ErrArticleNotFound)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.OriginalContent) == "" {
		return nil, fmt.Errorf("article %d: %w", articleID, ErrArticleNotFound)
	}

	existing, err := p.summaries.GetByArticle(ctx, articleID)
	if err == nil {
		if !a.IsSummarized {
			if _, err := p.articles.MarkSummarized(ctx, articleID); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	return p.summarize(ctx, a)
}

func (p *FallbackProcessor) summarize(ctx context.Context, a *models.Article) (*models.Summary, error) {
	res, err := p.gateway.Summarize(ctx, a.OriginalContent, fallbackOptions)
	if err != nil {
		return nil, fmt.Errorf("summarize article %d: %w", a.ID, err)
	}

	summary := models.NewSummary(a.ID, res.Summary, res.Keywords)
	created, err := p.summaries.Create(ctx, summary)
	if err != nil {
		return nil, err
	}
	if !created {
		// a concurrent writer stored one first
		return p.summaries.GetByArticle(ctx, a.ID)
	}
	return summary, nil
}
