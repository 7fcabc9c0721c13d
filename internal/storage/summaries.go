package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/models"
)

const summaryColumns = `id, article_id, text, keywords, read_count, created_at, updated_at`

// SummaryStore persists at most one summary per article.
type SummaryStore struct {
	db *database.DB
}

// NewSummaryStore creates a new store instance.
func NewSummaryStore(db *database.DB) *SummaryStore {
	return &SummaryStore{db: db}
}

// Create stores the summary and marks its article summarized in one transaction.
// When the article already has a summary nothing is inserted, the flag is still
// set, and created is false.
func (s *SummaryStore) Create(ctx context.Context, summary *models.Summary) (created bool, err error) {
	if len(summary.Keywords) > models.MaxKeywords {
		summary.Keywords = summary.Keywords[:models.MaxKeywords]
	}
	if summary.Keywords == nil {
		summary.Keywords = models.StringList{}
	}
	now := time.Now().UTC()
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = now
	}
	summary.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO summaries (article_id, text, keywords, read_count, created_at, updated_at)
		VALUES (:article_id, :text, :keywords, :read_count, :created_at, :updated_at)
		ON CONFLICT(article_id) DO NOTHING`, summary)
	if err != nil {
		return false, fmt.Errorf("failed to insert summary for article %d: %w", summary.ArticleID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("failed to read summary id: %w", err)
		}
		summary.ID = id
		created = true
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE articles SET is_summarized = 1, updated_at = ? WHERE id = ? AND is_summarized = 0`,
		now, summary.ArticleID); err != nil {
		return false, fmt.Errorf("failed to mark article %d summarized: %w", summary.ArticleID, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit summary for article %d: %w", summary.ArticleID, err)
	}
	return created, nil
}

// ExistsForArticle reports whether the article already has a summary.
func (s *SummaryStore) ExistsForArticle(ctx context.Context, articleID int64) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM summaries WHERE article_id = ?`, articleID); err != nil {
		return false, fmt.Errorf("failed to check summary for article %d: %w", articleID, err)
	}
	return n > 0, nil
}

// GetByArticle returns the article's summary or ErrNotFound.
func (s *SummaryStore) GetByArticle(ctx context.Context, articleID int64) (*models.Summary, error) {
	return s.get(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE article_id = ?`, articleID)
}

// GetByID returns the summary or ErrNotFound.
func (s *SummaryStore) GetByID(ctx context.Context, id int64) (*models.Summary, error) {
	return s.get(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE id = ?`, id)
}

// Read returns the summary and counts the read.
func (s *SummaryStore) Read(ctx context.Context, id int64) (*models.Summary, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE summaries SET read_count = read_count + 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to increment read count for summary %d: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *SummaryStore) get(ctx context.Context, query string, arg any) (*models.Summary, error) {
	var summary models.Summary
	if err := s.db.GetContext(ctx, &summary, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &summary, nil
}

// Stats aggregates summary counters.
type Stats struct {
	TotalSummaries    int64 `db:"total_summaries" json:"totalSummaries"`
	TotalSources      int64 `db:"total_sources" json:"totalSources"`
	TodaySummaries    int64 `db:"today_summaries" json:"todaySummaries"`
	LastWeekSummaries int64 `db:"last_week_summaries" json:"lastWeekSummaries"`
	TotalReads        int64 `db:"total_reads" json:"totalReads"`
}

// Stats returns the counters relative to now.
func (s *SummaryStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	var st Stats
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(1) FROM summaries) AS total_summaries,
			(SELECT COUNT(1) FROM sources) AS total_sources,
			(SELECT COUNT(1) FROM summaries WHERE created_at >= ?) AS today_summaries,
			(SELECT COUNT(1) FROM summaries WHERE created_at >= ?) AS last_week_summaries,
			(SELECT COALESCE(SUM(read_count), 0) FROM summaries) AS total_reads`,
		today, weekAgo)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute summary stats: %w", err)
	}
	return st, nil
}
