package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/models"
)

const articleColumns = `id, title, url, source_id, categories, image_url, description, original_content,
	published_at, is_summarized, created_at, updated_at`

// Cursor marks the last row of a page ordered by published_at DESC, id DESC.
type Cursor struct {
	PublishedAt time.Time
	ID          int64
}

// ArticleStore persists articles keyed by their canonical URL.
type ArticleStore struct {
	db *database.DB
}

// NewArticleStore creates a new store instance.
func NewArticleStore(db *database.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// ExistsByURL reports whether an article with the canonical URL is stored.
func (s *ArticleStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM articles WHERE url = ?`, url)
	if err != nil {
		return false, fmt.Errorf("failed to check article url: %w", err)
	}
	return n > 0, nil
}

// InsertIfAbsent stores the article unless its URL already exists.
// It returns false, without error, when another writer stored the URL first.
func (s *ArticleStore) InsertIfAbsent(ctx context.Context, a *models.Article) (bool, error) {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Categories == nil {
		a.Categories = models.StringList{}
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO articles (title, url, source_id, categories, image_url, description, original_content,
			published_at, is_summarized, created_at, updated_at)
		VALUES (:title, :url, :source_id, :categories, :image_url, :description, :original_content,
			:published_at, :is_summarized, :created_at, :updated_at)
		ON CONFLICT(url) DO NOTHING`, a)
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read article id: %w", err)
	}
	a.ID = id
	return true, nil
}

// GetByID returns the article or ErrNotFound.
func (s *ArticleStore) GetByID(ctx context.Context, id int64) (*models.Article, error) {
	var a models.Article
	err := s.db.GetContext(ctx, &a, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	return &a, nil
}

// ListUnsummarized returns up to limit articles that still need a summary.
// Articles without content are excluded since they can never be summarized.
// A non-positive limit returns every match.
func (s *ArticleStore) ListUnsummarized(ctx context.Context, limit int) ([]models.Article, error) {
	q := builder.Select(articleColumns).
		From("articles").
		Where(sq.Eq{"is_summarized": false}).
		Where(sq.NotEq{"original_content": ""}).
		OrderBy("published_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build unsummarized query: %w", err)
	}

	articles := []models.Article{}
	if err := s.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list unsummarized articles: %w", err)
	}
	return articles, nil
}

// MarkSummarized sets is_summarized on the article and returns it. Marking twice is
// a no-op; an unknown id returns nil without an error.
func (s *ArticleStore) MarkSummarized(ctx context.Context, id int64) (*models.Article, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET is_summarized = 1, updated_at = ? WHERE id = ? AND is_summarized = 0`,
		time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to mark article %d summarized: %w", id, err)
	}

	a, err := s.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// ListByInterests returns summarized articles whose categories contain one of the
// interests, or whose title or description mentions one, newest first.
func (s *ArticleStore) ListByInterests(ctx context.Context, interests []string, limit int, after *Cursor) ([]models.Article, error) {
	var clean []string
	for _, interest := range interests {
		if interest = strings.TrimSpace(interest); interest != "" {
			clean = append(clean, interest)
		}
	}
	if len(clean) == 0 {
		return []models.Article{}, nil
	}

	match := sq.Or{}
	for _, interest := range clean {
		pattern := "%" + escapeLike(strings.ToLower(interest)) + "%"
		match = append(match,
			sq.Expr(`EXISTS (SELECT 1 FROM json_each(articles.categories) WHERE lower(json_each.value) = lower(?))`, interest),
			sq.Expr(`lower(title) LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(`lower(description) LIKE ? ESCAPE '\'`, pattern),
		)
	}

	q := builder.Select(articleColumns).
		From("articles").
		Where(sq.Eq{"is_summarized": true}).
		Where(match).
		OrderBy("published_at DESC", "id DESC").
		Limit(uint64(limit))
	if after != nil {
		q = q.Where(sq.Or{
			sq.Lt{"published_at": after.PublishedAt.UTC()},
			sq.And{sq.Eq{"published_at": after.PublishedAt.UTC()}, sq.Lt{"id": after.ID}},
		})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build interests query: %w", err)
	}

	articles := []models.Article{}
	if err := s.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list articles by interests: %w", err)
	}
	return articles, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
