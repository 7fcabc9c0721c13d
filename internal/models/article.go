package models

import (
	"database/sql"
	"time"
)

// Article represents a row in the 'articles' table.
// URL is the canonical deduplication key.
type Article struct {
	ID              int64          `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	URL             string         `db:"url" json:"url"`
	SourceID        sql.NullInt64  `db:"source_id" json:"-"`
	Categories      StringList     `db:"categories" json:"categories"`
	ImageURL        sql.NullString `db:"image_url" json:"-"`
	Description     string         `db:"description" json:"description"`
	OriginalContent string         `db:"original_content" json:"originalContent,omitempty"`
	PublishedAt     time.Time      `db:"published_at" json:"publishedAt"`
	IsSummarized    bool           `db:"is_summarized" json:"isSummarized"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// NewArticle creates a new unsummarized Article with default values
func NewArticle() *Article {
	now := time.Now().UTC()
	return &Article{
		Categories:  StringList{},
		PublishedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
