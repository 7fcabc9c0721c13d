package models

import "time"

// Summary represents a row in the 'summaries' table. There is at most one per article.
type Summary struct {
	ID        int64      `db:"id" json:"id"`
	ArticleID int64      `db:"article_id" json:"articleId"`
	Text      string     `db:"text" json:"text"`
	Keywords  StringList `db:"keywords" json:"keywords"`
	ReadCount int64      `db:"read_count" json:"readCount"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// MaxKeywords is the upper bound of keywords stored with a summary.
const MaxKeywords = 10

// NewSummary creates a Summary for the article, capping keywords to MaxKeywords.
func NewSummary(articleID int64, text string, keywords []string) *Summary {
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}
	now := time.Now().UTC()
	return &Summary{
		ArticleID: articleID,
		Text:      text,
		Keywords:  StringList(append([]string(nil), keywords...)),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
