package models

import (
	"database/sql"
	"time"
)

// Source represents a row in the 'sources' table
type Source struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	WebsiteURL  string         `db:"website_url" json:"websiteUrl"`
	FeedURL     string         `db:"feed_url" json:"feedUrl"`
	IsActive    bool           `db:"is_active" json:"isActive"`
	IsDefault   bool           `db:"is_default" json:"isDefault"`
	OwnerUserID sql.NullString `db:"owner_user_id" json:"-"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// NewSource creates a new active Source with default values
func NewSource() *Source {
	now := time.Now().UTC()
	return &Source{
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Owner returns the owning user id or an empty string for shared sources.
func (s *Source) Owner() string {
	if s.OwnerUserID.Valid {
		return s.OwnerUserID.String
	}
	return ""
}
