package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/models"
)

const sourceColumns = `id, name, website_url, feed_url, is_active, is_default, owner_user_id, created_at, updated_at`

// SourceStore persists feed sources.
type SourceStore struct {
	db *database.DB
}

// NewSourceStore creates a new store instance.
func NewSourceStore(db *database.DB) *SourceStore {
	return &SourceStore{db: db}
}

// ListActive returns the active sources that have a feed URL.
func (s *SourceStore) ListActive(ctx context.Context) ([]models.Source, error) {
	return s.list(ctx, builder.Select(sourceColumns).From("sources").
		Where(sq.Eq{"is_active": true}).
		Where(sq.NotEq{"feed_url": ""}).
		OrderBy("id"))
}

// ListAll returns every source.
func (s *SourceStore) ListAll(ctx context.Context) ([]models.Source, error) {
	return s.list(ctx, builder.Select(sourceColumns).From("sources").OrderBy("id"))
}

// ListForUser returns the default sources plus the ones the user added.
func (s *SourceStore) ListForUser(ctx context.Context, userID string) ([]models.Source, error) {
	return s.list(ctx, builder.Select(sourceColumns).From("sources").
		Where(visibleTo(userID)).
		OrderBy("is_default DESC", "name"))
}

// FindVisibleByName looks up a source with the name among the defaults and the user's own sources.
func (s *SourceStore) FindVisibleByName(ctx context.Context, userID, name string) (*models.Source, error) {
	return s.get(ctx, builder.Select(sourceColumns).From("sources").
		Where(sq.Eq{"name": name}).
		Where(visibleTo(userID)).
		Limit(1))
}

// GetByID returns the source or ErrNotFound.
func (s *SourceStore) GetByID(ctx context.Context, id int64) (*models.Source, error) {
	return s.get(ctx, builder.Select(sourceColumns).From("sources").Where(sq.Eq{"id": id}))
}

// GetOwned returns the user's custom source or ErrNotFound.
func (s *SourceStore) GetOwned(ctx context.Context, id int64, userID string) (*models.Source, error) {
	return s.get(ctx, builder.Select(sourceColumns).From("sources").
		Where(sq.Eq{"id": id, "owner_user_id": userID}))
}

// InsertIfAbsent stores the source unless its owner already has one with the same name.
func (s *SourceStore) InsertIfAbsent(ctx context.Context, src *models.Source) (bool, error) {
	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sources (name, website_url, feed_url, is_active, is_default, owner_user_id, created_at, updated_at)
		VALUES (:name, :website_url, :feed_url, :is_active, :is_default, :owner_user_id, :created_at, :updated_at)
		ON CONFLICT DO NOTHING`, src)
	if err != nil {
		return false, fmt.Errorf("failed to insert source %q: %w", src.Name, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read source id: %w", err)
	}
	src.ID = id
	return true, nil
}

// Update writes the mutable fields of the source.
func (s *SourceStore) Update(ctx context.Context, src *models.Source) error {
	src.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE sources SET name = :name, website_url = :website_url, feed_url = :feed_url,
			is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`, src)
	if err != nil {
		return fmt.Errorf("failed to update source %d: %w", src.ID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the source. Articles ingested from it are kept with a NULL source_id.
func (s *SourceStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func visibleTo(userID string) sq.Sqlizer {
	if userID == "" {
		return sq.Eq{"is_default": true}
	}
	return sq.Or{sq.Eq{"is_default": true}, sq.Eq{"owner_user_id": userID}}
}

func (s *SourceStore) list(ctx context.Context, q sq.SelectBuilder) ([]models.Source, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sources query: %w", err)
	}
	sources := []models.Source{}
	if err := s.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

func (s *SourceStore) get(ctx context.Context, q sq.SelectBuilder) (*models.Source, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build source query: %w", err)
	}
	var src models.Source
	if err := s.db.GetContext(ctx, &src, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &src, nil
}
