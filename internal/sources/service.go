// Package sources manages the shared default feeds and the custom feeds users add.
package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/models"
	"newsbrief/aggregator/internal/storage"
)

var (
	ErrInvalidFeed     = errors.New("invalid RSS feed URL")
	ErrDuplicateSource = errors.New("source with this name already exists")
	ErrSourceNotFound  = errors.New("custom source not found")
	ErrMissingField    = errors.New("name, feed URL and owner are required")
)

// Defaults are seeded on first start.
var Defaults = []models.Source{
	{Name: "TechCrunch", WebsiteURL: "https://techcrunch.com", FeedURL: "https://techcrunch.com/feed/"},
	{Name: "BBC News", WebsiteURL: "https://www.bbc.com/news", FeedURL: "http://feeds.bbci.co.uk/news/rss.xml"},
	{Name: "The Verge", WebsiteURL: "https://www.theverge.com", FeedURL: "https://www.theverge.com/rss/index.xml"},
	{Name: "Ars Technica", WebsiteURL: "https://arstechnica.com", FeedURL: "http://feeds.arstechnica.com/arstechnica/index"},
}

// Store is the source persistence the service needs.
type Store interface {
	ListForUser(ctx context.Context, userID string) ([]models.Source, error)
	FindVisibleByName(ctx context.Context, userID, name string) (*models.Source, error)
	GetOwned(ctx context.Context, id int64, userID string) (*models.Source, error)
	InsertIfAbsent(ctx context.Context, src *models.Source) (bool, error)
	Update(ctx context.Context, src *models.Source) error
	Delete(ctx context.Context, id int64) error
}

// Validator checks that a URL serves a parseable feed.
type Validator interface {
	Validate(ctx context.Context, feedURL string) error
}

// Ingestor pulls the first items of a freshly added source.
type Ingestor interface {
	ProcessNewSource(ctx context.Context, src models.Source) (int, error)
}

// Service implements source management.
type Service struct {
	store     Store
	validator Validator
	ingestor  Ingestor
	logger    zerolog.Logger
}

// NewService creates a Service. A nil ingestor skips the initial ingestion of new sources.
func NewService(store Store, validator Validator, ingestor Ingestor, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		validator: validator,
		ingestor:  ingestor,
		logger:    logger.With().Str("component", "sources").Logger(),
	}
}

// SeedDefaults inserts the default sources that are not stored yet and returns how many were added.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	added := 0
	for _, d := range Defaults {
		src := models.NewSource()
		src.Name, src.WebsiteURL, src.FeedURL = d.Name, d.WebsiteURL, d.FeedURL
		src.IsDefault = true
		ok, err := s.store.InsertIfAbsent(ctx, src)
		if err != nil {
			return added, err
		}
		if ok {
			added++
			s.logger.Info().Str("source", src.Name).Msg("Default source created")
		}
	}
	return added, nil
}

// ListForUser returns the default sources and the user's custom ones.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Source, error) {
	return s.store.ListForUser(ctx, userID)
}

// AddCustomSource validates and stores a user's source, then ingests its first items.
// Ingestion failures are logged; the source is kept.
func (s *Service) AddCustomSource(ctx context.Context, ownerID, name, websiteURL, feedURL string) (*models.Source, error) {
	name, feedURL = strings.TrimSpace(name), strings.TrimSpace(feedURL)
	if ownerID == "" || name == "" || feedURL == "" {
		return nil, ErrMissingField
	}

	if err := s.validator.Validate(ctx, feedURL); err != nil {
		s.logger.Debug().Err(err).Str("url", feedURL).Msg("Feed validation failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeed, err)
	}

	if err := s.ensureNameFree(ctx, ownerID, name, 0); err != nil {
		return nil, err
	}

	src := models.NewSource()
	src.Name = name
	src.WebsiteURL = strings.TrimSpace(websiteURL)
	src.FeedURL = feedURL
	src.OwnerUserID = sql.NullString{String: ownerID, Valid: true}

	ok, err := s.store.InsertIfAbsent(ctx, src)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDuplicateSource
	}
	s.logger.Info().Int64("source_id", src.ID).Str("owner", ownerID).Str("source", name).Msg("Custom source added")

	if s.ingestor != nil {
		if _, err := s.ingestor.ProcessNewSource(ctx, *src); err != nil {
			s.logger.Error().Err(err).Str("source", name).Msg("Error processing RSS for new source")
		}
	}
	return src, nil
}

// SourceUpdate holds the fields to change; nil fields are left as they are.
type SourceUpdate struct {
	Name       *string `json:"name,omitempty"`
	WebsiteURL *string `json:"websiteUrl,omitempty"`
	FeedURL    *string `json:"feedUrl,omitempty"`
}

// UpdateCustomSource changes a source the user owns.
func (s *Service) UpdateCustomSource(ctx context.Context, ownerID string, id int64, upd SourceUpdate) (*models.Source, error) {
	src, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.FeedURL != nil && *upd.FeedURL != src.FeedURL {
		feedURL := strings.TrimSpace(*upd.FeedURL)
		if err := s.validator.Validate(ctx, feedURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFeed, err)
		}
		src.FeedURL = feedURL
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrMissingField
		}
		if name != src.Name {
			if err := s.ensureNameFree(ctx, ownerID, name, src.ID); err != nil {
				return nil, err
			}
			src.Name = name
		}
	}
	if upd.WebsiteURL != nil {
		src.WebsiteURL = strings.TrimSpace(*upd.WebsiteURL)
	}

	if err := s.store.Update(ctx, src); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	return src, nil
}

// RemoveCustomSource deletes a source the user owns along with its articles.
func (s *Service) RemoveCustomSource(ctx context.Context, ownerID string, id int64) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSourceNotFound
		}
		return err
	}
	s.logger.Info().Int64("source_id", id).Str("owner", ownerID).Msg("Custom source removed")
	return nil
}

func (s *Service) owned(ctx context.Context, ownerID string, id int64) (*models.Source, error) {
	if ownerID == "" {
		return nil, ErrSourceNotFound
	}
	src, err := s.store.GetOwned(ctx, id, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSourceNotFound
	}
	return src, err
}

// ensureNameFree fails when a default or own source other than exceptID already uses the name.
func (s *Service) ensureNameFree(ctx context.Context, ownerID, name string, exceptID int64) error {
	existing, err := s.store.FindVisibleByName(ctx, ownerID, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == exceptID:
		return nil
	default:
		return ErrDuplicateSource
	}
}
