// Package feeds downloads RSS and Atom feeds and normalizes their items into article candidates.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

const (
	defaultUserAgent    = "NewsbriefAggregator/1.0"
	defaultTimeout      = 10 * time.Second
	defaultMaxRedirects = 5
	maxFeedBytes        = 10 << 20
)

// Config controls how feeds are downloaded.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// Candidate is a normalized feed item ready to become an article.
type Candidate struct {
	Link        string
	Title       string
	Description string
	Content     string
	Categories  []string
	ImageURL    string
	PublishedAt time.Time
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewFetcher creates a Fetcher, filling zero config values with defaults.
func NewFetcher(cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}

	maxRedirects := cfg.MaxRedirects
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		logger:    logger.With().Str("component", "feeds").Logger(),
		now:       time.Now,
	}
}

// Fetch downloads the feed at feedURL and returns its items in feed order.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Candidate, error) {
	feed, err := f.fetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	now := f.now()
	candidates := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		candidates = append(candidates, normalizeItem(item, now))
	}

	f.logger.Debug().
		Str("url", feedURL).
		Int("items", len(candidates)).
		Msg("Feed fetched")
	return candidates, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	// gofeed parsers keep decoding state, one per call
	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, fmt.Errorf("not an RSS or Atom feed")
		}
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

func normalizeItem(item *gofeed.Item, now time.Time) Candidate {
	title := Sanitize(item.Title)
	if title == "" {
		title = UntitledPlaceholder
	}

	description := Sanitize(item.Description)
	content := Sanitize(item.Content)
	if content == "" {
		content = description
	}

	raw := item.PublishedParsed
	if raw == nil {
		raw = item.UpdatedParsed
	}

	return Candidate{
		Link:        strings.TrimSpace(item.Link),
		Title:       title,
		Description: description,
		Content:     content,
		Categories:  normalizeCategories(item.Categories),
		ImageURL:    itemImage(item),
		PublishedAt: NormalizeDate(raw, now),
	}
}

func normalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return strings.TrimSpace(item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if src := firstImageSrc(item.Content); src != "" {
		return src
	}
	return firstImageSrc(item.Description)
}
