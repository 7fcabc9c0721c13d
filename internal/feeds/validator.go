package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/reddot-watch/feedfetcher"
)

// Validator confirms that a URL serves a parseable feed.
type Validator struct {
	fetcher *feedfetcher.FeedFetcher
	timeout time.Duration
}

// NewValidator creates a Validator using the same client settings as the Fetcher.
func NewValidator(cfg Config) *Validator {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Validator{
		fetcher: feedfetcher.NewFeedFetcher(feedfetcher.Config{
			UserAgent:            cfg.UserAgent,
			RequestTimeout:       cfg.Timeout,
			MaxItems:             10,
			MaxHeadingLength:     200,
			MaxAge:               MaxItemAge,
			FutureDriftTolerance: 12 * time.Hour,
		}),
		timeout: cfg.Timeout,
	}
}

// Validate returns an error when feedURL cannot be downloaded or parsed as a feed.
func (v *Validator) Validate(ctx context.Context, feedURL string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if _, err := v.fetcher.FetchAndProcess(ctx, feedURL); err != nil {
		return fmt.Errorf("feed %s is not valid: %w", feedURL, err)
	}
	return nil
}
