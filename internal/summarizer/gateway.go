// Package summarizer produces article summaries and keywords with a generative model and
// falls back to deterministic local rules whenever the model cannot deliver.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// ErrEmptyText is returned when there is nothing to summarize.
var ErrEmptyText = errors.New("text input cannot be empty")

const (
	// MaxInputLength is the longest input sent to the model, in runes.
	MaxInputLength = 50000
	// MaxKeywords bounds the keywords of every result.
	MaxKeywords = 10

	defaultMaxOutputTokens = 1000
	defaultTemperature     = 0.1
	defaultTopP            = 0.8
	defaultCallTimeout     = 30 * time.Second

	connectionTestText = "This is a simple test to verify that the summarization service is working properly."
)

// Result is a summary with its keywords and, when requested, notable quotes.
type Result struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
	Quotes   []string `json:"quotes,omitempty"`
}

// RetryPolicy bounds the model calls of one Summarize.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy tries three times, waiting 1s then 2s.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

// Config configures a Gateway.
type Config struct {
	Retry       RetryPolicy
	CallTimeout time.Duration
	// Language drives the local fallback; the zero value means Turkish.
	Language Language
}

// Status reports the outcome of TestConnection.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Gateway summarizes text. A nil Generator means no model is configured and every
// request is answered locally.
type Gateway struct {
	generator   Generator
	retry       RetryPolicy
	callTimeout time.Duration
	lang        Language
	logger      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a Gateway over the generator.
func NewGateway(generator Generator, cfg Config, logger zerolog.Logger) *Gateway {
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Language.Name == "" {
		cfg.Language = Turkish
	}
	return &Gateway{
		generator:   generator,
		retry:       cfg.Retry,
		callTimeout: cfg.CallTimeout,
		lang:        cfg.Language,
		logger:      logger.With().Str("component", "summarizer").Logger(),
		sleep:       sleepContext,
	}
}

// Summarize returns a summary and keywords for text. The only error is ErrEmptyText;
// model failures are answered with the local fallback.
func (g *Gateway) Summarize(ctx context.Context, text string, opts Options) (Result, error) {
	res, _, err := g.summarize(ctx, text, opts)
	return res, err
}

func (g *Gateway) summarize(ctx context.Context, text string, opts Options) (Result, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, false, ErrEmptyText
	}
	if n := utf8.RuneCountInString(text); n > MaxInputLength {
		g.logger.Warn().
			Int("length", n).
			Int("max_length", MaxInputLength).
			Msg("Text too long, truncating")
		text = string([]rune(text)[:MaxInputLength])
	}

	if strings.TrimSpace(opts.Language) == "" {
		opts.Language = g.lang.Name
	}
	opts = opts.withDefaults()
	lang := g.lang
	if !strings.EqualFold(opts.Language, g.lang.Name) {
		lang = LanguageFor(opts.Language)
	}

	if g.generator == nil {
		g.logger.Debug().Msg("No model configured, using local summary")
		return g.fallback(text, lang), false, nil
	}

	prompt := buildPrompt(text, opts)
	var lastErr error
	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		generated, err := g.generate(ctx, prompt)
		if err == nil {
			res, repaired := parseResponse(generated, text, lang)
			if repaired {
				g.logger.Warn().
					Str("model", g.generator.Name()).
					Msg("Model response was not valid JSON, used repair parsing")
			}
			g.logger.Debug().
				Int("attempt", attempt).
				Int("keywords", len(res.Keywords)).
				Msg("Summary generated")
			return res, true, nil
		}

		lastErr = err
		g.logger.Warn().
			Err(err).
			Str("model", g.generator.Name()).
			Int("attempt", attempt).
			Msg("Model call failed")

		if attempt < g.retry.MaxAttempts {
			delay := g.retry.BaseDelay * time.Duration(1<<(attempt-1))
			if err := g.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	g.logger.Error().
		Err(lastErr).
		Msg("All model attempts failed, using local summary")
	return g.fallback(text, lang), false, nil
}

func (g *Gateway) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	out, err := g.generator.Generate(callCtx, GenerateRequest{
		Prompt:          prompt,
		MaxOutputTokens: defaultMaxOutputTokens,
		Temperature:     defaultTemperature,
		TopP:            defaultTopP,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("empty response from %s", g.generator.Name())
	}
	return out, nil
}

func (g *Gateway) fallback(text string, lang Language) Result {
	return Result{
		Summary:  FallbackSummary(text, lang),
		Keywords: ExtractKeywords(text, lang),
	}
}

// TestConnection runs a trivial summarization and reports whether the model answered.
func (g *Gateway) TestConnection(ctx context.Context) Status {
	if g.generator == nil {
		return Status{Status: "error", Message: "No summarization model configured"}
	}
	_, usedModel, err := g.summarize(ctx, connectionTestText, Options{Length: LengthShort})
	if err != nil || !usedModel {
		g.logger.Error().Err(err).Str("model", g.generator.Name()).Msg("Model connection test failed")
		return Status{Status: "error", Message: fmt.Sprintf("%s connection failed", g.generator.Name())}
	}
	return Status{Status: "success", Message: fmt.Sprintf("%s connection successful", g.generator.Name())}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
