// Package api implements the JSON handlers of the HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"newsbrief/aggregator/internal/models"
	"newsbrief/aggregator/internal/process"
	"newsbrief/aggregator/internal/queue"
	"newsbrief/aggregator/internal/sources"
	"newsbrief/aggregator/internal/storage"
	"newsbrief/aggregator/internal/summarizer"
)

// UserIDHeader carries the id of the calling user, set by the gateway in front of the API.
const UserIDHeader = "X-User-ID"

const (
	defaultLimit = 20
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

// Articles is the article access the API needs.
type Articles interface {
	GetByID(ctx context.Context, id int64) (*models.Article, error)
	ListUnsummarized(ctx context.Context, limit int) ([]models.Article, error)
	ListByInterests(ctx context.Context, interests []string, limit int, after *storage.Cursor) ([]models.Article, error)
	MarkSummarized(ctx context.Context, id int64) (*models.Article, error)
}

// Summaries is the summary access the API needs.
type Summaries interface {
	GetByArticle(ctx context.Context, articleID int64) (*models.Summary, error)
	Read(ctx context.Context, id int64) (*models.Summary, error)
	Stats(ctx context.Context, now time.Time) (storage.Stats, error)
}

// DirectSummarizer creates the summary of a stored article on demand.
type DirectSummarizer interface {
	SummarizeArticle(ctx context.Context, articleID int64) (*models.Summary, error)
}

// Pipeline triggers the ingestion and fallback passes manually.
type Pipeline interface {
	TriggerFetch(ctx context.Context) (process.FetchResult, error)
	TriggerFallback(ctx context.Context) (process.Report, error)
}

// Sources manages feed sources.
type Sources interface {
	ListForUser(ctx context.Context, userID string) ([]models.Source, error)
	AddCustomSource(ctx context.Context, ownerID, name, websiteURL, feedURL string) (*models.Source, error)
	UpdateCustomSource(ctx context.Context, ownerID string, id int64, upd sources.SourceUpdate) (*models.Source, error)
	RemoveCustomSource(ctx context.Context, ownerID string, id int64) error
}

// SourceLister lists every stored source for export.
type SourceLister interface {
	ListAll(ctx context.Context) ([]models.Source, error)
}

// Summarizer is the summarization gateway.
type Summarizer interface {
	Summarize(ctx context.Context, text string, opts summarizer.Options) (summarizer.Result, error)
	TestConnection(ctx context.Context) summarizer.Status
}

// QueueStats reports job queue counters.
type QueueStats interface {
	Stats(ctx context.Context) queue.Stats
}

// Deps are the services behind the handlers.
type Deps struct {
	Articles     Articles
	Summaries    Summaries
	Direct       DirectSummarizer
	Pipeline     Pipeline
	Sources      Sources
	SourceLister SourceLister
	Summarizer   Summarizer
	Queue        QueueStats
}

// Handler holds dependencies for the API handlers.
type Handler struct {
	deps Deps
	now  func() time.Time
}

// NewHandler creates a new handler instance.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, now: time.Now}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/articles", h.ListArticles)
	mux.HandleFunc("GET /v1/articles/unsummarized", h.ListUnsummarized)
	mux.HandleFunc("POST /v1/articles/fetch", h.FetchArticles)
	mux.HandleFunc("GET /v1/articles/{id}", h.GetArticle)
	mux.HandleFunc("POST /v1/articles/{id}/summarized", h.MarkSummarized)
	mux.HandleFunc("GET /v1/articles/{id}/summary", h.GetArticleSummary)
	mux.HandleFunc("POST /v1/articles/{id}/summary", h.CreateArticleSummary)

	mux.HandleFunc("GET /v1/summaries/stats", h.SummaryStats)
	mux.HandleFunc("POST /v1/summaries/process", h.ProcessSummaries)
	mux.HandleFunc("GET /v1/summaries/{id}", h.GetSummary)

	mux.HandleFunc("GET /v1/sources", h.ListSources)
	mux.HandleFunc("POST /v1/sources", h.AddSource)
	mux.HandleFunc("GET /v1/sources/export", h.ExportSources)
	mux.HandleFunc("PATCH /v1/sources/{id}", h.UpdateSource)
	mux.HandleFunc("DELETE /v1/sources/{id}", h.RemoveSource)

	mux.HandleFunc("POST /v1/ai/summarize", h.Summarize)
	mux.HandleFunc("GET /v1/ai/test", h.TestConnection)

	mux.HandleFunc("GET /v1/queue/stats", h.QueueStats)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	log := hlog.FromRequest(r)

	jsonBytes, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
		return
	}
	log.Debug().Int("bytes_written", len(jsonBytes)).Msg("Response completed")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// internalError logs err and answers 500 without leaking details.
func internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	hlog.FromRequest(r).Error().Err(err).Msg(msg)
	writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Invalid request body")
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		hlog.FromRequest(r).Warn().Str("id", raw).Msg("Invalid id")
		writeError(w, r, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > maxLimit {
		hlog.FromRequest(r).Warn().Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
		writeError(w, r, http.StatusBadRequest, "Invalid 'limit' parameter: must be between 1 and "+strconv.Itoa(maxLimit))
		return 0, false
	}
	return limit, true
}

func userID(r *http.Request) string {
	return r.Header.Get(UserIDHeader)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
