package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"

	"newsbrief/aggregator/internal/models"
	"newsbrief/aggregator/internal/process"
	"newsbrief/aggregator/internal/server/pagination"
	"newsbrief/aggregator/internal/storage"
)

// Article is the API shape of an article.
type Article struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	SourceID     *int64    `json:"sourceId"`
	Categories   []string  `json:"categories"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	Description  string    `json:"description"`
	Content      string    `json:"content,omitempty"`
	PublishedAt  time.Time `json:"publishedAt"`
	IsSummarized bool      `json:"isSummarized"`
}

func toArticle(a models.Article, withContent bool) Article {
	out := Article{
		ID:           a.ID,
		Title:        a.Title,
		URL:          a.URL,
		Categories:   []string(a.Categories),
		Description:  a.Description,
		PublishedAt:  a.PublishedAt.UTC(),
		IsSummarized: a.IsSummarized,
	}
	if out.Categories == nil {
		out.Categories = []string{}
	}
	if a.SourceID.Valid {
		id := a.SourceID.Int64
		out.SourceID = &id
	}
	if a.ImageURL.Valid {
		out.ImageURL = a.ImageURL.String
	}
	if withContent {
		out.Content = a.OriginalContent
	}
	return out
}

// ArticleList is a page of articles.
type ArticleList struct {
	Items      []Article `json:"items"`
	NextCursor *string   `json:"nextCursor,omitempty"`
}

// ListArticles returns summarized articles matching ?interests=a,b, newest first.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	limit, ok := parseLimit(w, r, defaultLimit)
	if !ok {
		return
	}

	var after *storage.Cursor
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		ts, id, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			writeError(w, r, http.StatusBadRequest, "Invalid 'cursor' parameter")
			return
		}
		after = &storage.Cursor{PublishedAt: ts, ID: id}
	}

	var interests []string
	for _, s := range strings.Split(r.URL.Query().Get("interests"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			interests = append(interests, s)
		}
	}

	items, err := h.deps.Articles.ListByInterests(r.Context(), interests, limit+1, after)
	if err != nil {
		internalError(w, r, err, "Error fetching articles")
		return
	}

	page, next := pagination.Page(items, limit, func(a models.Article) (time.Time, int64) {
		return a.PublishedAt, a.ID
	})
	resp := ArticleList{Items: make([]Article, 0, len(page)), NextCursor: next}
	for _, a := range page {
		resp.Items = append(resp.Items, toArticle(a, false))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// ListUnsummarized returns articles still waiting for a summary.
func (h *Handler) ListUnsummarized(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 0)
	if !ok {
		return
	}
	items, err := h.deps.Articles.ListUnsummarized(r.Context(), limit)
	if err != nil {
		internalError(w, r, err, "Error fetching unsummarized articles")
		return
	}
	resp := make([]Article, 0, len(items))
	for _, a := range items {
		resp = append(resp, toArticle(a, false))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// GetArticle returns one article with its content.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.deps.Articles.GetByID(r.Context(), id)
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "Article not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Error fetching article")
		return
	}
	writeJSON(w, r, http.StatusOK, toArticle(*a, true))
}

// MarkSummarized sets the summarized flag of an article and returns it.
func (h *Handler) MarkSummarized(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.deps.Articles.MarkSummarized(r.Context(), id)
	if err != nil {
		internalError(w, r, err, "Error marking article summarized")
		return
	}
	if a == nil {
		writeError(w, r, http.StatusNotFound, "Article not found")
		return
	}
	writeJSON(w, r, http.StatusOK, toArticle(*a, false))
}

// FetchArticles runs an ingestion pass and reports its outcome.
func (h *Handler) FetchArticles(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Pipeline.TriggerFetch(r.Context())
	if err != nil {
		internalError(w, r, err, "RSS fetch failed")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// GetArticleSummary returns the summary of an article.
func (h *Handler) GetArticleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.deps.Summaries.GetByArticle(r.Context(), id)
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "Summary not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Error fetching summary")
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// CreateArticleSummary summarizes the article now, or returns its existing summary.
func (h *Handler) CreateArticleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.deps.Direct.SummarizeArticle(r.Context(), id)
	if errors.Is(err, process.ErrArticleNotFound) {
		writeError(w, r, http.StatusNotFound, "Article not found or has no content")
		return
	}
	if err != nil {
		internalError(w, r, err, "Error creating summary")
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}
