package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	importsources "newsbrief/aggregator/internal/import"
	"newsbrief/aggregator/internal/sources"
)

type addSourceRequest struct {
	Name       string `json:"name"`
	WebsiteURL string `json:"websiteUrl"`
	FeedURL    string `json:"feedUrl"`
}

// ListSources returns the default sources and the caller's own.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Sources.ListForUser(r.Context(), userID(r))
	if err != nil {
		internalError(w, r, err, "Error listing sources")
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// AddSource adds a custom source for the caller.
func (h *Handler) AddSource(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, http.StatusUnauthorized, "User id required")
		return
	}
	var req addSourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	src, err := h.deps.Sources.AddCustomSource(r.Context(), uid, req.Name, req.WebsiteURL, req.FeedURL)
	if err != nil {
		h.sourceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, src)
}

// UpdateSource changes one of the caller's sources.
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var upd sources.SourceUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	src, err := h.deps.Sources.UpdateCustomSource(r.Context(), userID(r), id, upd)
	if err != nil {
		h.sourceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, src)
}

// RemoveSource deletes one of the caller's sources.
func (h *Handler) RemoveSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Sources.RemoveCustomSource(r.Context(), userID(r), id); err != nil {
		h.sourceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportSources streams every source as CSV.
func (h *Handler) ExportSources(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	list, err := h.deps.SourceLister.ListAll(r.Context())
	if err != nil {
		internalError(w, r, err, "Failed to query sources")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=sources.csv")
	if err := importsources.Export(w, list); err != nil {
		log.Error().Err(err).Msg("Error writing CSV")
		return
	}
	log.Info().Int("source_count", len(list)).Msg("Exported sources as CSV")
}

func (h *Handler) sourceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sources.ErrInvalidFeed):
		writeError(w, r, http.StatusBadRequest, "Invalid RSS feed URL")
	case errors.Is(err, sources.ErrDuplicateSource):
		writeError(w, r, http.StatusConflict, "Source with this name already exists")
	case errors.Is(err, sources.ErrMissingField):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, sources.ErrSourceNotFound):
		writeError(w, r, http.StatusNotFound, "Custom source not found")
	default:
		internalError(w, r, err, "Source operation failed")
	}
}
