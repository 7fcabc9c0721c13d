package api

import (
	"errors"
	"net/http"

	"newsbrief/aggregator/internal/summarizer"
)

type summarizeRequest struct {
	Text    string             `json:"text"`
	Options summarizer.Options `json:"options"`
}

// Summarize summarizes arbitrary text.
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.deps.Summarizer.Summarize(r.Context(), req.Text, req.Options)
	if errors.Is(err, summarizer.ErrEmptyText) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err, "Summarization failed")
		return
	}
	if res.Keywords == nil {
		res.Keywords = []string{}
	}
	writeJSON(w, r, http.StatusOK, res)
}

// TestConnection probes the configured model.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.deps.Summarizer.TestConnection(r.Context()))
}
