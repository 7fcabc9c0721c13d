package api

import (
	"net/http"
)

// GetSummary returns a summary and counts the read.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.deps.Summaries.Read(r.Context(), id)
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

// SummaryStats returns summary and read counters.
func (h *Handler) SummaryStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Summaries.Stats(r.Context(), h.now())
	if err != nil {
		internalError(w, r, err, "Error computing stats")
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// ProcessSummaries runs a fallback sweep over unsummarized articles.
func (h *Handler) ProcessSummaries(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Pipeline.TriggerFallback(r.Context())
	if err != nil {
		internalError(w, r, err, "Fallback summarization failed")
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// QueueStats returns job counters; a broken backend is reported in the body, not the status.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.deps.Queue.Stats(r.Context()))
}
