package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/waveform-labs/melodex/internal/api"
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/history"
	"github.com/waveform-labs/melodex/internal/search"
	"github.com/waveform-labs/melodex/internal/session"
)

// SearchHandler serves the request/response half of the client-facing
// interface: one-shot searches, history, suggestions and feedback.
type SearchHandler struct {
	pipeline *search.Pipeline
	manager  *session.Manager
	index    *history.Index
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(pipeline *search.Pipeline, manager *session.Manager, index *history.Index) *SearchHandler {
	return &SearchHandler{pipeline: pipeline, manager: manager, index: index}
}

type searchResponse struct {
	SessionID string                `json:"session_id"`
	Tracks    []*search.TrackResult `json:"tracks"`
	TookMs    int64                 `json:"took_ms"`
}

type historyResponse struct {
	Entries []*history.Entry `json:"entries"`
}

type suggestionsResponse struct {
	Suggestions []history.Suggestion `json:"suggestions"`
}

type feedbackRequest struct {
	ConnectionID string `json:"connection_id"`
	TrackID      string `json:"track_id"`
	Liked        bool   `json:"liked"`
}

// Search runs a one-shot, non-progressive search synchronously. The live
// channel is the progressive path; this endpoint exists for clients that
// only want the final ranked set.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Progressive = false

	sess := &domain.SearchSession{
		ID:        uuid.NewString(),
		CreatedAt: start,
	}

	// One-shot runs have no transport to push to; only the return value
	// matters.
	drop := search.EmitterFunc(func(string, search.Event) {})
	final, err := h.pipeline.Run(r.Context(), sess, req, drop)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, searchResponse{
		SessionID: sess.ID,
		Tracks:    search.NewTrackResults(final),
		TookMs:    time.Since(start).Milliseconds(),
	})
}

// History returns recorded searches, newest first. When a connection id
// is supplied the lookup is scoped through the session manager so stale
// connections are rejected.
func (h *SearchHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	if connID := r.URL.Query().Get("connection_id"); connID != "" {
		entries, err := h.manager.History(connID, limit)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, historyResponse{Entries: entries})
		return
	}

	api.Success(w, http.StatusOK, historyResponse{Entries: h.index.History(limit)})
}

// Suggestions returns autocomplete candidates for a prefix.
func (h *SearchHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	limit := queryInt(r, "limit", 10)

	if connID := r.URL.Query().Get("connection_id"); connID != "" {
		suggestions, err := h.manager.Suggestions(connID, prefix, limit)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, suggestionsResponse{Suggestions: suggestions})
		return
	}

	api.Success(w, http.StatusOK, suggestionsResponse{Suggestions: h.index.Suggest(prefix, limit)})
}

// Feedback records a like/dislike on the connection's active session.
func (h *SearchHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConnectionID == "" || req.TrackID == "" {
		api.Error(w, http.StatusBadRequest, "connection_id and track_id are required")
		return
	}

	if err := h.manager.Feedback(req.ConnectionID, req.TrackID, req.Liked); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]any{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
