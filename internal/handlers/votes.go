package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/reelmatch/backend/internal/logging"
	"github.com/reelmatch/backend/internal/models"
)

// VoteHandler implements the swipe deck and voting endpoints.
type VoteHandler struct {
	Coordinator SessionCoordinator
}

// Deck handles GET /api/v1/sessions/{id}/deck?participantId=...
func (h VoteHandler) Deck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "participantId is required"})
		return
	}

	items, err := h.Coordinator.BuildDeck(ctx, r.PathValue("id"), participantID)
	if err != nil {
		logger.Warn("build deck failed", "sessionId", r.PathValue("id"), "error", err)
		respondError(ctx, w, err)
		return
	}
	if items == nil {
		items = []models.MediaItem{}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"items": items})
}

type voteRequest struct {
	ParticipantID string `json:"participantId"`
	ItemKey       string `json:"itemKey"`
	Liked         bool   `json:"liked"`
	// DeckSize lets the client report the deck it exhausted; zero means the
	// deck is not yet exhausted.
	DeckSize int `json:"deckSize,omitempty"`
}

// Cast handles POST /api/v1/sessions/{id}/votes.
func (h VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid vote payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ParticipantID == "" || req.ItemKey == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "participantId and itemKey are required"})
		return
	}

	sessionID := r.PathValue("id")
	result, err := h.Coordinator.AddVote(ctx, sessionID, req.ParticipantID, req.ItemKey, req.Liked)
	if err != nil {
		logger.Warn("add vote failed", "sessionId", sessionID, "error", err)
		respondError(ctx, w, err)
		return
	}

	if !result.Match && req.DeckSize > 0 {
		exhausted, err := h.Coordinator.CheckExhausted(ctx, sessionID, req.DeckSize)
		if err != nil {
			logger.Warn("exhaustion check failed", "sessionId", sessionID, "error", err)
		} else if exhausted {
			respondJSON(ctx, w, http.StatusOK, map[string]any{"match": false, "exhausted": true})
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, result)
}

// Undo handles DELETE /api/v1/sessions/{id}/votes/{itemKey}?participantId=...
func (h VoteHandler) Undo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "participantId is required"})
		return
	}

	if err := h.Coordinator.DeleteVote(ctx, r.PathValue("id"), participantID, r.PathValue("itemKey")); err != nil {
		respondError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Results handles GET /api/v1/sessions/{id}/results, the poll fallback for
// clients that missed the resolution broadcast.
func (h VoteHandler) Results(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results, err := h.Coordinator.Results(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, results)
}

// Resolve handles POST /api/v1/sessions/{id}/resolve. It is safe to call
// from every client at the deadline; resolution happens at most once.
func (h VoteHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	result, err := h.Coordinator.ResolveTimedSession(ctx, r.PathValue("id"))
	if err != nil {
		logger.Warn("resolve timed session failed", "sessionId", r.PathValue("id"), "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, result)
}

type finalVoteRequest struct {
	ParticipantID string `json:"participantId"`
	ItemKey       string `json:"itemKey"`
}

// CastFinal handles POST /api/v1/sessions/{id}/final-votes.
func (h VoteHandler) CastFinal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req finalVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid final vote payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ParticipantID == "" || req.ItemKey == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "participantId and itemKey are required"})
		return
	}

	tally, err := h.Coordinator.CastFinalVote(ctx, r.PathValue("id"), req.ParticipantID, req.ItemKey)
	if err != nil {
		logger.Warn("cast final vote failed", "sessionId", r.PathValue("id"), "error", err)
		respondError(ctx, w, err)
		return
	}

	if tally == nil {
		respondJSON(ctx, w, http.StatusAccepted, map[string]any{"complete": false})
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"complete": true, "tally": tally})
}
