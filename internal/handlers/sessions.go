package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/reelmatch/backend/internal/coordinator"
	"github.com/reelmatch/backend/internal/logging"
	"github.com/reelmatch/backend/internal/models"
)

// SessionHandler implements the session lifecycle endpoints.
type SessionHandler struct {
	Coordinator SessionCoordinator
	Limiter     RateLimiter
}

type createSessionRequest struct {
	MediaType         string `json:"mediaType"`
	DisplayName       string `json:"displayName"`
	IsGuest           bool   `json:"isGuest"`
	AuthToken         string `json:"authToken,omitempty"`
	TimedDurationMins *int   `json:"timedDurationMinutes,omitempty"`
}

type joinSessionRequest struct {
	DisplayName string `json:"displayName"`
	IsGuest     bool   `json:"isGuest"`
	AuthToken   string `json:"authToken,omitempty"`
}

type sessionResponse struct {
	Session     sessionView  `json:"session"`
	Participant *participantView `json:"participant,omitempty"`
}

// Create handles POST /api/v1/sessions.
func (h SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Coordinator == nil {
		logger.Error("session coordinator unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "session service unavailable"})
		return
	}

	if !allowRequest(h.Limiter, r, "session-create") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid create session payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	session, host, err := h.Coordinator.CreateSession(ctx, coordinator.CreateSessionParams{
		MediaType:         req.MediaType,
		HostDisplayName:   req.DisplayName,
		HostIsGuest:       req.IsGuest,
		HostAuthToken:     req.AuthToken,
		TimedDurationMins: req.TimedDurationMins,
	})
	if err != nil {
		logger.Warn("create session failed", "error", err)
		respondError(ctx, w, err)
		return
	}

	hv := newParticipantView(host)
	respondJSON(ctx, w, http.StatusCreated, sessionResponse{Session: newSessionView(session), Participant: &hv})
}

// Get handles GET /api/v1/sessions/{id}. The id may be a session id or a
// human-facing code; this is the pollable authoritative state behind every
// broadcast.
func (h SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.Coordinator.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, sessionResponse{Session: newSessionView(session)})
}

type updateSessionRequest struct {
	Status      *string         `json:"status,omitempty"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// Update handles PATCH /api/v1/sessions/{id}.
func (h SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update session payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	session, err := h.Coordinator.UpdateSession(ctx, r.PathValue("id"), coordinator.SessionPatch{
		Status:      req.Status,
		Preferences: req.Preferences,
	})
	if err != nil {
		logger.Warn("update session failed", "sessionId", r.PathValue("id"), "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, sessionResponse{Session: newSessionView(session)})
}

// Join handles POST /api/v1/sessions/{id}/join.
func (h SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "session-join") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid join payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	// Accept codes as well as ids on join; the lobby screen only knows the code.
	session, err := h.Coordinator.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	participant, err := h.Coordinator.JoinSession(ctx, session.ID, req.DisplayName, req.IsGuest, req.AuthToken)
	if err != nil {
		logger.Warn("join session failed", "sessionId", session.ID, "error", err)
		respondError(ctx, w, err)
		return
	}

	pv := newParticipantView(participant)
	respondJSON(ctx, w, http.StatusCreated, sessionResponse{Session: newSessionView(session), Participant: &pv})
}

// Restart handles POST /api/v1/sessions/{id}/restart.
func (h SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.Coordinator.RestartRound(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, sessionResponse{Session: newSessionView(session)})
}

// Participants handles GET /api/v1/sessions/{id}/participants.
func (h SessionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	participants, err := h.Coordinator.ListParticipants(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, newParticipantView(p))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"participants": views})
}

// ParticipantHandler implements participant update endpoints.
type ParticipantHandler struct {
	Coordinator SessionCoordinator
}

type updateParticipantRequest struct {
	DisplayName        *string                  `json:"displayName,omitempty"`
	Preferences        *models.FacetPreferences `json:"preferences,omitempty"`
	QuestionsCompleted *bool                    `json:"questionsCompleted,omitempty"`
}

// Update handles PATCH /api/v1/participants/{id}.
func (h ParticipantHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req updateParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update participant payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	participant, err := h.Coordinator.UpdateParticipant(ctx, r.PathValue("id"), coordinator.ParticipantPatch{
		DisplayName:        req.DisplayName,
		Preferences:        req.Preferences,
		QuestionsCompleted: req.QuestionsCompleted,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"participant": newParticipantView(participant)})
}

// sessionView is the wire shape of a session.
type sessionView struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Status            string          `json:"status"`
	MediaType         string          `json:"mediaType"`
	HostParticipantID string          `json:"hostParticipantId"`
	Preferences       json.RawMessage `json:"preferences,omitempty"`
	WinnerItemKey     *string         `json:"winnerItemKey,omitempty"`
	TimedDurationMins *int            `json:"timedDurationMinutes,omitempty"`
	TimerEndAt        *string         `json:"timerEndAt,omitempty"`
	CreatedAt         string          `json:"createdAt"`
}

func newSessionView(s models.Session) sessionView {
	view := sessionView{
		ID:                s.ID,
		Code:              s.Code,
		Status:            s.Status,
		MediaType:         s.MediaType,
		HostParticipantID: s.HostParticipantID,
		Preferences:       s.Preferences,
		WinnerItemKey:     s.WinnerItemKey,
		TimedDurationMins: s.TimedDurationMins,
		CreatedAt:         s.CreatedAt.Format(timeFormat),
	}
	if s.TimerEndAt != nil {
		t := s.TimerEndAt.Format(timeFormat)
		view.TimerEndAt = &t
	}
	return view
}

// participantView is the wire shape of a participant. The upstream auth
// token is never exposed.
type participantView struct {
	ID                 string                  `json:"id"`
	SessionID          string                  `json:"sessionId"`
	DisplayName        string                  `json:"displayName"`
	IsGuest            bool                    `json:"isGuest"`
	Preferences        models.FacetPreferences `json:"preferences"`
	QuestionsCompleted bool                    `json:"questionsCompleted"`
}

func newParticipantView(p models.Participant) participantView {
	return participantView{
		ID:                 p.ID,
		SessionID:          p.SessionID,
		DisplayName:        p.DisplayName,
		IsGuest:            p.IsGuest,
		Preferences:        p.Preferences,
		QuestionsCompleted: p.QuestionsCompleted,
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
