package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reelmatch/backend/internal/coordinator"
	"github.com/reelmatch/backend/internal/logging"
	"github.com/reelmatch/backend/internal/repositories"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	respondJSON(ctx, w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps coordinator and repository errors onto HTTP statuses.
// Unrecognised errors are treated as transient server failures the client
// may retry.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrInvalidMediaType),
		errors.Is(err, coordinator.ErrDisplayNameRequired),
		errors.Is(err, coordinator.ErrInvalidTransition),
		errors.Is(err, coordinator.ErrNotTimedSession),
		errors.Is(err, coordinator.ErrNotACandidate):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrSessionNotFound),
		errors.Is(err, coordinator.ErrParticipantNotFound),
		errors.Is(err, coordinator.ErrVoteNotFound),
		errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrSessionClosed),
		errors.Is(err, coordinator.ErrFinalVoteCast),
		errors.Is(err, coordinator.ErrNotVoting),
		errors.Is(err, coordinator.ErrTimerRunning),
		errors.Is(err, repositories.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
