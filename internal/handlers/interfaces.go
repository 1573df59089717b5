package handlers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/reelmatch/backend/internal/coordinator"
	"github.com/reelmatch/backend/internal/eventbus"
	"github.com/reelmatch/backend/internal/models"
)

// SessionCoordinator captures the coordination operations required by the
// session, vote, and deck handlers.
type SessionCoordinator interface {
	CreateSession(ctx context.Context, params coordinator.CreateSessionParams) (models.Session, models.Participant, error)
	JoinSession(ctx context.Context, sessionID, displayName string, isGuest bool, authToken string) (models.Participant, error)
	GetSession(ctx context.Context, idOrCode string) (models.Session, error)
	UpdateSession(ctx context.Context, sessionID string, patch coordinator.SessionPatch) (models.Session, error)
	ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error)
	UpdateParticipant(ctx context.Context, participantID string, patch coordinator.ParticipantPatch) (models.Participant, error)
	RestartRound(ctx context.Context, sessionID string) (models.Session, error)
	BuildDeck(ctx context.Context, sessionID, participantID string) ([]models.MediaItem, error)
	AddVote(ctx context.Context, sessionID, participantID, itemKey string, liked bool) (models.MatchResult, error)
	DeleteVote(ctx context.Context, sessionID, participantID, itemKey string) error
	CheckExhausted(ctx context.Context, sessionID string, deckSize int) (bool, error)
	ResolveTimedSession(ctx context.Context, sessionID string) (models.TimedResult, error)
	CastFinalVote(ctx context.Context, sessionID, participantID, itemKey string) (*models.FinalTally, error)
	Results(ctx context.Context, sessionID string) (models.SessionResults, error)
}

// EventStream provides per-session subscriptions for the WebSocket endpoint.
type EventStream interface {
	Subscribe(sessionID string) *eventbus.Subscriber
	Unsubscribe(sub *eventbus.Subscriber)
}

// AdminService captures the administrative configuration operations.
type AdminService interface {
	VerifyPassword(ctx context.Context, password string) error
	SetPassword(ctx context.Context, password string) error
	UploadLogo(ctx context.Context, ext string, r io.Reader) (string, error)
	LogoURL(ctx context.Context) (string, error)
	GetSetting(ctx context.Context, key string) (json.RawMessage, error)
	PutSetting(ctx context.Context, key string, value json.RawMessage) error
}
