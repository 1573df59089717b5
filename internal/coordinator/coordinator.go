// Package coordinator owns the session lifecycle state machine: roster,
// preference aggregation, candidate decks, vote tallying, match detection,
// and timed-mode resolution. All cross-participant coordination is evaluated
// from durable store state, never from in-memory rendezvous, so any number
// of server requests (or restarts) can serve a session concurrently.
package coordinator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelmatch/backend/internal/models"
	"github.com/reelmatch/backend/internal/repositories"
)

var (
	// ErrInvalidMediaType rejects unknown media types before any mutation.
	ErrInvalidMediaType = errors.New("invalid media type")
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound indicates the participant does not exist in the session.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrSessionClosed rejects mutations against a session that already
	// reached an outcome.
	ErrSessionClosed = errors.New("session already closed")
	// ErrInvalidTransition rejects backward status moves.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCodeExhausted indicates code generation kept colliding.
	ErrCodeExhausted = errors.New("could not generate a unique session code")
	// ErrDisplayNameRequired rejects empty participant names.
	ErrDisplayNameRequired = errors.New("display name is required")
)

// codeAlphabet excludes the ambiguous glyphs 0, O, 1, and I.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 10
)

// SessionStore captures the session persistence operations the coordinator requires.
type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByID(ctx context.Context, id string) (models.Session, error)
	FindByCode(ctx context.Context, code string) (models.Session, error)
	Update(ctx context.Context, session models.Session) error
	DeclareWinner(ctx context.Context, sessionID, itemKey string) (bool, error)
	MarkNoMatch(ctx context.Context, sessionID string) (bool, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// ParticipantStore captures roster persistence.
type ParticipantStore interface {
	Create(ctx context.Context, p models.Participant) error
	FindByID(ctx context.Context, id string) (models.Participant, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Participant, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	Update(ctx context.Context, p models.Participant) error
	ResetQuestions(ctx context.Context, sessionID string) error
}

// VoteStore captures vote persistence plus the serialized match check.
type VoteStore interface {
	Save(ctx context.Context, vote models.Vote) error
	Delete(ctx context.Context, sessionID, participantID, itemKey string) error
	DetectMatch(ctx context.Context, sessionID, itemKey string, rosterSize int) (bool, error)
	ListByParticipant(ctx context.Context, sessionID, participantID string) ([]models.Vote, error)
	CountsPerParticipant(ctx context.Context, sessionID string) (map[string]int, error)
	UnanimousItems(ctx context.Context, sessionID string, rosterSize int) ([]string, error)
	TopLiked(ctx context.Context, sessionID string, limit int) ([]string, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// FinalVoteStore captures timed-mode final-vote persistence.
type FinalVoteStore interface {
	Create(ctx context.Context, vote models.FinalVote) error
	ListBySession(ctx context.Context, sessionID string) ([]models.FinalVote, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// EventPublisher fans session events out to subscribed clients. Publishing
// is best-effort; its failure never rolls back state.
type EventPublisher interface {
	Publish(sessionID, name string, payload any)
}

// Coordinator is the session coordination core.
type Coordinator struct {
	Sessions     SessionStore
	Participants ParticipantStore
	Votes        VoteStore
	FinalVotes   FinalVoteStore
	Events       EventPublisher
	Catalog      Catalog
	Logger       *slog.Logger
	NowFunc      func() time.Time
}

// New constructs a Coordinator. Events and Logger may be nil (no-op / default).
func New(sessions SessionStore, participants ParticipantStore, votes VoteStore, finalVotes FinalVoteStore, events EventPublisher) *Coordinator {
	return &Coordinator{
		Sessions:     sessions,
		Participants: participants,
		Votes:        votes,
		FinalVotes:   finalVotes,
		Events:       events,
	}
}

func (c *Coordinator) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now().UTC()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Coordinator) publish(sessionID, name string, payload any) {
	if c.Events == nil {
		return
	}
	c.Events.Publish(sessionID, name, payload)
}

// CreateSessionParams carries the host's session setup.
type CreateSessionParams struct {
	MediaType         string
	HostDisplayName   string
	HostIsGuest       bool
	HostAuthToken     string
	TimedDurationMins *int
}

// CreateSession opens a new session in the waiting state and seats the host
// as its first participant.
func (c *Coordinator) CreateSession(ctx context.Context, params CreateSessionParams) (models.Session, models.Participant, error) {
	if !models.ValidMediaType(params.MediaType) {
		return models.Session{}, models.Participant{}, fmt.Errorf("%w: %q", ErrInvalidMediaType, params.MediaType)
	}
	if strings.TrimSpace(params.HostDisplayName) == "" {
		return models.Session{}, models.Participant{}, ErrDisplayNameRequired
	}

	code, err := c.generateCode(ctx)
	if err != nil {
		return models.Session{}, models.Participant{}, err
	}

	now := c.now()
	host := models.Participant{
		ID:          uuid.NewString(),
		DisplayName: strings.TrimSpace(params.HostDisplayName),
		IsGuest:     params.HostIsGuest,
		AuthToken:   params.HostAuthToken,
		CreatedAt:   now,
	}
	session := models.Session{
		ID:                uuid.NewString(),
		Code:              code,
		Status:            models.StatusWaiting,
		MediaType:         params.MediaType,
		HostParticipantID: host.ID,
		TimedDurationMins: params.TimedDurationMins,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	host.SessionID = session.ID

	if err := c.Sessions.Create(ctx, session); err != nil {
		return models.Session{}, models.Participant{}, fmt.Errorf("create session: %w", err)
	}
	if err := c.Participants.Create(ctx, host); err != nil {
		return models.Session{}, models.Participant{}, fmt.Errorf("create host participant: %w", err)
	}

	c.logger().Info("session created", "sessionId", session.ID, "code", session.Code, "mediaType", session.MediaType, "timed", session.Timed())

	return session, host, nil
}

func (c *Coordinator) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		inUse, err := c.Sessions.CodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !inUse {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

func randomCode() (string, error) {
	var b strings.Builder
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("draw code character: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// JoinSession appends a participant to the roster. Joining is allowed any
// time before the session closes; a join after swiping starts simply has no
// effect on the in-progress round's threshold for already-counted matches.
func (c *Coordinator) JoinSession(ctx context.Context, sessionID, displayName string, isGuest bool, authToken string) (models.Participant, error) {
	if strings.TrimSpace(displayName) == "" {
		return models.Participant{}, ErrDisplayNameRequired
	}

	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return models.Participant{}, err
	}
	if session.Terminal() {
		return models.Participant{}, ErrSessionClosed
	}

	participant := models.Participant{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		DisplayName: strings.TrimSpace(displayName),
		IsGuest:     isGuest,
		AuthToken:   authToken,
		CreatedAt:   c.now(),
	}

	if err := c.Participants.Create(ctx, participant); err != nil {
		return models.Participant{}, fmt.Errorf("create participant: %w", err)
	}

	c.publish(session.ID, models.EventParticipantJoined, map[string]any{
		"participant": participantView(participant),
	})

	return participant, nil
}

// GetSession resolves a session by id or, failing that, by code. It is the
// pollable authoritative counterpart of every broadcast transition.
func (c *Coordinator) GetSession(ctx context.Context, idOrCode string) (models.Session, error) {
	session, err := c.Sessions.FindByID(ctx, idOrCode)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}

	session, err = c.Sessions.FindByCode(ctx, idOrCode)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("find session by code: %w", err)
	}
	return session, nil
}

func (c *Coordinator) getSession(ctx context.Context, sessionID string) (models.Session, error) {
	session, err := c.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

// ListParticipants returns the session roster.
func (c *Coordinator) ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	if _, err := c.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	participants, err := c.Participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// ParticipantPatch carries the updatable participant fields. Nil means
// "leave unchanged"; Preferences replaces wholesale.
type ParticipantPatch struct {
	DisplayName        *string
	Preferences        *models.FacetPreferences
	QuestionsCompleted *bool
}

// UpdateParticipant applies a patch and broadcasts the changed fields.
func (c *Coordinator) UpdateParticipant(ctx context.Context, participantID string, patch ParticipantPatch) (models.Participant, error) {
	participant, err := c.Participants.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Participant{}, ErrParticipantNotFound
		}
		return models.Participant{}, fmt.Errorf("find participant: %w", err)
	}

	changed := map[string]any{"participantId": participant.ID}
	if patch.DisplayName != nil && strings.TrimSpace(*patch.DisplayName) != "" {
		participant.DisplayName = strings.TrimSpace(*patch.DisplayName)
		changed["displayName"] = participant.DisplayName
	}
	if patch.Preferences != nil {
		participant.Preferences = *patch.Preferences
		changed["preferences"] = participant.Preferences
	}
	if patch.QuestionsCompleted != nil {
		participant.QuestionsCompleted = *patch.QuestionsCompleted
		changed["questionsCompleted"] = participant.QuestionsCompleted
	}

	if err := c.Participants.Update(ctx, participant); err != nil {
		return models.Participant{}, fmt.Errorf("update participant: %w", err)
	}

	c.publish(participant.SessionID, models.EventParticipantUpdated, changed)

	return participant, nil
}

// RestartRound takes a non-completed session back to the questions phase:
// votes and final votes are cleared and every participant's questions flag
// resets. A completed session is immutable.
func (c *Coordinator) RestartRound(ctx context.Context, sessionID string) (models.Session, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	if session.Status == models.StatusCompleted {
		return models.Session{}, ErrSessionClosed
	}

	if err := c.Votes.DeleteBySession(ctx, sessionID); err != nil {
		return models.Session{}, fmt.Errorf("clear votes: %w", err)
	}
	if err := c.FinalVotes.DeleteBySession(ctx, sessionID); err != nil {
		return models.Session{}, fmt.Errorf("clear final votes: %w", err)
	}
	if err := c.Participants.ResetQuestions(ctx, sessionID); err != nil {
		return models.Session{}, fmt.Errorf("reset questions: %w", err)
	}

	session.Status = models.StatusQuestions
	session.TimerEndAt = nil
	session.UpdatedAt = c.now()
	if err := c.Sessions.Update(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("update session: %w", err)
	}

	c.publish(session.ID, models.EventSessionUpdated, map[string]any{
		"status": session.Status,
	})

	return session, nil
}

// participantView is the participant shape broadcast to peers. The upstream
// auth token never leaves the server.
func participantView(p models.Participant) map[string]any {
	return map[string]any{
		"id":                 p.ID,
		"sessionId":          p.SessionID,
		"displayName":        p.DisplayName,
		"isGuest":            p.IsGuest,
		"questionsCompleted": p.QuestionsCompleted,
	}
}
