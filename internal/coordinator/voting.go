package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelmatch/backend/internal/models"
	"github.com/reelmatch/backend/internal/repositories"
)

// AddVote records a like/dislike and, in classic mode, evaluates the match
// predicate. Ordering within a submission is strict: persist, then broadcast
// the swipe, then evaluate. A store failure aborts before anything is
// broadcast. In timed mode likes accumulate and the consensus short-circuit
// is suppressed until the deadline resolution.
func (c *Coordinator) AddVote(ctx context.Context, sessionID, participantID, itemKey string, liked bool) (models.MatchResult, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return models.MatchResult{}, err
	}
	if session.Terminal() {
		return models.MatchResult{}, ErrSessionClosed
	}

	participant, err := c.Participants.FindByID(ctx, participantID)
	if err != nil || participant.SessionID != session.ID {
		if err == nil || errors.Is(err, repositories.ErrNotFound) {
			return models.MatchResult{}, ErrParticipantNotFound
		}
		return models.MatchResult{}, fmt.Errorf("find participant: %w", err)
	}

	vote := models.Vote{
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		ItemKey:       itemKey,
		Liked:         liked,
		CreatedAt:     c.now(),
	}
	if err := c.Votes.Save(ctx, vote); err != nil {
		return models.MatchResult{}, fmt.Errorf("save vote: %w", err)
	}

	c.publish(session.ID, models.EventVoteAdded, map[string]any{
		"participantId": participant.ID,
		"itemKey":       itemKey,
		"liked":         liked,
	})

	if !liked || session.Timed() {
		return models.MatchResult{}, nil
	}

	roster, err := c.Participants.CountBySession(ctx, session.ID)
	if err != nil {
		return models.MatchResult{}, fmt.Errorf("count roster: %w", err)
	}

	declared, err := c.Votes.DetectMatch(ctx, session.ID, itemKey, roster)
	if err != nil {
		return models.MatchResult{}, fmt.Errorf("detect match: %w", err)
	}
	if !declared {
		return models.MatchResult{}, nil
	}

	c.logger().Info("match found", "sessionId", session.ID, "itemKey", itemKey, "roster", roster)
	c.publish(session.ID, models.EventSessionUpdated, map[string]any{
		"status":        models.StatusCompleted,
		"winnerItemKey": itemKey,
	})

	return models.MatchResult{Match: true, WinnerItemKey: &itemKey}, nil
}

// DeleteVote removes a vote outright (undo swipe). Peers are not notified;
// undo only happens before a match was possible.
func (c *Coordinator) DeleteVote(ctx context.Context, sessionID, participantID, itemKey string) error {
	if _, err := c.getSession(ctx, sessionID); err != nil {
		return err
	}
	if err := c.Votes.Delete(ctx, sessionID, participantID, itemKey); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrVoteNotFound
		}
		return fmt.Errorf("delete vote: %w", err)
	}
	return nil
}

// ErrVoteNotFound indicates there was no vote to undo.
var ErrVoteNotFound = errors.New("vote not found")

// CheckExhausted determines whether every participant has swiped through the
// whole deck without consensus and, if so, closes the session as no_match.
// Classic mode only; timed sessions wait for their deadline instead.
func (c *Coordinator) CheckExhausted(ctx context.Context, sessionID string, deckSize int) (bool, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.Timed() || session.Terminal() || deckSize <= 0 {
		return false, nil
	}

	roster, err := c.Participants.ListBySession(ctx, session.ID)
	if err != nil {
		return false, fmt.Errorf("list participants: %w", err)
	}
	if len(roster) == 0 {
		return false, nil
	}

	counts, err := c.Votes.CountsPerParticipant(ctx, session.ID)
	if err != nil {
		return false, fmt.Errorf("count votes: %w", err)
	}
	for _, p := range roster {
		if counts[p.ID] < deckSize {
			return false, nil
		}
	}

	marked, err := c.Sessions.MarkNoMatch(ctx, session.ID)
	if err != nil {
		return false, fmt.Errorf("mark no match: %w", err)
	}
	if marked {
		c.publish(session.ID, models.EventSessionUpdated, map[string]any{
			"status": models.StatusNoMatch,
		})
	}

	return marked, nil
}
