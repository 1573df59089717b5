package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reelmatch/backend/internal/models"
)

// SessionPatch carries the updatable session fields. Preferences are merged
// at the key level (last writer wins per key), never replaced wholesale.
type SessionPatch struct {
	Status      *string
	Preferences json.RawMessage
}

// UpdateSession applies a patch, enforcing forward-only status transitions.
// Entering swiping on a timed session stamps the timer deadline, which is
// included in the broadcast so every client counts down from the same
// instant.
func (c *Coordinator) UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) (models.Session, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return models.Session{}, err
	}

	now := c.now()
	changed := map[string]any{}

	if patch.Status != nil && *patch.Status != session.Status {
		if session.WinnerItemKey != nil {
			// A declared winner is final. No transition can follow it.
			return models.Session{}, ErrSessionClosed
		}
		if !models.CanTransition(session.Status, *patch.Status) {
			return models.Session{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Status, *patch.Status)
		}
		session.Status = *patch.Status
		changed["status"] = session.Status

		if session.Status == models.StatusSwiping && session.Timed() && session.TimerEndAt == nil {
			end := now.Add(time.Duration(*session.TimedDurationMins) * time.Minute)
			session.TimerEndAt = &end
			changed["timerEndAt"] = end
		}
	}

	if len(patch.Preferences) > 0 {
		merged, err := mergePreferences(session.Preferences, patch.Preferences)
		if err != nil {
			return models.Session{}, fmt.Errorf("merge session preferences: %w", err)
		}
		session.Preferences = merged
		changed["preferences"] = json.RawMessage(merged)
	}

	if len(changed) == 0 {
		return session, nil
	}

	session.UpdatedAt = now
	if err := c.Sessions.Update(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("update session: %w", err)
	}

	c.publish(session.ID, models.EventSessionUpdated, changed)

	return session, nil
}

// mergePreferences merges the patch into the base JSON bag one top-level key
// at a time: keys present in the patch overwrite, absent keys survive, and a
// JSON null in the patch deletes the key.
func mergePreferences(base, patch json.RawMessage) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, fmt.Errorf("decode base: %w", err)
		}
	}

	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(patch, &incoming); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}

	for key, value := range incoming {
		if string(value) == "null" {
			delete(merged, key)
			continue
		}
		merged[key] = value
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged: %w", err)
	}
	return out, nil
}
