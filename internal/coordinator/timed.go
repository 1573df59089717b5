package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/reelmatch/backend/internal/models"
	"github.com/reelmatch/backend/internal/repositories"
)

var (
	// ErrNotTimedSession rejects timed-mode operations on classic sessions.
	ErrNotTimedSession = errors.New("session is not in timed mode")
	// ErrTimerRunning rejects resolution before the deadline.
	ErrTimerRunning = errors.New("swipe timer has not expired")
	// ErrNotVoting rejects final votes outside the voting phase.
	ErrNotVoting = errors.New("session is not in the final-vote phase")
	// ErrFinalVoteCast indicates the participant already cast a final vote.
	ErrFinalVoteCast = errors.New("final vote already cast")
	// ErrNotACandidate rejects final votes for items outside the reduced set.
	ErrNotACandidate = errors.New("item is not a final-vote candidate")
)

// finalVoteLimit caps the candidate set for the final-vote round.
const finalVoteLimit = 6

const finalCandidatesKey = "finalCandidates"

// ResolveTimedSession evaluates the accumulated votes at/after the deadline.
// Resolution is idempotent: resolving an already-resolved session reports
// the stored outcome instead of producing a second conflicting write, so it
// is safe for every client to call it when its local countdown ends.
func (c *Coordinator) ResolveTimedSession(ctx context.Context, sessionID string) (models.TimedResult, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return models.TimedResult{}, err
	}
	if !session.Timed() {
		return models.TimedResult{}, ErrNotTimedSession
	}

	// Already resolved by a concurrent caller: report the stored outcome.
	switch session.Status {
	case models.StatusCompleted:
		return models.TimedResult{Winner: session.WinnerItemKey}, nil
	case models.StatusNoMatch:
		return models.TimedResult{NoResults: true}, nil
	case models.StatusVoting:
		return models.TimedResult{Candidates: c.finalCandidates(session)}, nil
	}

	if session.TimerEndAt == nil || c.now().Before(*session.TimerEndAt) {
		return models.TimedResult{}, ErrTimerRunning
	}

	roster, err := c.Participants.CountBySession(ctx, session.ID)
	if err != nil {
		return models.TimedResult{}, fmt.Errorf("count roster: %w", err)
	}

	unanimous, err := c.Votes.UnanimousItems(ctx, session.ID, roster)
	if err != nil {
		return models.TimedResult{}, fmt.Errorf("find unanimous items: %w", err)
	}

	// Exactly one item everyone liked: immediate winner, no vote round.
	if len(unanimous) == 1 {
		return c.declareTimedWinner(ctx, session.ID, unanimous[0], false, nil)
	}

	candidates := unanimous
	if len(candidates) == 0 {
		candidates, err = c.Votes.TopLiked(ctx, session.ID, finalVoteLimit)
		if err != nil {
			return models.TimedResult{}, fmt.Errorf("find top liked items: %w", err)
		}
	}

	// Nobody liked anything: a distinct no-results outcome, not an error.
	if len(candidates) == 0 {
		marked, err := c.Sessions.MarkNoMatch(ctx, session.ID)
		if err != nil {
			return models.TimedResult{}, fmt.Errorf("mark no match: %w", err)
		}
		if marked {
			c.publish(session.ID, models.EventSessionUpdated, map[string]any{
				"status": models.StatusNoMatch,
			})
		}
		return models.TimedResult{NoResults: true}, nil
	}

	if len(candidates) > finalVoteLimit {
		candidates = candidates[:finalVoteLimit]
	}

	if err := c.startFinalVoteRound(ctx, session, candidates); err != nil {
		return models.TimedResult{}, err
	}

	return models.TimedResult{Candidates: candidates}, nil
}

func (c *Coordinator) startFinalVoteRound(ctx context.Context, session models.Session, candidates []string) error {
	encoded, err := json.Marshal(map[string]any{finalCandidatesKey: candidates})
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}
	merged, err := mergePreferences(session.Preferences, encoded)
	if err != nil {
		return fmt.Errorf("stash candidates: %w", err)
	}

	session.Status = models.StatusVoting
	session.Preferences = merged
	session.UpdatedAt = c.now()
	if err := c.Sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	c.publish(session.ID, models.EventSessionUpdated, map[string]any{
		"status":     models.StatusVoting,
		"candidates": candidates,
	})

	return nil
}

// finalCandidates reads the stored candidate set for the voting phase.
func (c *Coordinator) finalCandidates(session models.Session) []string {
	if len(session.Preferences) == 0 {
		return nil
	}
	var bag struct {
		Candidates []string `json:"finalCandidates"`
	}
	if err := json.Unmarshal(session.Preferences, &bag); err != nil {
		return nil
	}
	return bag.Candidates
}

// CastFinalVote records a participant's single pick from the reduced
// candidate set and, once the roster is complete, tallies the round.
func (c *Coordinator) CastFinalVote(ctx context.Context, sessionID, participantID, itemKey string) (*models.FinalTally, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusVoting {
		return nil, ErrNotVoting
	}

	participant, err := c.Participants.FindByID(ctx, participantID)
	if err != nil || participant.SessionID != session.ID {
		if err == nil || errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("find participant: %w", err)
	}

	candidates := c.finalCandidates(session)
	if !containsKey(candidates, itemKey) {
		return nil, ErrNotACandidate
	}

	err = c.FinalVotes.Create(ctx, models.FinalVote{
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		ItemKey:       itemKey,
		CreatedAt:     c.now(),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, ErrFinalVoteCast
		}
		return nil, fmt.Errorf("save final vote: %w", err)
	}

	// Progress ping only; clients re-fetch for detail.
	c.publish(session.ID, models.EventFinalVoteCast, map[string]any{})

	return c.tallyIfComplete(ctx, session)
}

// tallyIfComplete closes the final-vote round when every participant has
// voted. The winner write is the same write-once conditional update used by
// classic matches, so a concurrent duplicate tally is a no-op.
func (c *Coordinator) tallyIfComplete(ctx context.Context, session models.Session) (*models.FinalTally, error) {
	votes, err := c.FinalVotes.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list final votes: %w", err)
	}
	roster, err := c.Participants.CountBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("count roster: %w", err)
	}
	if len(votes) < roster {
		return nil, nil
	}

	counts := make(map[string]int)
	for _, v := range votes {
		counts[v.ItemKey]++
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	var tied []string
	for key, n := range counts {
		if n == max {
			tied = append(tied, key)
		}
	}
	sort.Strings(tied)

	winner := tied[0]
	wasTie := len(tied) > 1
	if wasTie {
		winner = TieBreak(session.ID, tied)
	}

	result, err := c.declareTimedWinner(ctx, session.ID, winner, wasTie, tied)
	if err != nil {
		return nil, err
	}
	if result.Winner == nil {
		return nil, nil
	}

	tally := &models.FinalTally{Winner: *result.Winner, WasTie: wasTie}
	if wasTie {
		tally.TiedItems = tied
	}
	return tally, nil
}

func (c *Coordinator) declareTimedWinner(ctx context.Context, sessionID, itemKey string, wasTie bool, tied []string) (models.TimedResult, error) {
	declared, err := c.Sessions.DeclareWinner(ctx, sessionID, itemKey)
	if err != nil {
		return models.TimedResult{}, fmt.Errorf("declare winner: %w", err)
	}
	if !declared {
		// Another caller resolved first; surface its stored outcome.
		session, err := c.getSession(ctx, sessionID)
		if err != nil {
			return models.TimedResult{}, err
		}
		return models.TimedResult{Winner: session.WinnerItemKey}, nil
	}

	payload := map[string]any{"winner": itemKey, "wasTie": wasTie}
	if wasTie {
		payload["tiedItems"] = tied
	}
	c.publish(sessionID, models.EventVotingComplete, payload)
	c.publish(sessionID, models.EventSessionUpdated, map[string]any{
		"status":        models.StatusCompleted,
		"winnerItemKey": itemKey,
	})

	return models.TimedResult{Winner: &itemKey}, nil
}

// Results returns the pollable outcome snapshot: the winner once decided,
// or the candidate set and running tally while a final-vote round is open.
// Clients that miss an event recover by calling this.
func (c *Coordinator) Results(ctx context.Context, sessionID string) (models.SessionResults, error) {
	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return models.SessionResults{}, err
	}

	results := models.SessionResults{
		Status:        session.Status,
		WinnerItemKey: session.WinnerItemKey,
		NoResults:     session.Status == models.StatusNoMatch,
	}

	if session.Status == models.StatusVoting {
		results.Candidates = c.finalCandidates(session)

		votes, err := c.FinalVotes.ListBySession(ctx, session.ID)
		if err != nil {
			return models.SessionResults{}, fmt.Errorf("list final votes: %w", err)
		}
		tally := make(map[string]int, len(results.Candidates))
		for _, v := range votes {
			tally[v.ItemKey]++
		}
		results.Tally = tally
	}

	return results, nil
}

// TieBreak picks one winner among tied items, uniformly pseudo-randomly but
// reproducibly: the same session and tied set always resolve to the same
// item, so every client recomputing the result agrees without a server push.
func TieBreak(sessionID string, tied []string) string {
	if len(tied) == 0 {
		return ""
	}
	keys := append([]string(nil), tied...)
	sort.Strings(keys)

	h := fnv.New64a()
	h.Write([]byte(sessionID))
	return keys[h.Sum64()%uint64(len(keys))]
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
