package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reelmatch/backend/internal/models"
	"github.com/reelmatch/backend/internal/repositories"
	"github.com/reelmatch/backend/internal/swipe"
)

// Catalog is the upstream media-server collaborator. The coordinator only
// reads through it; fetching and caching are the implementation's concern.
type Catalog interface {
	GetItems(ctx context.Context, libraryKeys []string, mediaType string) ([]models.MediaItem, error)
}

// WatchedLister optionally reports items a catalog-linked participant has
// already watched so they can be filtered from that participant's deck.
type WatchedLister interface {
	WatchedKeys(ctx context.Context, authToken string, mediaType string) ([]string, error)
}

// deckPrefs is the subset of the session preference bag the deck builder
// reads.
type deckPrefs struct {
	Libraries   []string `json:"libraries"`
	Collections []string `json:"collections"`
	OrderMode   string   `json:"orderMode"`
}

// BuildDeck assembles the ordered candidate list one participant swipes
// through: catalog snapshot, group exclusion filters, collection
// restriction, the participant's watched-item filter, then scoring and
// ordering. With fixed ordering the result is identical on every call for
// the same session, which is what lets a reconnecting client resume
// mid-deck.
func (c *Coordinator) BuildDeck(ctx context.Context, sessionID, participantID string) ([]models.MediaItem, error) {
	if c.Catalog == nil {
		return nil, errors.New("media catalog not configured")
	}

	session, err := c.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	participant, err := c.Participants.FindByID(ctx, participantID)
	if err != nil || participant.SessionID != session.ID {
		if err == nil || errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("find participant: %w", err)
	}

	roster, err := c.Participants.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	agg := AggregatePreferences(roster)

	var prefs deckPrefs
	if len(session.Preferences) > 0 {
		if err := json.Unmarshal(session.Preferences, &prefs); err != nil {
			return nil, fmt.Errorf("decode session preferences: %w", err)
		}
	}

	items, err := c.Catalog.GetItems(ctx, prefs.Libraries, session.MediaType)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog items: %w", err)
	}

	now := c.now()
	items = swipe.FilterExcluded(items, agg, now)
	items = filterCollections(items, prefs.Collections)

	if participant.AuthToken != "" {
		if lister, ok := c.Catalog.(WatchedLister); ok {
			watched, err := lister.WatchedKeys(ctx, participant.AuthToken, session.MediaType)
			if err != nil {
				// Watched filtering is an enhancement; a failed lookup
				// must not block the deck.
				c.logger().Warn("watched lookup failed", "sessionId", session.ID, "participantId", participant.ID, "error", err)
			} else {
				items = filterKeys(items, watched)
			}
		}
	}

	mode := swipe.OrderFixed
	if prefs.OrderMode == string(swipe.OrderRandom) {
		mode = swipe.OrderRandom
	}

	seed := swipe.SessionSeed(session.ID, session.CreatedAt)
	return swipe.Order(items, agg, seed, mode, now), nil
}

// filterCollections restricts the deck to items carrying at least one of
// the selected collection labels. An empty selection means no restriction.
func filterCollections(items []models.MediaItem, collections []string) []models.MediaItem {
	if len(collections) == 0 {
		return items
	}
	wanted := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		wanted[c] = struct{}{}
	}
	var out []models.MediaItem
	for _, item := range items {
		for _, label := range item.Labels {
			if _, ok := wanted[label]; ok {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func filterKeys(items []models.MediaItem, drop []string) []models.MediaItem {
	if len(drop) == 0 {
		return items
	}
	set := make(map[string]struct{}, len(drop))
	for _, k := range drop {
		set[k] = struct{}{}
	}
	var out []models.MediaItem
	for _, item := range items {
		if _, ok := set[item.ItemKey]; ok {
			continue
		}
		out = append(out, item)
	}
	return out
}
