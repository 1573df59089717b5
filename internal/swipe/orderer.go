package swipe

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/reelmatch/backend/internal/models"
)

// OrderMode selects how a candidate deck is arranged.
type OrderMode string

const (
	// OrderFixed yields one canonical order shared by every participant,
	// stable across reloads for the same session.
	OrderFixed OrderMode = "fixed"
	// OrderRandom yields a fresh base shuffle per call, with preference
	// scoring stable-sorted on top when any preference exists.
	OrderRandom OrderMode = "random"
)

// Additive facet score constants. No partial credit and no weighting beyond
// these; ties are expected and broken by seeded shuffle.
const (
	genreScore    = 100
	languageScore = 75
	eraScore      = 50
)

// SessionSeed derives the deterministic ordering seed for a session from its
// identity and creation time. It is reproducible from stored fields, so it
// never needs to be persisted itself.
func SessionSeed(sessionID string, createdAt time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	h.Write([]byte(strconv.FormatInt(createdAt.UTC().Unix(), 10)))
	return int64(h.Sum64())
}

// Score computes the preference score for one item. now anchors the
// "recent" era bucket.
func Score(item models.MediaItem, prefs models.AggregatedPreferences, now time.Time) int {
	score := 0
	if genresIntersect(item.Genres, prefs.Genres) {
		score += genreScore
	}
	if yearInEras(item.Year, prefs.Eras, now) {
		score += eraScore
	}
	if stringsIntersect(item.Languages, prefs.Languages) {
		score += languageScore
	}
	return score
}

// Order arranges the candidate deck for one participant. The input slice is
// not mutated. Callers apply exclusion, collection, and watched-item filters
// before ordering.
func Order(items []models.MediaItem, prefs models.AggregatedPreferences, sessionSeed int64, mode OrderMode, now time.Time) []models.MediaItem {
	out := make([]models.MediaItem, len(items))
	copy(out, items)

	switch mode {
	case OrderRandom:
		rng := rand.New(rand.NewSource(now.UnixNano()))
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		if !prefs.Empty() {
			sort.SliceStable(out, func(i, j int) bool {
				return Score(out[i], prefs, now) > Score(out[j], prefs, now)
			})
		}
		return out
	default:
		return orderFixed(out, prefs, sessionSeed, now)
	}
}

// orderFixed sorts by score descending, then shuffles within each
// equal-score group with a seed derived from sessionSeed plus the group's
// score, so every client reproduces the same deck.
func orderFixed(items []models.MediaItem, prefs models.AggregatedPreferences, sessionSeed int64, now time.Time) []models.MediaItem {
	type scored struct {
		item  models.MediaItem
		score int
	}

	ranked := make([]scored, len(items))
	for i, item := range items {
		ranked[i] = scored{item: item, score: Score(item, prefs, now)}
	}

	// Stable pre-sort by item key so groups are input-order independent.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.ItemKey < ranked[j].item.ItemKey
	})

	out := items[:0]
	for start := 0; start < len(ranked); {
		end := start
		for end < len(ranked) && ranked[end].score == ranked[start].score {
			end++
		}
		group := make([]models.MediaItem, 0, end-start)
		for _, s := range ranked[start:end] {
			group = append(group, s.item)
		}
		rng := rand.New(rand.NewSource(sessionSeed + int64(ranked[start].score)))
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		out = append(out, group...)
		start = end
	}
	return out
}

// FilterExcluded removes items hit by any participant's exclusions. One
// participant excluding a genre removes it for the whole group.
func FilterExcluded(items []models.MediaItem, prefs models.AggregatedPreferences, now time.Time) []models.MediaItem {
	var out []models.MediaItem
	for _, item := range items {
		if genresIntersect(item.Genres, prefs.ExcludedGenres) {
			continue
		}
		if yearInEras(item.Year, prefs.ExcludedEras, now) {
			continue
		}
		if stringsIntersect(item.Languages, prefs.ExcludedLanguages) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func stringsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[normalize(v)] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[normalize(v)]; ok {
			return true
		}
	}
	return false
}
