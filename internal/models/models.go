package models

import (
	"encoding/json"
	"time"
)

// Session statuses. A session only ever moves forward through
// waiting -> questions -> swiping -> {completed | no_match | voting -> completed}.
const (
	StatusWaiting   = "waiting"
	StatusQuestions = "questions"
	StatusSwiping   = "swiping"
	StatusVoting    = "voting"
	StatusCompleted = "completed"
	StatusNoMatch   = "no_match"
)

// Media types a session can swipe through.
const (
	MediaTypeMovies = "movies"
	MediaTypeShows  = "shows"
	MediaTypeBoth   = "both"
)

// Session is a single group-pick round, identified to humans by Code.
type Session struct {
	ID                string
	Code              string
	Status            string
	MediaType         string
	HostParticipantID string
	Preferences       json.RawMessage
	WinnerItemKey     *string
	TimedDurationMins *int
	TimerEndAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Timed reports whether the session runs with a swipe deadline instead of
// first-consensus-wins.
func (s Session) Timed() bool {
	return s.TimedDurationMins != nil && *s.TimedDurationMins > 0
}

// Terminal reports whether the session has reached an outcome.
func (s Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusNoMatch
}

// Participant is a member of a session's roster. Participants are never
// removed while the session lives; a disconnect is not a departure.
type Participant struct {
	ID                 string
	SessionID          string
	DisplayName        string
	IsGuest            bool
	AuthToken          string
	Preferences        FacetPreferences
	QuestionsCompleted bool
	CreatedAt          time.Time
}

// FacetPreferences captures one participant's stated likes and hard
// exclusions per facet. An empty slice means "no opinion", not "everything".
type FacetPreferences struct {
	Genres            []string `json:"genres,omitempty"`
	ExcludedGenres    []string `json:"excludedGenres,omitempty"`
	Eras              []string `json:"eras,omitempty"`
	ExcludedEras      []string `json:"excludedEras,omitempty"`
	Languages         []string `json:"languages,omitempty"`
	ExcludedLanguages []string `json:"excludedLanguages,omitempty"`
}

// AggregatedPreferences is the group-wide combination of every participant's
// facet choices: preferred values are unioned soft scoring signals,
// exclusions are unioned hard filters.
type AggregatedPreferences struct {
	Genres            []string
	ExcludedGenres    []string
	Eras              []string
	ExcludedEras      []string
	Languages         []string
	ExcludedLanguages []string
}

// Empty reports whether no participant expressed any preference at all.
func (a AggregatedPreferences) Empty() bool {
	return len(a.Genres) == 0 && len(a.Eras) == 0 && len(a.Languages) == 0 &&
		len(a.ExcludedGenres) == 0 && len(a.ExcludedEras) == 0 && len(a.ExcludedLanguages) == 0
}

// Vote is a participant's latest like/dislike for one item. The composite
// key (session, participant, item) means a re-vote replaces the prior one.
type Vote struct {
	SessionID     string
	ParticipantID string
	ItemKey       string
	Liked         bool
	CreatedAt     time.Time
}

// FinalVote is a timed-mode pick: exactly one per participant, immutable
// once cast.
type FinalVote struct {
	SessionID     string
	ParticipantID string
	ItemKey       string
	CreatedAt     time.Time
}

// MediaItem is an addressable entry from the upstream media catalog.
type MediaItem struct {
	ItemKey   string   `json:"itemKey"`
	Title     string   `json:"title"`
	Year      int      `json:"year"`
	MediaType string   `json:"mediaType"`
	Genres    []string `json:"genres"`
	Languages []string `json:"languages"`
	Labels    []string `json:"labels"`
	Thumb     string   `json:"thumb,omitempty"`
	Summary   string   `json:"summary,omitempty"`
}

// MatchResult is the outcome of a single vote submission.
type MatchResult struct {
	Match         bool    `json:"match"`
	WinnerItemKey *string `json:"winnerItemKey,omitempty"`
}

// TimedResult is the outcome of resolving a timed session at its deadline.
type TimedResult struct {
	// Winner is set when resolution produced an immediate outcome.
	Winner *string `json:"winner,omitempty"`
	// Candidates holds the reduced final-vote set when a vote round is needed.
	Candidates []string `json:"candidates,omitempty"`
	// NoResults is set when nobody liked anything: distinct from a completed
	// match, clients branch on it.
	NoResults bool `json:"noResults,omitempty"`
}

// SessionResults is the pollable outcome snapshot for a session: winner if
// decided, final-vote candidates and running tally while a vote round is
// open.
type SessionResults struct {
	Status        string         `json:"status"`
	WinnerItemKey *string        `json:"winnerItemKey,omitempty"`
	Candidates    []string       `json:"candidates,omitempty"`
	Tally         map[string]int `json:"tally,omitempty"`
	NoResults     bool           `json:"noResults,omitempty"`
}

// FinalTally is the outcome of a completed final-vote round.
type FinalTally struct {
	Winner    string   `json:"winner"`
	WasTie    bool     `json:"wasTie"`
	TiedItems []string `json:"tiedItems,omitempty"`
}

// ValidMediaType reports whether the supplied media type is recognised.
func ValidMediaType(mt string) bool {
	switch mt {
	case MediaTypeMovies, MediaTypeShows, MediaTypeBoth:
		return true
	}
	return false
}

var nextStatuses = map[string][]string{
	StatusWaiting:   {StatusQuestions},
	StatusQuestions: {StatusSwiping},
	StatusSwiping:   {StatusCompleted, StatusNoMatch, StatusVoting},
	StatusVoting:    {StatusCompleted, StatusNoMatch},
}

// CanTransition reports whether a session status may move from one value to
// another. Restarting a round is handled separately by the coordinator and
// is not a transition in this sense.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range nextStatuses[from] {
		if s == to {
			return true
		}
	}
	return false
}
