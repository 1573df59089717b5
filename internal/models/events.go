package models

// Event names published on a session's channel. Every broadcast-driven
// transition has a matching fetchable state endpoint, so a client that
// misses an event recovers by re-polling.
const (
	EventParticipantJoined  = "participant_joined"
	EventParticipantUpdated = "participant_updated"
	EventSessionUpdated     = "session_updated"
	EventVoteAdded          = "vote_added"
	EventFinalVoteCast      = "final_vote_cast"
	EventVotingComplete     = "voting_complete"
)

// Event is a named payload delivered to session subscribers.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}
