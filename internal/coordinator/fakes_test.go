package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/reelmatch/backend/internal/models"
	"github.com/reelmatch/backend/internal/repositories"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]models.Session)}
}

func (s *memSessionStore) Create(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Code == session.Code && !existing.Terminal() {
			return repositories.ErrConflict
		}
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *memSessionStore) FindByID(_ context.Context, id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, repositories.ErrNotFound
	}
	return session, nil
}

func (s *memSessionStore) FindByCode(_ context.Context, code string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, session := range s.sessions {
		if session.Code == code {
			return session, nil
		}
	}
	return models.Session{}, repositories.ErrNotFound
}

func (s *memSessionStore) Update(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *memSessionStore) DeclareWinner(_ context.Context, sessionID, itemKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if session.WinnerItemKey != nil || session.Terminal() {
		return false, nil
	}
	session.WinnerItemKey = &itemKey
	session.Status = models.StatusCompleted
	s.sessions[sessionID] = session
	return true, nil
}

func (s *memSessionStore) MarkNoMatch(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if session.WinnerItemKey != nil || session.Terminal() {
		return false, nil
	}
	session.Status = models.StatusNoMatch
	s.sessions[sessionID] = session
	return true, nil
}

func (s *memSessionStore) CodeInUse(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.Code == code && !session.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

type memParticipantStore struct {
	mu           sync.Mutex
	participants map[string]models.Participant
	order        []string
}

func newMemParticipantStore() *memParticipantStore {
	return &memParticipantStore{participants: make(map[string]models.Participant)}
}

func (s *memParticipantStore) Create(_ context.Context, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; ok {
		return repositories.ErrConflict
	}
	s.participants[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

func (s *memParticipantStore) FindByID(_ context.Context, id string) (models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return models.Participant{}, repositories.ErrNotFound
	}
	return p, nil
}

func (s *memParticipantStore) ListBySession(_ context.Context, sessionID string) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Participant
	for _, id := range s.order {
		if p := s.participants[id]; p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memParticipantStore) CountBySession(ctx context.Context, sessionID string) (int, error) {
	list, err := s.ListBySession(ctx, sessionID)
	return len(list), err
}

func (s *memParticipantStore) Update(_ context.Context, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.participants[p.ID] = p
	return nil
}

func (s *memParticipantStore) ResetQuestions(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.participants {
		if p.SessionID == sessionID {
			p.QuestionsCompleted = false
			s.participants[id] = p
		}
	}
	return nil
}

// memVoteStore mirrors the production store's behaviour, including the
// match check writing the winner through the session store.
type memVoteStore struct {
	mu       sync.Mutex
	votes    map[string]models.Vote
	sessions *memSessionStore
}

func newMemVoteStore(sessions *memSessionStore) *memVoteStore {
	return &memVoteStore{votes: make(map[string]models.Vote), sessions: sessions}
}

func voteKey(sessionID, participantID, itemKey string) string {
	return sessionID + "/" + participantID + "/" + itemKey
}

func (s *memVoteStore) Save(_ context.Context, vote models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey(vote.SessionID, vote.ParticipantID, vote.ItemKey)] = vote
	return nil
}

func (s *memVoteStore) Delete(_ context.Context, sessionID, participantID, itemKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey(sessionID, participantID, itemKey)
	if _, ok := s.votes[key]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.votes, key)
	return nil
}

func (s *memVoteStore) likers(sessionID, itemKey string) int {
	seen := make(map[string]struct{})
	for _, v := range s.votes {
		if v.SessionID == sessionID && v.ItemKey == itemKey && v.Liked {
			seen[v.ParticipantID] = struct{}{}
		}
	}
	return len(seen)
}

func (s *memVoteStore) DetectMatch(ctx context.Context, sessionID, itemKey string, rosterSize int) (bool, error) {
	s.mu.Lock()
	likers := s.likers(sessionID, itemKey)
	s.mu.Unlock()
	if rosterSize == 0 || likers < rosterSize {
		return false, nil
	}
	return s.sessions.DeclareWinner(ctx, sessionID, itemKey)
}

func (s *memVoteStore) ListByParticipant(_ context.Context, sessionID, participantID string) ([]models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Vote
	for _, v := range s.votes {
		if v.SessionID == sessionID && v.ParticipantID == participantID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memVoteStore) CountsPerParticipant(_ context.Context, sessionID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, v := range s.votes {
		if v.SessionID == sessionID {
			counts[v.ParticipantID]++
		}
	}
	return counts, nil
}

func (s *memVoteStore) UnanimousItems(_ context.Context, sessionID string, rosterSize int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rosterSize == 0 {
		return nil, nil
	}
	items := make(map[string]struct{})
	for _, v := range s.votes {
		if v.SessionID == sessionID && v.Liked {
			items[v.ItemKey] = struct{}{}
		}
	}
	var out []string
	for item := range items {
		if s.likers(sessionID, item) >= rosterSize {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memVoteStore) TopLiked(_ context.Context, sessionID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, v := range s.votes {
		if v.SessionID == sessionID && v.Liked {
			counts[v.ItemKey]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *memVoteStore) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.votes {
		if v.SessionID == sessionID {
			delete(s.votes, key)
		}
	}
	return nil
}

type memFinalVoteStore struct {
	mu    sync.Mutex
	votes map[string]models.FinalVote
}

func newMemFinalVoteStore() *memFinalVoteStore {
	return &memFinalVoteStore{votes: make(map[string]models.FinalVote)}
}

func (s *memFinalVoteStore) Create(_ context.Context, vote models.FinalVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := vote.SessionID + "/" + vote.ParticipantID
	if _, ok := s.votes[key]; ok {
		return repositories.ErrConflict
	}
	s.votes[key] = vote
	return nil
}

func (s *memFinalVoteStore) ListBySession(_ context.Context, sessionID string) ([]models.FinalVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FinalVote
	for _, v := range s.votes {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memFinalVoteStore) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.votes {
		if v.SessionID == sessionID {
			delete(s.votes, key)
		}
	}
	return nil
}

type recordedEvent struct {
	sessionID string
	name      string
	payload   any
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *capturingPublisher) Publish(sessionID, name string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{sessionID: sessionID, name: name, payload: payload})
}

func (p *capturingPublisher) names(sessionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.sessionID == sessionID {
			out = append(out, e.name)
		}
	}
	return out
}

type testEnv struct {
	sessions     *memSessionStore
	participants *memParticipantStore
	votes        *memVoteStore
	finalVotes   *memFinalVoteStore
	bus          *capturingPublisher
	coord        *Coordinator
}

func newTestEnv() *testEnv {
	sessions := newMemSessionStore()
	participants := newMemParticipantStore()
	votes := newMemVoteStore(sessions)
	finalVotes := newMemFinalVoteStore()
	bus := &capturingPublisher{}

	return &testEnv{
		sessions:     sessions,
		participants: participants,
		votes:        votes,
		finalVotes:   finalVotes,
		bus:          bus,
		coord:        New(sessions, participants, votes, finalVotes, bus),
	}
}
