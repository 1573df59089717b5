// Package eventbus provides the per-session publish/subscribe channel that
// keeps connected clients in sync. Delivery is best-effort: a subscriber
// whose buffer is full misses the event and is expected to re-fetch
// authoritative session state.
package eventbus

import (
	"sync"

	"github.com/reelmatch/backend/internal/models"
)

const subscriberBuffer = 32

// Subscriber receives events for a single session until closed.
type Subscriber struct {
	sessionID string
	ch        chan models.Event

	mu     sync.Mutex
	closed bool
}

// Events returns the receive channel. It is closed when the subscription
// ends.
func (s *Subscriber) Events() <-chan models.Event {
	return s.ch
}

// SessionID identifies the session this subscriber is attached to.
func (s *Subscriber) SessionID() string {
	return s.sessionID
}

func (s *Subscriber) deliver(e models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// Slow consumer: drop. Clients recover by polling.
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus fans events out to the subscribers of each session. Events never cross
// session boundaries.
type Bus struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

// New constructs an empty in-process bus.
func New() *Bus {
	return &Bus{rooms: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe attaches a new subscriber to the session's channel.
func (b *Bus) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		ch:        make(chan models.Event, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.rooms[sessionID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		b.rooms[sessionID] = room
	}
	room[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches the subscriber and closes its channel. Safe to call
// more than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if room, ok := b.rooms[sub.sessionID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(b.rooms, sub.sessionID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

// Publish delivers a named event to every current subscriber of the session.
// Order is preserved within a single Publish call; nothing is guaranteed
// across independent publishers.
func (b *Bus) Publish(sessionID, name string, payload any) {
	event := models.Event{Name: name, Payload: payload}

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.rooms[sessionID]))
	for sub := range b.rooms[sessionID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
}

// SubscriberCount reports how many subscribers a session currently has.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[sessionID])
}
