// Package notification fans realtime events out to the live sessions of a user.
package notification

import (
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	KindStatusUpdate Kind = "status_update"
	KindAdhoc        Kind = "adhoc"
)

// Event names as seen by clients.
const (
	EventJoined                   = "joined"
	EventApplicationStatusUpdated = "applicationStatusUpdated"
	EventNotification             = "notification"
	EventError                    = "error"
	EventPong                     = "pong"
)

type Event struct {
	Kind      Kind        `json:"-"`
	Name      string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"-"`
}

// Adhoc is the payload of a generic "notification" event.
type Adhoc struct {
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

func NewStatusUpdate(data interface{}) Event {
	return Event{Kind: KindStatusUpdate, Name: EventApplicationStatusUpdated, Data: data, Timestamp: time.Now().UTC()}
}

func NewAdhoc(title string) Event {
	now := time.Now().UTC()
	return Event{Kind: KindAdhoc, Name: EventNotification, Data: Adhoc{Title: title, Date: now}, Timestamp: now}
}

// Session is one live connection of a user.
// Deliver must not block; it reports whether the event was accepted.
type Session interface {
	Deliver(evt Event) bool
}

// Hub keeps the channel registry: userID -> joined sessions.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[Session]struct{}

	sent    int64 // events emitted
	dropped int64 // per-session deliveries refused
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[Session]struct{})}
}

// Join adds s to the channel of userID. The returned func removes it and is safe to call more than once.
func (h *Hub) Join(userID string, s Session) (leave func()) {
	h.mu.Lock()
	sessions, ok := h.channels[userID]
	if !ok {
		sessions = make(map[Session]struct{})
		h.channels[userID] = sessions
	}
	sessions[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.leave(userID, s) })
	}
}

func (h *Hub) leave(userID string, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.channels[userID]
	if !ok {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(h.channels, userID)
	}
}

// Emit delivers evt to every session currently joined to userID's channel
// and returns how many accepted it. Sessions that are not connected miss the event.
func (h *Hub) Emit(userID string, evt Event) int {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	targets := make([]Session, 0, len(h.channels[userID]))
	for s := range h.channels[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	atomic.AddInt64(&h.sent, 1)

	var delivered int
	for _, s := range targets {
		if s.Deliver(evt) {
			delivered++
		} else {
			atomic.AddInt64(&h.dropped, 1)
		}
	}
	return delivered
}

// Sent is the number of events emitted since start.
func (h *Hub) Sent() int64 { return atomic.LoadInt64(&h.sent) }

// Dropped is the number of deliveries refused by full or closed sessions.
func (h *Hub) Dropped() int64 { return atomic.LoadInt64(&h.dropped) }

// Sessions returns the number of live sessions joined to userID's channel.
func (h *Hub) Sessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID])
}

// Total returns the number of live sessions across all channels.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var n int
	for _, sessions := range h.channels {
		n += len(sessions)
	}
	return n
}

// ChanSession is a Session backed by a bounded channel. When the buffer is full the event is dropped.
type ChanSession struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func NewChanSession(buffer int) *ChanSession {
	return &ChanSession{ch: make(chan Event, buffer)}
}

func (s *ChanSession) Deliver(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Events is drained by the writer of the underlying connection.
func (s *ChanSession) Events() <-chan Event { return s.ch }

// Close stops delivery and closes Events.
func (s *ChanSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
