// Package activity keeps the bounded log of recent admin actions shown on dashboards.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultCapacity = 20

// Entry types
const (
	TypeApplicationInReview = "application_in_review"
	TypeApplicationApproved = "application_approved"
	TypeApplicationRejected = "application_rejected"
	TypeNotificationSent    = "notification_sent"
)

type Entry struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"` // UTC
}

// Log is a fixed-capacity ring of entries; the oldest entry is overwritten once full.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    int // slot the next entry is written to
	size    int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

func (l *Log) Append(typ, message string) Entry {
	entry := Entry{
		ID:      uuid.NewString(),
		Type:    typ,
		Message: message,
		Date:    time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
	return entry
}

// List returns a copy of the entries, newest first.
func (l *Log) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := make([]Entry, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		list = append(list, l.entries[idx])
	}
	return list
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

func (l *Log) Capacity() int { return len(l.entries) }
