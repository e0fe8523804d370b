package memory

import (
	"context"
	"sync"

	"github.com/audiophile/account-core/internal/core/domain"
)

const defaultEventCapacity = 1000

// SecurityEventLog keeps the most recent security events in memory. Older
// entries are overwritten once capacity is reached.
type SecurityEventLog struct {
	mu       sync.Mutex
	events   []domain.SecurityEvent
	next     int
	full     bool
	capacity int
}

func NewSecurityEventLog(capacity int) *SecurityEventLog {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &SecurityEventLog{events: make([]domain.SecurityEvent, capacity), capacity: capacity}
}

func (l *SecurityEventLog) InsertSecurityEvent(_ context.Context, event *domain.SecurityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events[l.next] = *event
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// Recent returns the retained events, oldest first.
func (l *SecurityEventLog) Recent() []domain.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		return append([]domain.SecurityEvent(nil), l.events[:l.next]...)
	}
	out := make([]domain.SecurityEvent, 0, l.capacity)
	out = append(out, l.events[l.next:]...)
	return append(out, l.events[:l.next]...)
}
