// Package timeline keeps the append-only audit trail of tickets and work orders.
package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Entry is the caller-supplied part of a new timeline event.
type Entry struct {
	Action    domain.TimelineAction
	ActorID   string
	ActorName string
	Details   string
	At        time.Time
}

// Log is an append-only sequence of events. Existing events are never rewritten.
type Log struct {
	events []domain.TimelineEvent
}

// New wraps already persisted events. The slice is copied.
func New(events []domain.TimelineEvent) *Log {
	return &Log{events: append([]domain.TimelineEvent(nil), events...)}
}

// Append adds one event at the end and returns it.
// Seq continues from the last event and timestamps never go backwards.
func (l *Log) Append(entry Entry) domain.TimelineEvent {
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if n := len(l.events); n > 0 && at.Before(l.events[n-1].Timestamp) {
		at = l.events[n-1].Timestamp
	}
	event := domain.TimelineEvent{
		ID:        uuid.NewString(),
		Seq:       len(l.events) + 1,
		Timestamp: at,
		Action:    entry.Action,
		ActorID:   entry.ActorID,
		ActorName: entry.ActorName,
		Details:   entry.Details,
	}
	l.events = append(l.events, event)
	return event
}

// Events returns a copy of all events in order.
func (l *Log) Events() []domain.TimelineEvent {
	return append([]domain.TimelineEvent(nil), l.events...)
}

// Since returns the events with Seq greater than seq.
func (l *Log) Since(seq int) []domain.TimelineEvent {
	if seq < 0 {
		seq = 0
	}
	if seq >= len(l.events) {
		return nil
	}
	return append([]domain.TimelineEvent(nil), l.events[seq:]...)
}

// Len returns the number of events.
func (l *Log) Len() int {
	return len(l.events)
}

// Last returns the newest event, if any.
func (l *Log) Last() (domain.TimelineEvent, bool) {
	if len(l.events) == 0 {
		return domain.TimelineEvent{}, false
	}
	return l.events[len(l.events)-1], true
}

// Validate checks the ordering invariants of a stored timeline.
func Validate(events []domain.TimelineEvent) error {
	for i, ev := range events {
		if ev.Seq != i+1 {
			return fmt.Errorf("timeline event %s has seq %d, want %d", ev.ID, ev.Seq, i+1)
		}
		if i > 0 && ev.Timestamp.Before(events[i-1].Timestamp) {
			return fmt.Errorf("timeline event %s is older than its predecessor", ev.ID)
		}
	}
	return nil
}

// IsPrefix reports whether before is an unmodified prefix of after.
// Stores use it to refuse saves that would rewrite history.
func IsPrefix(before, after []domain.TimelineEvent) bool {
	if len(before) > len(after) {
		return false
	}
	for i := range before {
		if before[i] != after[i] {
			return false
		}
	}
	return true
}
