package events

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	// EventTransitionCommitted fires after a workflow transition, including ticket
	// submission, has been committed together with its notifications.
	EventTransitionCommitted EventType = "transition_committed"
)

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TransitionCommittedPayload describes one committed transition.
type TransitionCommittedPayload struct {
	Action        domain.Action         `json:"action"`
	Tag           domain.TimelineAction `json:"tag"`
	From          domain.TicketStatus   `json:"from"`
	To            domain.TicketStatus   `json:"to"`
	WorkOrderID   string                `json:"work_order_id,omitempty"`
	Notifications []domain.Notification `json:"notifications"`
}
