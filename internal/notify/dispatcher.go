// Package notify computes who hears about a ticket transition and hands the
// resulting notifications to a delivery sink.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// UserDirectory resolves stakeholder roles to users.
type UserDirectory interface {
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
}

// Event is one committed ticket timeline entry as the dispatcher sees it.
type Event struct {
	Tag     domain.TimelineAction
	Ticket  *domain.Ticket
	ActorID string
	// WorkOrder is set for WORK_ORDER_* tags.
	WorkOrder *domain.WorkOrder
	// PreviousTechnicianID is the technician who declined, for ASSIGNMENT_REJECTED.
	PreviousTechnicianID string
	// ReadyToResume marks the work order event that released the last blocking order.
	ReadyToResume bool
	Reason        string
}

// Dispatcher turns events into per-recipient notifications.
type Dispatcher struct {
	users UserDirectory
	now   func() time.Time
}

// NewDispatcher builds a dispatcher backed by users.
func NewDispatcher(users UserDirectory) *Dispatcher {
	return &Dispatcher{users: users, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the creation timestamp source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Recipients returns one notification per stakeholder, sorted by user ID.
// The actor never notifies themselves.
func (d *Dispatcher) Recipients(ctx context.Context, ev Event) ([]domain.Notification, error) {
	if ev.Ticket == nil {
		return nil, fmt.Errorf("notify: event %s has no ticket", ev.Tag)
	}
	ids := make(map[string]struct{})
	add := func(id string) {
		if id != "" && id != ev.ActorID {
			ids[id] = struct{}{}
		}
	}

	add(ev.Ticket.RequesterID)
	if ev.Tag == domain.ActionTagAssignmentRejected {
		add(ev.PreviousTechnicianID)
	}
	if ev.Ticket.AssignedTechnicianID != nil {
		add(*ev.Ticket.AssignedTechnicianID)
	}

	for _, role := range stakeholderRoles(ev) {
		users, err := d.users.ListByRole(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("notify: list %s: %w", role, err)
		}
		for _, u := range users {
			if u.Active {
				add(u.ID)
			}
		}
	}

	if len(ids) == 0 {
		return nil, nil
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	msg := compose(ev)
	createdAt := d.now()
	out := make([]domain.Notification, 0, len(sorted))
	for _, userID := range sorted {
		out = append(out, domain.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			TicketID:  ev.Ticket.ID,
			Title:     msg.title,
			Message:   msg.body,
			Type:      msg.kind,
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

// stakeholderRoles names the roles expected to act next after ev.
func stakeholderRoles(ev Event) []domain.Role {
	switch ev.Tag {
	case domain.ActionTagSubmitted, domain.ActionTagAssignmentRejected,
		domain.ActionTagWorkOrderFailed, domain.ActionTagClosed,
		domain.ActionTagCancelled, domain.ActionTagClosedUnrepairable:
		return []domain.Role{domain.RoleServiceAdmin}
	case domain.ActionTagApproved:
		if ev.Ticket.Type == domain.TicketTypeRepair {
			return []domain.Role{domain.RoleServiceAdmin}
		}
	case domain.ActionTagDiagnosisCompleted:
		if ev.Ticket.Diagnosis == nil {
			return nil
		}
		switch rt := ev.Ticket.Diagnosis.RepairType; {
		case rt.NeedsWorkOrder():
			return []domain.Role{domain.RoleProviderAdmin}
		case rt == domain.RepairTypeUnrepairable:
			return []domain.Role{domain.RoleServiceAdmin}
		}
	case domain.ActionTagWorkOrderCreated:
		return []domain.Role{domain.RoleServiceAdmin, domain.RoleProviderAdmin}
	}
	return nil
}
