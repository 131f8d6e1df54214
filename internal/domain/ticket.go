package domain

import "time"

// TicketType distinguishes the two kinds of service request.
type TicketType string

const (
	TicketTypeRepair  TicketType = "repair"
	TicketTypeMeeting TicketType = "meeting"
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	return t == TicketTypeRepair || t == TicketTypeMeeting
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusSubmitted          TicketStatus = "submitted"
	TicketStatusApproved           TicketStatus = "approved"
	TicketStatusAssigned           TicketStatus = "assigned"
	TicketStatusAccepted           TicketStatus = "accepted"
	TicketStatusDiagnosing         TicketStatus = "diagnosing"
	TicketStatusRepairing          TicketStatus = "repairing"
	TicketStatusOnHold             TicketStatus = "on_hold"
	TicketStatusResolved           TicketStatus = "resolved"
	TicketStatusClosed             TicketStatus = "closed"
	TicketStatusClosedUnrepairable TicketStatus = "closed_unrepairable"
	TicketStatusRejected           TicketStatus = "rejected"
	TicketStatusCancelled          TicketStatus = "cancelled"
)

// IsTerminal reports whether no further transition is defined from s.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusClosed, TicketStatusClosedUnrepairable, TicketStatusRejected, TicketStatusCancelled:
		return true
	}
	return false
}

// repairStatuses and meetingStatuses are the status sets of each type's graph.
var (
	repairStatuses = map[TicketStatus]struct{}{
		TicketStatusSubmitted: {}, TicketStatusApproved: {}, TicketStatusAssigned: {},
		TicketStatusAccepted: {}, TicketStatusDiagnosing: {}, TicketStatusRepairing: {},
		TicketStatusOnHold: {}, TicketStatusResolved: {}, TicketStatusClosed: {},
		TicketStatusClosedUnrepairable: {}, TicketStatusRejected: {}, TicketStatusCancelled: {},
	}
	meetingStatuses = map[TicketStatus]struct{}{
		TicketStatusSubmitted: {}, TicketStatusApproved: {}, TicketStatusClosed: {},
		TicketStatusRejected: {}, TicketStatusCancelled: {},
	}
)

// BelongsTo reports whether s is part of the transition graph of t.
func (s TicketStatus) BelongsTo(t TicketType) bool {
	switch t {
	case TicketTypeRepair:
		_, ok := repairStatuses[s]
		return ok
	case TicketTypeMeeting:
		_, ok := meetingStatuses[s]
		return ok
	}
	return false
}

// HoldsTechnician reports whether a repair ticket in status s must carry an assigned technician.
func (s TicketStatus) HoldsTechnician() bool {
	switch s {
	case TicketStatusAssigned, TicketStatusAccepted, TicketStatusDiagnosing, TicketStatusRepairing,
		TicketStatusOnHold, TicketStatusResolved, TicketStatusClosedUnrepairable:
		return true
	}
	return false
}

// TicketPriority enumerates business priority.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketUrgency enumerates how soon the requester needs the service.
type TicketUrgency string

const (
	TicketUrgencyLow      TicketUrgency = "low"
	TicketUrgencyNormal   TicketUrgency = "normal"
	TicketUrgencyHigh     TicketUrgency = "high"
	TicketUrgencyCritical TicketUrgency = "critical"
)

// Ticket is the aggregate for service requests.
type Ticket struct {
	ID                   string
	TicketNumber         string
	Type                 TicketType
	Status               TicketStatus
	RequesterID          string
	AssignedTechnicianID *string
	Priority             TicketPriority
	Urgency              TicketUrgency
	Data                 map[string]any
	Diagnosis            *Diagnosis
	WorkOrderIDs         []string
	Timeline             []TimelineEvent
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ClosedAt             *time.Time
}

// IsAssignedTo reports whether userID is the ticket's technician.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedTechnicianID != nil && *t.AssignedTechnicianID == userID
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	if t.AssignedTechnicianID != nil {
		id := *t.AssignedTechnicianID
		out.AssignedTechnicianID = &id
	}
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		out.ClosedAt = &at
	}
	out.Data = cloneData(t.Data)
	if t.Diagnosis != nil {
		d := *t.Diagnosis
		out.Diagnosis = &d
	}
	out.WorkOrderIDs = append([]string(nil), t.WorkOrderIDs...)
	out.Timeline = append([]TimelineEvent(nil), t.Timeline...)
	return &out
}

func cloneData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case []any:
			out[k] = append([]any(nil), val...)
		case []string:
			out[k] = append([]string(nil), val...)
		case map[string]any:
			out[k] = cloneData(val)
		default:
			out[k] = v
		}
	}
	return out
}
