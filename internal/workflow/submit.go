package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/servicedesk/internal/authz"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/notify"
	"github.com/spec-kit/servicedesk/internal/timeline"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

// SubmitInput is a new service request.
type SubmitInput struct {
	Type     domain.TicketType
	Priority domain.TicketPriority
	Urgency  domain.TicketUrgency
	Data     map[string]any
}

// RepairData is the type-specific payload of a repair ticket.
type RepairData struct {
	EquipmentName string `json:"equipment_name" validate:"notblank"`
	EquipmentCode string `json:"equipment_code"`
	Location      string `json:"location" validate:"notblank"`
	Complaint     string `json:"complaint" validate:"notblank"`
}

// MeetingData is the type-specific payload of a meeting room booking.
type MeetingData struct {
	Room      string    `json:"room" validate:"notblank"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	EndAt     time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	Attendees []string  `json:"attendees" validate:"required,min=1,dive,notblank"`
	Agenda    string    `json:"agenda"`
}

// Submit creates a ticket in status submitted with its SUBMITTED event.
// The returned ticket has version 0 and is not yet stored.
func (m *Machine) Submit(actor *domain.User, activeRole domain.Role, in SubmitInput) (*Result, error) {
	if actor == nil {
		return nil, apperrors.NewNotFound("user", nil)
	}
	if !actor.Active {
		return nil, apperrors.NewForbidden("user is inactive")
	}
	draft := &domain.Ticket{RequesterID: actor.ID, Type: in.Type}
	if err := m.gate.Check(authz.SubjectFor(actor, activeRole), domain.ActionSubmit, draft); err != nil {
		return nil, err
	}

	if !in.Type.Valid() {
		return nil, apperrors.NewFieldError("type", "must be repair or meeting")
	}
	priority, urgency, err := grading(in.Priority, in.Urgency)
	if err != nil {
		return nil, err
	}
	if err := validateData(in.Type, in.Data); err != nil {
		return nil, err
	}

	now := m.now()
	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: ticketNumber(in.Type, now),
		Type:         in.Type,
		Status:       domain.TicketStatusSubmitted,
		RequesterID:  actor.ID,
		Priority:     priority,
		Urgency:      urgency,
		Data:         in.Data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ticket = ticket.Clone()

	log := timeline.New(nil)
	event := log.Append(timeline.Entry{
		Action:    domain.ActionTagSubmitted,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Details:   fmt.Sprintf("%s request submitted", in.Type),
		At:        now,
	})
	ticket.Timeline = log.Events()

	return &Result{
		Ticket: ticket,
		Event:  event,
		Notify: notify.Event{Tag: domain.ActionTagSubmitted, Ticket: ticket, ActorID: actor.ID},
	}, nil
}

func grading(p domain.TicketPriority, u domain.TicketUrgency) (domain.TicketPriority, domain.TicketUrgency, error) {
	if p == "" {
		p = domain.TicketPriorityMedium
	}
	switch p {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
	default:
		return "", "", apperrors.NewFieldError("priority", "must be one of: low medium high urgent")
	}
	if u == "" {
		u = domain.TicketUrgencyNormal
	}
	switch u {
	case domain.TicketUrgencyLow, domain.TicketUrgencyNormal, domain.TicketUrgencyHigh, domain.TicketUrgencyCritical:
	default:
		return "", "", apperrors.NewFieldError("urgency", "must be one of: low normal high critical")
	}
	return p, u, nil
}

// validateData decodes the free-form payload into the typed shape for t.
func validateData(t domain.TicketType, data map[string]any) error {
	if len(data) == 0 {
		return apperrors.NewFieldError("data", "is required")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return apperrors.NewFieldError("data", "is not valid JSON")
	}
	var target any
	switch t {
	case domain.TicketTypeRepair:
		target = &RepairData{}
	case domain.TicketTypeMeeting:
		target = &MeetingData{}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return apperrors.NewFieldError("data", "has malformed fields: "+err.Error())
	}
	return validateStruct("data", target)
}

func ticketNumber(t domain.TicketType, at time.Time) string {
	prefix := "REP"
	if t == domain.TicketTypeMeeting {
		prefix = "MTG"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}
