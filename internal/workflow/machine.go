// Package workflow holds the ticket lifecycle state machine together with its
// diagnosis and work order subflows.
//
// Repair tickets:
//
//	submitted -> approved -> assigned -> diagnosing -> repairing -> resolved -> closed
//	                                         |  ^          ^
//	                                         v  |          |
//	                                       on_hold ---------+ (resume_repair)
//	diagnosing -> closed_unrepairable
//	submitted|approved -> rejected, submitted -> cancelled
//	assigned -> approved (technician declines)
//	accepted -> diagnosing (rows persisted by older clients)
//
// Meeting tickets:
//
//	submitted -> approved -> closed, submitted -> rejected|cancelled
//
// Apply evaluates a request in a fixed order: known action, authorization,
// terminal status, transition guard, payload. Nothing is mutated until all of
// them pass, and the caller receives copies.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/servicedesk/internal/authz"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/notify"
	"github.com/spec-kit/servicedesk/internal/timeline"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

// UserLookup resolves the technician named by an assign payload.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Request is one transition attempt.
type Request struct {
	Ticket *domain.Ticket
	// WorkOrders are all orders owned by Ticket.
	WorkOrders []*domain.WorkOrder
	// WorkOrderID selects the target of a work order action.
	WorkOrderID string
	Action      domain.Action
	Actor       *domain.User
	ActiveRole  domain.Role
	Payload     Payload
}

// Result is the outcome of a successful transition. Ticket and the work
// orders still carry the versions they were loaded with; stores bump them.
type Result struct {
	Ticket            *domain.Ticket
	From              domain.TicketStatus
	Event             domain.TimelineEvent
	CreatedWorkOrders []*domain.WorkOrder
	UpdatedWorkOrders []*domain.WorkOrder
	// WorkOrders is the full set owned by the ticket after the transition.
	WorkOrders []*domain.WorkOrder
	Notify     notify.Event
}

type ticketRule struct {
	from  []domain.TicketStatus
	types []domain.TicketType
	// when narrows from for rules that differ by ticket type.
	when  func(t *domain.Ticket) bool
	apply func(ctx context.Context, m *Machine, c *change) error
}

var (
	repairOnly  = []domain.TicketType{domain.TicketTypeRepair}
	meetingOnly = []domain.TicketType{domain.TicketTypeMeeting}
)

// ticketRules is the transition table. A rule without source statuses can
// never fire on a stored ticket; submit creates tickets through Submit instead.
var ticketRules = map[domain.Action]ticketRule{
	domain.ActionSubmit: {},
	domain.ActionApprove: {
		from:  []domain.TicketStatus{domain.TicketStatusSubmitted},
		apply: applyApprove,
	},
	domain.ActionReject: {
		from: []domain.TicketStatus{domain.TicketStatusSubmitted, domain.TicketStatusApproved},
		when: func(t *domain.Ticket) bool {
			return t.Type == domain.TicketTypeRepair || t.Status == domain.TicketStatusSubmitted
		},
		apply: applyReject,
	},
	domain.ActionCancel: {
		from:  []domain.TicketStatus{domain.TicketStatusSubmitted},
		apply: applyCancel,
	},
	domain.ActionAssign: {
		from:  []domain.TicketStatus{domain.TicketStatusApproved},
		types: repairOnly,
		apply: applyAssign,
	},
	domain.ActionAccept: {
		from:  []domain.TicketStatus{domain.TicketStatusAssigned},
		types: repairOnly,
		apply: applyAccept,
	},
	domain.ActionRejectAssignment: {
		from:  []domain.TicketStatus{domain.TicketStatusAssigned},
		types: repairOnly,
		apply: applyRejectAssignment,
	},
	domain.ActionStartDiagnosis: {
		from:  []domain.TicketStatus{domain.TicketStatusAccepted},
		types: repairOnly,
		apply: applyStartDiagnosis,
	},
	domain.ActionSubmitDiagnosis: {
		from:  []domain.TicketStatus{domain.TicketStatusDiagnosing, domain.TicketStatusOnHold, domain.TicketStatusRepairing},
		types: repairOnly,
		apply: func(_ context.Context, _ *Machine, c *change) error { return applyDiagnosis(c) },
	},
	domain.ActionCreateWorkOrder: {
		from:  []domain.TicketStatus{domain.TicketStatusOnHold, domain.TicketStatusRepairing},
		types: repairOnly,
		apply: applyCreateWorkOrder,
	},
	domain.ActionResumeRepair: {
		from:  []domain.TicketStatus{domain.TicketStatusOnHold},
		types: repairOnly,
		apply: applyResumeRepair,
	},
	domain.ActionCompleteRepair: {
		from:  []domain.TicketStatus{domain.TicketStatusRepairing},
		types: repairOnly,
		apply: applyCompleteRepair,
	},
	domain.ActionConfirmCompletion: {
		from:  []domain.TicketStatus{domain.TicketStatusResolved},
		types: repairOnly,
		apply: applyClose,
	},
	domain.ActionClose: {
		from:  []domain.TicketStatus{domain.TicketStatusApproved},
		types: meetingOnly,
		apply: applyClose,
	},
}

// Machine applies transitions. It holds no ticket state between calls.
type Machine struct {
	gate  *authz.Gate
	users UserLookup
	now   func() time.Time
}

// NewMachine wires the machine to its gate and technician lookup.
func NewMachine(gate *authz.Gate, users UserLookup) *Machine {
	return &Machine{gate: gate, users: users, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// change is the working copy of one transition.
type change struct {
	req     Request
	actor   *domain.User
	ticket  *domain.Ticket
	orders  []*domain.WorkOrder
	target  *domain.WorkOrder
	now     time.Time
	tag     domain.TimelineAction
	details string
	created []*domain.WorkOrder
	touched []*domain.WorkOrder
	notify  notify.Event
}

// Allowed lists the actions the machine would accept from the ticket's
// current status, ignoring authorization and payload.
func Allowed(t *domain.Ticket) []domain.Action {
	if t == nil || t.Status.IsTerminal() {
		return nil
	}
	var out []domain.Action
	for action, rule := range ticketRules {
		if rule.permits(t) {
			out = append(out, action)
		}
	}
	sortActions(out)
	return out
}

func (r ticketRule) permits(t *domain.Ticket) bool {
	if len(r.types) > 0 && !containsType(r.types, t.Type) {
		return false
	}
	for _, s := range r.from {
		if s == t.Status {
			return r.when == nil || r.when(t)
		}
	}
	return false
}

// Apply evaluates req and returns the new state, or a typed error with nothing changed.
func (m *Machine) Apply(ctx context.Context, req Request) (*Result, error) {
	if !req.Action.Known() {
		return nil, apperrors.NewFieldError("action", fmt.Sprintf("unknown action %q", req.Action))
	}
	if req.Ticket == nil {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	if req.Actor == nil {
		return nil, apperrors.NewNotFound("user", nil)
	}
	sub := authz.SubjectFor(req.Actor, req.ActiveRole)
	if !req.Actor.Active {
		return nil, apperrors.NewForbidden("user is inactive")
	}

	if req.Action.IsWorkOrderAction() {
		return m.applyWorkOrder(ctx, req, sub)
	}

	if err := m.gate.Check(sub, req.Action, req.Ticket); err != nil {
		return nil, err
	}
	if req.Ticket.Status.IsTerminal() {
		return nil, apperrors.NewTerminalState(string(req.Ticket.Status))
	}
	rule := ticketRules[req.Action]
	if !rule.permits(req.Ticket) {
		return nil, apperrors.NewInvalidTransition(string(req.Action), string(req.Ticket.Status))
	}

	c := m.begin(req)
	if err := rule.apply(ctx, m, c); err != nil {
		return nil, err
	}
	return m.commit(c), nil
}

func (m *Machine) applyWorkOrder(_ context.Context, req Request, sub authz.Subject) (*Result, error) {
	var target *domain.WorkOrder
	for _, wo := range req.WorkOrders {
		if wo.ID == req.WorkOrderID {
			target = wo
			break
		}
	}
	if target == nil {
		return nil, apperrors.NewNotFound("work order", map[string]any{"id": req.WorkOrderID})
	}
	if err := m.gate.CheckWorkOrder(sub, req.Action, req.Ticket); err != nil {
		return nil, err
	}
	if req.Ticket.Status.IsTerminal() {
		return nil, apperrors.NewTerminalState(string(req.Ticket.Status))
	}
	if err := guardWorkOrder(req.Action, target); err != nil {
		return nil, err
	}

	c := m.begin(req)
	for _, wo := range c.orders {
		if wo.ID == target.ID {
			c.target = wo
		}
	}
	if err := applyWorkOrderAction(c); err != nil {
		return nil, err
	}
	return m.commit(c), nil
}

func (m *Machine) begin(req Request) *change {
	orders := make([]*domain.WorkOrder, 0, len(req.WorkOrders))
	for _, wo := range req.WorkOrders {
		orders = append(orders, wo.Clone())
	}
	return &change{
		req:    req,
		actor:  req.Actor,
		ticket: req.Ticket.Clone(),
		orders: orders,
		now:    m.now(),
		notify: notify.Event{ActorID: req.Actor.ID},
	}
}

// commit appends the single ticket timeline event and packages the result.
func (m *Machine) commit(c *change) *Result {
	from := c.req.Ticket.Status
	log := timeline.New(c.ticket.Timeline)
	event := log.Append(timeline.Entry{
		Action:    c.tag,
		ActorID:   c.actor.ID,
		ActorName: c.actor.Name,
		Details:   c.details,
		At:        c.now,
	})
	c.ticket.Timeline = log.Events()
	c.ticket.UpdatedAt = event.Timestamp
	if c.ticket.Status.IsTerminal() && !from.IsTerminal() {
		at := event.Timestamp
		c.ticket.ClosedAt = &at
	}

	c.notify.Tag = c.tag
	c.notify.Ticket = c.ticket
	return &Result{
		Ticket:            c.ticket,
		From:              from,
		Event:             event,
		CreatedWorkOrders: c.created,
		UpdatedWorkOrders: c.touched,
		WorkOrders:        c.orders,
		Notify:            c.notify,
	}
}

func applyApprove(_ context.Context, _ *Machine, c *change) error {
	c.ticket.Status = domain.TicketStatusApproved
	c.tag = domain.ActionTagApproved
	c.details = "approved"
	if note := strings.TrimSpace(c.req.Payload.Notes); note != "" {
		c.details += ": " + note
	}
	return nil
}

func applyReject(_ context.Context, _ *Machine, c *change) error {
	reason, err := requireReason(c.req.Payload.Reason)
	if err != nil {
		return err
	}
	c.ticket.Status = domain.TicketStatusRejected
	c.tag = domain.ActionTagRejected
	c.details = reason
	c.notify.Reason = reason
	return nil
}

func applyCancel(_ context.Context, _ *Machine, c *change) error {
	c.ticket.Status = domain.TicketStatusCancelled
	c.tag = domain.ActionTagCancelled
	c.details = "cancelled by requester"
	if reason := strings.TrimSpace(c.req.Payload.Reason); reason != "" {
		c.details += ": " + reason
		c.notify.Reason = reason
	}
	return nil
}

func applyAssign(ctx context.Context, m *Machine, c *change) error {
	if c.ticket.AssignedTechnicianID != nil {
		return apperrors.NewInvalidTransition(string(c.req.Action), string(c.ticket.Status))
	}
	techID := strings.TrimSpace(c.req.Payload.TechnicianID)
	if techID == "" {
		return apperrors.NewFieldError("technician_id", "is required")
	}
	tech, err := m.users.GetByID(ctx, techID)
	if err != nil {
		return err
	}
	if !tech.Active || !tech.HasRole(domain.RoleTechnician) {
		return apperrors.NewFieldError("technician_id", "must reference an active technician")
	}
	id := tech.ID
	c.ticket.AssignedTechnicianID = &id
	c.ticket.Status = domain.TicketStatusAssigned
	c.tag = domain.ActionTagAssigned
	c.details = "assigned to " + tech.Name
	return nil
}

func applyAccept(_ context.Context, _ *Machine, c *change) error {
	c.ticket.Status = domain.TicketStatusDiagnosing
	c.tag = domain.ActionTagAssignmentAccepted
	c.details = "assignment accepted, diagnosis started"
	return nil
}

func applyRejectAssignment(_ context.Context, _ *Machine, c *change) error {
	reason, err := requireReason(c.req.Payload.Reason)
	if err != nil {
		return err
	}
	c.notify.PreviousTechnicianID = *c.ticket.AssignedTechnicianID
	c.notify.Reason = reason
	c.ticket.AssignedTechnicianID = nil
	c.ticket.Status = domain.TicketStatusApproved
	c.tag = domain.ActionTagAssignmentRejected
	c.details = reason
	return nil
}

func applyStartDiagnosis(_ context.Context, _ *Machine, c *change) error {
	c.ticket.Status = domain.TicketStatusDiagnosing
	c.tag = domain.ActionTagDiagnosisStarted
	c.details = "diagnosis started"
	return nil
}

func applyCreateWorkOrder(_ context.Context, _ *Machine, c *change) error {
	if c.ticket.Diagnosis == nil {
		return apperrors.NewInvalidTransition(string(c.req.Action), string(c.ticket.Status))
	}
	wo, err := buildWorkOrder(c, c.req.Payload.WorkOrder, "")
	if err != nil {
		return err
	}
	attachWorkOrder(c, wo)
	c.ticket.Status = domain.TicketStatusOnHold
	c.tag = domain.ActionTagWorkOrderCreated
	c.details = wo.Timeline[0].Details
	return nil
}

func applyResumeRepair(_ context.Context, _ *Machine, c *change) error {
	if blocking := Blocking(c.orders); len(blocking) > 0 {
		return blockedError(c.req.Action, c.ticket.Status, blocking)
	}
	c.ticket.Status = domain.TicketStatusRepairing
	c.tag = domain.ActionTagRepairResumed
	c.details = "all work orders settled, repair resumed"
	return nil
}

func applyCompleteRepair(_ context.Context, _ *Machine, c *change) error {
	if blocking := Blocking(c.orders); len(blocking) > 0 {
		return blockedError(c.req.Action, c.ticket.Status, blocking)
	}
	c.ticket.Status = domain.TicketStatusResolved
	c.tag = domain.ActionTagRepairCompleted
	c.details = "repair completed"
	if note := strings.TrimSpace(c.req.Payload.Notes); note != "" {
		c.details += ": " + note
	}
	return nil
}

func applyClose(_ context.Context, _ *Machine, c *change) error {
	c.ticket.Status = domain.TicketStatusClosed
	c.tag = domain.ActionTagClosed
	if c.req.Action == domain.ActionConfirmCompletion {
		c.details = "completion confirmed by requester"
	} else {
		c.details = "closed"
	}
	return nil
}

func sortActions(actions []domain.Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
}

func containsType(types []domain.TicketType, t domain.TicketType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
