package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/authz"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/notify"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/workflow"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

// WorkflowService is the single entry point for ticket and work order transitions.
type WorkflowService struct {
	store      repository.Store
	gate       *authz.Gate
	machine    *workflow.Machine
	recipients *notify.Dispatcher
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	Store      repository.Store
	Gate       *authz.Gate
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	// Clock overrides time.Now for the machine and notification timestamps.
	Clock func() time.Time
}

// ActionRequest asks for one transition. TicketID may be empty for work order
// actions; the ticket is then resolved through WorkOrderID.
type ActionRequest struct {
	TicketID    string
	WorkOrderID string
	Action      domain.Action
	ActorID     string
	ActiveRole  domain.Role
	// ExpectedVersion is the parent ticket version the caller evaluated the
	// action against. It is required, for work order actions too.
	ExpectedVersion *int64
	Payload         workflow.Payload
}

// SubmitRequest creates a new ticket.
type SubmitRequest struct {
	ActorID    string
	ActiveRole domain.Role
	Type       domain.TicketType
	Priority   domain.TicketPriority
	Urgency    domain.TicketUrgency
	Data       map[string]any
}

// ListRequest lists the tickets visible to the caller.
type ListRequest struct {
	ActorID    string
	ActiveRole domain.Role
	Filter     repository.TicketFilter
}

// NextStep is a manual decision the ticket is waiting for.
type NextStep struct {
	Kind         string   `json:"kind"`
	Message      string   `json:"message"`
	WorkOrderIDs []string `json:"work_order_ids"`
}

// TicketView is a ticket as returned to a caller.
type TicketView struct {
	Ticket     *domain.Ticket
	WorkOrders []*domain.WorkOrder
	// Allowed holds the actions the caller could perform right now.
	Allowed  []domain.Action
	NextStep *NextStep
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	gate := deps.Gate
	if gate == nil {
		gate = authz.NewGate()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	users := deps.Store.Repositories().Users
	machine := workflow.NewMachine(gate, users)
	recipients := notify.NewDispatcher(users)
	if deps.Clock != nil {
		machine.WithClock(deps.Clock)
		recipients.WithClock(deps.Clock)
	}
	return &WorkflowService{
		store:      deps.Store,
		gate:       gate,
		machine:    machine,
		recipients: recipients,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// PerformAction applies one action, persists the result with its notifications
// atomically, and hands the notifications to delivery after commit.
func (s *WorkflowService) PerformAction(ctx context.Context, req ActionRequest) (*TicketView, error) {
	view, err := s.performAction(ctx, req)
	s.metrics.RecordTransition(string(req.Action), outcome(err))
	return view, err
}

func (s *WorkflowService) performAction(ctx context.Context, req ActionRequest) (*TicketView, error) {
	if req.ExpectedVersion == nil {
		return nil, apperrors.NewFieldError("expected_version", "is required")
	}
	expected := *req.ExpectedVersion
	repos := s.store.Repositories()
	actor, err := repos.Users.GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}

	ticketID := req.TicketID
	if ticketID == "" {
		if req.WorkOrderID == "" {
			return nil, apperrors.NewFieldError("ticket_id", "is required")
		}
		order, err := repos.WorkOrders.GetByID(ctx, req.WorkOrderID)
		if err != nil {
			return nil, err
		}
		ticketID = order.TicketID
	}

	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if expected != ticket.Version {
		return nil, apperrors.NewConflict("ticket version is stale; refetch and retry", map[string]any{
			"id":               ticket.ID,
			"expected_version": expected,
			"current_version":  ticket.Version,
		})
	}
	orders, err := repos.WorkOrders.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	res, err := s.machine.Apply(ctx, workflow.Request{
		Ticket:      ticket,
		WorkOrders:  orders,
		WorkOrderID: req.WorkOrderID,
		Action:      req.Action,
		Actor:       actor,
		ActiveRole:  req.ActiveRole,
		Payload:     req.Payload,
	})
	if err != nil {
		return nil, err
	}

	notes, err := s.recipients.Recipients(ctx, res.Notify)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("resolve recipients: %w", err))
	}

	err = s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Tickets.Save(ctx, res.Ticket, expected); err != nil {
			return err
		}
		for _, wo := range res.CreatedWorkOrders {
			if err := tx.WorkOrders.Create(ctx, wo); err != nil {
				return err
			}
		}
		for _, wo := range res.UpdatedWorkOrders {
			if err := tx.WorkOrders.Save(ctx, wo, wo.Version); err != nil {
				return err
			}
		}
		return enqueue(ctx, tx, notes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transition committed",
		zap.String("ticket_id", res.Ticket.ID),
		zap.String("action", string(req.Action)),
		zap.String("work_order_id", req.WorkOrderID),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.Ticket.Status)),
		zap.String("actor_id", actor.ID),
		zap.Int64("version", res.Ticket.Version),
		zap.Int("notifications", len(notes)))

	s.publish(ctx, actor.ID, req.Action, req.WorkOrderID, res, notes)
	return s.view(actor, req.ActiveRole, res.Ticket, res.WorkOrders), nil
}

// Submit creates a ticket on behalf of a requester.
func (s *WorkflowService) Submit(ctx context.Context, req SubmitRequest) (*TicketView, error) {
	view, err := s.submit(ctx, req)
	s.metrics.RecordTransition(string(domain.ActionSubmit), outcome(err))
	return view, err
}

func (s *WorkflowService) submit(ctx context.Context, req SubmitRequest) (*TicketView, error) {
	actor, err := s.store.Repositories().Users.GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	res, err := s.machine.Submit(actor, req.ActiveRole, workflow.SubmitInput{
		Type:     req.Type,
		Priority: req.Priority,
		Urgency:  req.Urgency,
		Data:     req.Data,
	})
	if err != nil {
		return nil, err
	}
	notes, err := s.recipients.Recipients(ctx, res.Notify)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("resolve recipients: %w", err))
	}

	err = s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Tickets.Create(ctx, res.Ticket); err != nil {
			return err
		}
		return enqueue(ctx, tx, notes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket submitted",
		zap.String("ticket_id", res.Ticket.ID),
		zap.String("ticket_number", res.Ticket.TicketNumber),
		zap.String("type", string(res.Ticket.Type)),
		zap.String("actor_id", actor.ID))

	s.publish(ctx, actor.ID, domain.ActionSubmit, "", res, notes)
	return s.view(actor, req.ActiveRole, res.Ticket, nil), nil
}

// GetTicket returns a ticket the caller may see.
func (s *WorkflowService) GetTicket(ctx context.Context, actorID string, role domain.Role, ticketID string) (*TicketView, error) {
	repos := s.store.Repositories()
	actor, err := repos.Users.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanView(authz.SubjectFor(actor, role), ticket) {
		return nil, apperrors.NewForbidden("ticket is not visible to the caller")
	}
	orders, err := repos.WorkOrders.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	return s.view(actor, role, ticket, orders), nil
}

// ListTickets returns the tickets visible to the caller, scoped by the active role.
func (s *WorkflowService) ListTickets(ctx context.Context, req ListRequest) ([]*TicketView, error) {
	repos := s.store.Repositories()
	actor, err := repos.Users.GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	sub := authz.SubjectFor(actor, req.ActiveRole)
	if !actor.HasRole(req.ActiveRole) {
		return nil, apperrors.NewForbidden("active role is not held by the user")
	}

	filter := req.Filter
	switch req.ActiveRole {
	case domain.RoleRequester:
		filter.RequesterID = &actor.ID
	case domain.RoleTechnician:
		filter.TechnicianID = &actor.ID
	}
	tickets, err := repos.Tickets.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	views := make([]*TicketView, 0, len(tickets))
	for _, t := range tickets {
		if s.gate.CanView(sub, t) {
			views = append(views, s.view(actor, req.ActiveRole, t, nil))
		}
	}
	return views, nil
}

// ListWorkOrders returns the work orders of a ticket the caller may see.
func (s *WorkflowService) ListWorkOrders(ctx context.Context, actorID string, role domain.Role, ticketID string) ([]*domain.WorkOrder, error) {
	view, err := s.GetTicket(ctx, actorID, role, ticketID)
	if err != nil {
		return nil, err
	}
	return view.WorkOrders, nil
}

func (s *WorkflowService) view(actor *domain.User, role domain.Role, ticket *domain.Ticket, orders []*domain.WorkOrder) *TicketView {
	sub := authz.SubjectFor(actor, role)
	var allowed []domain.Action
	for _, a := range workflow.Allowed(ticket) {
		if s.gate.Check(sub, a, ticket) == nil {
			allowed = append(allowed, a)
		}
	}
	v := &TicketView{Ticket: ticket, WorkOrders: orders, Allowed: allowed}
	if ticket.Status == domain.TicketStatusOnHold {
		if pending := workflow.AwaitingDecision(orders); len(pending) > 0 {
			ids := make([]string, len(pending))
			for i, wo := range pending {
				ids[i] = wo.ID
			}
			v.NextStep = &NextStep{
				Kind:         "work_order_decision",
				Message:      "a work order failed; create a replacement with supersedes_id or revise the diagnosis",
				WorkOrderIDs: ids,
			}
		}
	}
	return v
}

// publish runs after commit; the request context may already be done, so
// delivery gets a detached context.
func (s *WorkflowService) publish(ctx context.Context, actorID string, action domain.Action, workOrderID string, res *workflow.Result, notes []domain.Notification) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(context.WithoutCancel(ctx), events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTransitionCommitted,
		TicketID:  res.Ticket.ID,
		ActorID:   actorID,
		Timestamp: res.Event.Timestamp,
		Payload: events.TransitionCommittedPayload{
			Action:        action,
			Tag:           res.Event.Action,
			From:          res.From,
			To:            res.Ticket.Status,
			WorkOrderID:   workOrderID,
			Notifications: notes,
		},
	})
	if err != nil {
		s.logger.Debug("post-commit handlers reported errors", zap.String("ticket_id", res.Ticket.ID), zap.Error(err))
	}
}

func enqueue(ctx context.Context, tx repository.Repositories, notes []domain.Notification) error {
	for i := range notes {
		if err := tx.Notifications.Enqueue(ctx, &notes[i]); err != nil {
			return err
		}
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "applied"
	}
	return apperrors.ToDomainError(err).Code
}
