package workflow

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/timeline"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

type workOrderRule struct {
	from []domain.WorkOrderStatus
	to   domain.WorkOrderStatus
	tag  domain.TimelineAction
	// needsReason makes a non-empty reason mandatory.
	needsReason bool
}

var openStatuses = []domain.WorkOrderStatus{domain.WorkOrderStatusRequested, domain.WorkOrderStatusInProcurement}

var workOrderRules = map[domain.Action]workOrderRule{
	domain.ActionStartProcurement: {
		from: []domain.WorkOrderStatus{domain.WorkOrderStatusRequested},
		to:   domain.WorkOrderStatusInProcurement,
		tag:  domain.ActionTagWorkOrderInProgress,
	},
	// Stock on hand may be handed over without a procurement round.
	domain.ActionDeliverWorkOrder:  {from: openStatuses, to: domain.WorkOrderStatusDelivered, tag: domain.ActionTagWorkOrderDelivered},
	domain.ActionCompleteWorkOrder: {from: openStatuses, to: domain.WorkOrderStatusCompleted, tag: domain.ActionTagWorkOrderCompleted},
	domain.ActionFailWorkOrder:     {from: openStatuses, to: domain.WorkOrderStatusFailed, tag: domain.ActionTagWorkOrderFailed, needsReason: true},
	domain.ActionCancelWorkOrder:   {from: openStatuses, to: domain.WorkOrderStatusCancelled, tag: domain.ActionTagWorkOrderCancelled},
}

// Blocking returns the orders that keep the parent ticket on hold: every
// non-terminal order, and every failed order nobody has replaced yet.
func Blocking(orders []*domain.WorkOrder) []*domain.WorkOrder {
	superseded := supersededIDs(orders)
	var out []*domain.WorkOrder
	for _, o := range orders {
		if !o.Status.IsTerminal() || (o.Status == domain.WorkOrderStatusFailed && !superseded[o.ID]) {
			out = append(out, o)
		}
	}
	return out
}

// InProgress returns the orders that are not terminal yet. Failed orders are
// excluded: escalating the diagnosis is one way to settle them.
func InProgress(orders []*domain.WorkOrder) []*domain.WorkOrder {
	var out []*domain.WorkOrder
	for _, o := range orders {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

// AwaitingDecision returns failed orders that still need the technician to
// raise a replacement or escalate the diagnosis.
func AwaitingDecision(orders []*domain.WorkOrder) []*domain.WorkOrder {
	superseded := supersededIDs(orders)
	var out []*domain.WorkOrder
	for _, o := range orders {
		if o.Status == domain.WorkOrderStatusFailed && !superseded[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

func supersededIDs(orders []*domain.WorkOrder) map[string]bool {
	ids := make(map[string]bool)
	for _, o := range orders {
		if o.SupersedesID != nil {
			ids[*o.SupersedesID] = true
		}
	}
	return ids
}

func orderIDs(orders []*domain.WorkOrder) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func blockedError(action domain.Action, status domain.TicketStatus, blocking []*domain.WorkOrder) error {
	ids := orderIDs(blocking)
	states := make([]string, 0, len(blocking))
	for _, o := range blocking {
		states = append(states, fmt.Sprintf("%s (%s)", o.ID, o.Status))
	}
	return apperrors.NewDomainError(apperrors.CodeInvalidTransition,
		fmt.Sprintf("action %q is blocked by work orders %s", action, strings.Join(states, ", ")),
		http.StatusConflict,
		map[string]any{"action": string(action), "status": string(status), "blocking_work_orders": ids})
}

// buildWorkOrder validates in and returns a requested work order for ticket.
// want, when set, is the type the diagnosis verdict asks for.
func buildWorkOrder(c *change, in *WorkOrderInput, want domain.WorkOrderType) (*domain.WorkOrder, error) {
	if in == nil {
		return nil, apperrors.NewFieldError("work_order", "is required")
	}
	payload := in.clone()
	payload.normalize()
	if payload.Type == "" {
		payload.Type = string(want)
	}
	if err := validateStruct("work_order", payload); err != nil {
		return nil, err
	}
	woType := domain.WorkOrderType(payload.Type)
	if woType == "" {
		return nil, apperrors.NewFieldError("work_order.type", "is required")
	}
	if want != "" && woType != want {
		return nil, apperrors.NewFieldError("work_order.type", fmt.Sprintf("must be %s for this diagnosis", want))
	}

	wo := &domain.WorkOrder{
		ID:        uuid.NewString(),
		TicketID:  c.ticket.ID,
		Type:      woType,
		Status:    domain.WorkOrderStatusRequested,
		CreatedBy: c.actor.ID,
		CreatedAt: c.now,
		UpdatedAt: c.now,
	}
	switch woType {
	case domain.WorkOrderTypeSparepart:
		if len(payload.Items) == 0 {
			return nil, apperrors.NewFieldError("work_order.items", "at least one item is required")
		}
		wo.Items = payload.Items
	case domain.WorkOrderTypeVendor:
		if payload.Vendor == nil {
			return nil, apperrors.NewFieldError("work_order.vendor", "is required")
		}
		wo.Vendor = payload.Vendor
	case domain.WorkOrderTypeLicense:
		if payload.License == nil {
			return nil, apperrors.NewFieldError("work_order.license", "is required")
		}
		wo.License = payload.License
	}

	if payload.SupersedesID != "" {
		if !canSupersede(c.orders, payload.SupersedesID) {
			return nil, apperrors.NewFieldError("work_order.supersedes_id", "must reference a failed work order of this ticket that has not been replaced")
		}
		id := payload.SupersedesID
		wo.SupersedesID = &id
	}

	log := timeline.New(nil)
	details := fmt.Sprintf("%s work order requested", woType)
	if wo.SupersedesID != nil {
		details += " to replace " + *wo.SupersedesID
	}
	log.Append(timeline.Entry{
		Action:    domain.ActionTagWorkOrderCreated,
		ActorID:   c.actor.ID,
		ActorName: c.actor.Name,
		Details:   details,
		At:        c.now,
	})
	wo.Timeline = log.Events()
	return wo, nil
}

func canSupersede(orders []*domain.WorkOrder, id string) bool {
	for _, o := range AwaitingDecision(orders) {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (w *WorkOrderInput) clone() *WorkOrderInput {
	out := *w
	out.Items = append([]domain.SparepartItem(nil), w.Items...)
	if w.Vendor != nil {
		v := *w.Vendor
		out.Vendor = &v
	}
	if w.License != nil {
		l := *w.License
		out.License = &l
	}
	return &out
}

// attachWorkOrder records a freshly built order on the ticket.
func attachWorkOrder(c *change, wo *domain.WorkOrder) {
	c.created = append(c.created, wo)
	c.orders = append(c.orders, wo)
	c.ticket.WorkOrderIDs = append(c.ticket.WorkOrderIDs, wo.ID)
	c.notify.WorkOrder = wo
}

// applyWorkOrderAction moves the target order and mirrors the step on the parent ticket.
func applyWorkOrderAction(c *change) error {
	rule := workOrderRules[c.req.Action]
	wo := c.target

	var reason string
	if rule.needsReason {
		r, err := requireReason(c.req.Payload.Reason)
		if err != nil {
			return err
		}
		reason = r
	} else {
		reason = strings.TrimSpace(c.req.Payload.Reason)
	}

	wasBlocked := len(Blocking(c.orders)) > 0
	wo.Status = rule.to
	wo.UpdatedAt = c.now
	if rule.to == domain.WorkOrderStatusFailed {
		wo.FailureReason = reason
	}

	details := fmt.Sprintf("%s work order %s: %s", wo.Type, wo.ID, rule.to)
	if reason != "" {
		details += " (" + reason + ")"
	}
	log := timeline.New(wo.Timeline)
	log.Append(timeline.Entry{Action: rule.tag, ActorID: c.actor.ID, ActorName: c.actor.Name, Details: details, At: c.now})
	wo.Timeline = log.Events()
	c.touched = append(c.touched, wo)

	switch {
	case rule.to == domain.WorkOrderStatusFailed:
		details += "; raise a replacement work order or revise the diagnosis"
	case wasBlocked && len(Blocking(c.orders)) == 0 && c.ticket.Status == domain.TicketStatusOnHold:
		details += "; all work orders are settled, repair can resume"
		c.notify.ReadyToResume = true
	}
	c.tag = rule.tag
	c.details = details
	c.notify.WorkOrder = wo
	c.notify.Reason = reason
	return nil
}

// guardWorkOrder checks the target order's own status.
func guardWorkOrder(action domain.Action, wo *domain.WorkOrder) error {
	if wo.Status.IsTerminal() {
		return apperrors.NewTerminalState(string(wo.Status))
	}
	rule := workOrderRules[action]
	for _, s := range rule.from {
		if s == wo.Status {
			return nil
		}
	}
	return apperrors.NewInvalidTransition(string(action), string(wo.Status))
}
