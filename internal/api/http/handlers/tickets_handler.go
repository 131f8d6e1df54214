package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk/internal/api/dto"
	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/service"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

const maxPageSize = 100

// TicketsHandler serves ticket reads and transitions.
type TicketsHandler struct {
	service *service.WorkflowService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(workflowService *service.WorkflowService) *TicketsHandler {
	return &TicketsHandler{service: workflowService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	view, err := h.service.Submit(c.UserContext(), service.SubmitRequest{
		ActorID:    principal.User.ID,
		ActiveRole: principal.ActiveRole,
		Type:       domain.TicketType(strings.ToLower(strings.TrimSpace(string(req.Type)))),
		Priority:   req.Priority,
		Urgency:    req.Urgency,
		Data:       req.Data,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(view)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	views, err := h.service.ListTickets(c.UserContext(), service.ListRequest{
		ActorID:    principal.User.ID,
		ActiveRole: principal.ActiveRole,
		Filter:     filter,
	})
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(views))
	for _, v := range views {
		items = append(items, ticketSummary(v))
	}
	return c.JSON(fiber.Map{"data": items, "meta": fiber.Map{"limit": filter.Limit, "offset": filter.Offset}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	view, err := h.service.GetTicket(c.UserContext(), principal.User.ID, principal.ActiveRole, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

// ListWorkOrders GET /tickets/:id/work-orders.
func (h *TicketsHandler) ListWorkOrders(c *fiber.Ctx) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	orders, err := h.service.ListWorkOrders(c.UserContext(), principal.User.ID, principal.ActiveRole, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.WorkOrderResponse, 0, len(orders))
	for _, wo := range orders {
		items = append(items, workOrderResponse(wo))
	}
	return c.JSON(fiber.Map{"data": items})
}

// PerformAction POST /tickets/:id/actions/:action.
func (h *TicketsHandler) PerformAction(c *fiber.Ctx) error {
	return h.perform(c, c.Params("id"), "")
}

// PerformWorkOrderAction POST /work-orders/:id/actions/:action.
func (h *TicketsHandler) PerformWorkOrderAction(c *fiber.Ctx) error {
	return h.perform(c, "", c.Params("id"))
}

func (h *TicketsHandler) perform(c *fiber.Ctx, ticketID, workOrderID string) error {
	principal, err := principalOf(c)
	if err != nil {
		return err
	}
	var req dto.ActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.ExpectedVersion == nil {
		return apperrors.NewFieldError("expected_version", "is required")
	}

	view, err := h.service.PerformAction(c.UserContext(), service.ActionRequest{
		TicketID:        ticketID,
		WorkOrderID:     workOrderID,
		Action:          domain.Action(strings.ToLower(c.Params("action"))),
		ActorID:         principal.User.ID,
		ActiveRole:      principal.ActiveRole,
		ExpectedVersion: req.ExpectedVersion,
		Payload:         req.Payload,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

func principalOf(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{}
	for _, part := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.NormalizeTicketStatus(part))
	}
	for _, part := range splitList(c.Query("type")) {
		filter.Types = append(filter.Types, domain.TicketType(part))
	}
	for _, part := range splitList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(part))
	}
	var err error
	if filter.CreatedFrom, err = parseTime("created_from", c.Query("created_from")); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTime("created_to", c.Query("created_to")); err != nil {
		return filter, err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), repository.DefaultListLimit)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(field, val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewFieldError(field, "must be an RFC3339 timestamp")
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
