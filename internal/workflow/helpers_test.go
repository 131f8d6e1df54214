package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/authz"
	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

type userBook map[string]*domain.User

func (b userBook) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := b[id]; ok {
		return u, nil
	}
	return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
}

var (
	requester = &domain.User{ID: "req", Name: "Rina", Roles: []domain.Role{domain.RoleRequester}, Active: true}
	admin     = &domain.User{ID: "adm", Name: "Sari", Roles: []domain.Role{domain.RoleServiceAdmin}, Active: true}
	provider  = &domain.User{ID: "prov", Name: "Putu", Roles: []domain.Role{domain.RoleProviderAdmin}, Active: true}
	tech      = &domain.User{ID: "U7", Name: "Tono", Roles: []domain.Role{domain.RoleTechnician}, Active: true}
	tech2     = &domain.User{ID: "U8", Name: "Wati", Roles: []domain.Role{domain.RoleTechnician}, Active: true}
	benched   = &domain.User{ID: "U9", Name: "Joko", Roles: []domain.Role{domain.RoleTechnician}, Active: false}
)

func book() userBook {
	return userBook{
		requester.ID: requester, admin.ID: admin, provider.ID: provider,
		tech.ID: tech, tech2.ID: tech2, benched.ID: benched,
	}
}

func newMachine() *Machine {
	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return NewMachine(authz.NewGate(), book()).WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
}

func repairData() map[string]any {
	return map[string]any{
		"equipment_name": "Projector",
		"equipment_code": "PRJ-04",
		"location":       "Room 2.14",
		"complaint":      "no image on screen",
	}
}

func meetingData() map[string]any {
	return map[string]any{
		"room":      "Garuda",
		"start_at":  "2024-05-02T09:00:00Z",
		"end_at":    "2024-05-02T10:00:00Z",
		"attendees": []any{"rina@example.com", "sari@example.com"},
		"agenda":    "quarterly review",
	}
}

// harness drives one ticket through successive transitions, keeping the
// latest state the way a store would.
type harness struct {
	t      *testing.T
	m      *Machine
	ticket *domain.Ticket
	orders []*domain.WorkOrder
}

func newHarness(t *testing.T, typ domain.TicketType) *harness {
	t.Helper()
	m := newMachine()
	data := repairData()
	if typ == domain.TicketTypeMeeting {
		data = meetingData()
	}
	res, err := m.Submit(requester, domain.RoleRequester, SubmitInput{Type: typ, Data: data})
	require.NoError(t, err)
	return &harness{t: t, m: m, ticket: res.Ticket}
}

func (h *harness) do(actor *domain.User, role domain.Role, action domain.Action, p Payload) (*Result, error) {
	return h.doOn("", actor, role, action, p)
}

func (h *harness) doOn(woID string, actor *domain.User, role domain.Role, action domain.Action, p Payload) (*Result, error) {
	res, err := h.m.Apply(context.Background(), Request{
		Ticket:      h.ticket,
		WorkOrders:  h.orders,
		WorkOrderID: woID,
		Action:      action,
		Actor:       actor,
		ActiveRole:  role,
		Payload:     p,
	})
	if err == nil {
		h.ticket = res.Ticket
		h.orders = res.WorkOrders
	}
	return res, err
}

func (h *harness) must(actor *domain.User, role domain.Role, action domain.Action, p Payload) *Result {
	h.t.Helper()
	res, err := h.do(actor, role, action, p)
	require.NoError(h.t, err, "action %s", action)
	return res
}

func (h *harness) mustOn(woID string, actor *domain.User, role domain.Role, action domain.Action, p Payload) *Result {
	h.t.Helper()
	res, err := h.doOn(woID, actor, role, action, p)
	require.NoError(h.t, err, "work order action %s", action)
	return res
}

// toDiagnosing walks a fresh repair ticket up to diagnosing with tech assigned.
func (h *harness) toDiagnosing() {
	h.t.Helper()
	h.must(admin, domain.RoleServiceAdmin, domain.ActionApprove, Payload{})
	h.must(admin, domain.RoleServiceAdmin, domain.ActionAssign, Payload{TechnicianID: tech.ID})
	h.must(tech, domain.RoleTechnician, domain.ActionAccept, Payload{})
}

func diagnosis(rt domain.RepairType) *DiagnosisInput {
	d := &DiagnosisInput{
		ProblemCategory:    "hardware",
		ProblemDescription: "lamp does not light up",
		PhysicalExam:       "lamp module burnt",
		TestResult:         "no output on any input",
		FaultyComponent:    "lamp",
		RepairType:         string(rt),
	}
	switch rt {
	case domain.RepairTypeDirect:
		d.RepairDescription = "reseat lamp connector"
	case domain.RepairTypeUnrepairable:
		d.UnrepairableReason = "board discontinued"
		d.AlternativeSolution = "replace projector"
	}
	return d
}

func sparepartOrder() *WorkOrderInput {
	return &WorkOrderInput{Items: []domain.SparepartItem{{Name: "Lamp module", Quantity: 1, Unit: "pcs"}}}
}

// toOnHold reaches on_hold through a need_sparepart diagnosis and returns the order.
func (h *harness) toOnHold() *domain.WorkOrder {
	h.t.Helper()
	h.toDiagnosing()
	res := h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{
		Diagnosis: diagnosis(domain.RepairTypeNeedSparepart),
		WorkOrder: sparepartOrder(),
	})
	require.Len(h.t, res.CreatedWorkOrders, 1)
	return res.CreatedWorkOrders[0]
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	require.Equal(t, code, de.Code, "got %v", err)
	return de
}

func tags(events []domain.TimelineEvent) []domain.TimelineAction {
	out := make([]domain.TimelineAction, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}
