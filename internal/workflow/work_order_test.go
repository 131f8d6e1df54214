package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

func strp(s string) *string { return &s }

func TestBlocking(t *testing.T) {
	orders := []*domain.WorkOrder{
		{ID: "a", Status: domain.WorkOrderStatusRequested},
		{ID: "b", Status: domain.WorkOrderStatusInProcurement},
		{ID: "c", Status: domain.WorkOrderStatusCompleted},
		{ID: "d", Status: domain.WorkOrderStatusDelivered},
		{ID: "e", Status: domain.WorkOrderStatusCancelled},
		{ID: "f", Status: domain.WorkOrderStatusFailed},
		{ID: "g", Status: domain.WorkOrderStatusFailed},
		{ID: "h", Status: domain.WorkOrderStatusCompleted, SupersedesID: strp("g")},
	}
	assert.Equal(t, []string{"a", "b", "f"}, orderIDs(Blocking(orders)))
	assert.Equal(t, []string{"f"}, orderIDs(AwaitingDecision(orders)))
	assert.Equal(t, []string{"a", "b"}, orderIDs(InProgress(orders)))
	assert.Empty(t, Blocking(nil))
}

func TestOnHoldRelease(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	first := h.toOnHold()
	h.must(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{WorkOrder: &WorkOrderInput{
		Type:   "vendor",
		Vendor: &domain.VendorInfo{Name: "PT Sinar", Contact: "021-555", Description: "housing repair"},
	}})
	require.Len(t, h.orders, 2)
	second := h.orders[1]

	res := h.mustOn(first.ID, provider, domain.RoleProviderAdmin, domain.ActionStartProcurement, Payload{})
	assert.False(t, res.Notify.ReadyToResume)
	res = h.mustOn(first.ID, provider, domain.RoleProviderAdmin, domain.ActionDeliverWorkOrder, Payload{})
	assert.False(t, res.Notify.ReadyToResume)
	assert.Equal(t, domain.TicketStatusOnHold, h.ticket.Status)

	_, err := h.do(tech, domain.RoleTechnician, domain.ActionResumeRepair, Payload{})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	res = h.mustOn(second.ID, provider, domain.RoleProviderAdmin, domain.ActionCompleteWorkOrder, Payload{})
	assert.True(t, res.Notify.ReadyToResume)
	assert.Contains(t, res.Event.Details, "repair can resume")
	assert.Equal(t, domain.ActionTagWorkOrderCompleted, res.Event.Action)

	h.must(tech, domain.RoleTechnician, domain.ActionResumeRepair, Payload{})
	assert.Equal(t, domain.TicketStatusRepairing, h.ticket.Status)
}

func TestFailedOrderNeedsDecision(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	wo := h.toOnHold()

	_, err := h.doOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionFailWorkOrder, Payload{})
	requireCode(t, err, apperrors.CodeValidation)

	res := h.mustOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionFailWorkOrder, Payload{Reason: "supplier out of stock"})
	assert.Equal(t, domain.ActionTagWorkOrderFailed, res.Event.Action)
	assert.Contains(t, res.Event.Details, "replacement")
	assert.False(t, res.Notify.ReadyToResume)
	assert.Equal(t, "supplier out of stock", res.UpdatedWorkOrders[0].FailureReason)
	assert.Equal(t, domain.TicketStatusOnHold, h.ticket.Status)
	assert.Len(t, AwaitingDecision(h.orders), 1)

	_, err = h.do(tech, domain.RoleTechnician, domain.ActionResumeRepair, Payload{})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = h.do(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{WorkOrder: &WorkOrderInput{
		Type: "sparepart", Items: sparepartOrder().Items, SupersedesID: "unknown",
	}})
	de := requireCode(t, err, apperrors.CodeValidation)
	assert.Contains(t, de.Details, "work_order.supersedes_id")

	h.must(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{WorkOrder: &WorkOrderInput{
		Type: "sparepart", Items: sparepartOrder().Items, SupersedesID: wo.ID,
	}})
	replacement := h.orders[1]
	require.NotNil(t, replacement.SupersedesID)
	assert.Empty(t, AwaitingDecision(h.orders))

	_, err = h.do(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{WorkOrder: &WorkOrderInput{
		Type: "sparepart", Items: sparepartOrder().Items, SupersedesID: wo.ID,
	}})
	requireCode(t, err, apperrors.CodeValidation)

	res = h.mustOn(replacement.ID, provider, domain.RoleProviderAdmin, domain.ActionCompleteWorkOrder, Payload{})
	assert.True(t, res.Notify.ReadyToResume)
	h.must(tech, domain.RoleTechnician, domain.ActionResumeRepair, Payload{})
}

func TestWorkOrderGuards(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	wo := h.toOnHold()

	_, err := h.doOn(wo.ID, tech, domain.RoleTechnician, domain.ActionCompleteWorkOrder, Payload{})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = h.doOn(wo.ID, tech2, domain.RoleTechnician, domain.ActionCancelWorkOrder, Payload{})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = h.doOn("missing", provider, domain.RoleProviderAdmin, domain.ActionCompleteWorkOrder, Payload{})
	requireCode(t, err, apperrors.CodeNotFound)

	h.mustOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionStartProcurement, Payload{})
	_, err = h.doOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionStartProcurement, Payload{})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	h.mustOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionCompleteWorkOrder, Payload{})
	events := len(h.ticket.Timeline)
	_, err = h.doOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionCompleteWorkOrder, Payload{})
	requireCode(t, err, apperrors.CodeTerminalState)
	assert.Len(t, h.ticket.Timeline, events)
}

func TestWorkOrderActionRequiresTarget(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	h.toOnHold()
	_, err := h.do(provider, domain.RoleProviderAdmin, domain.ActionCompleteWorkOrder, Payload{})
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestWorkOrderEventsMirrorOnTicket(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	wo := h.toOnHold()
	before := len(h.ticket.Timeline)

	res := h.mustOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionStartProcurement, Payload{})

	assert.Len(t, h.ticket.Timeline, before+1)
	assert.Equal(t, domain.ActionTagWorkOrderInProgress, h.ticket.Timeline[before].Action)
	updated := res.UpdatedWorkOrders[0]
	assert.Equal(t, domain.WorkOrderStatusInProcurement, updated.Status)
	require.Len(t, updated.Timeline, 2)
	assert.Equal(t, domain.ActionTagWorkOrderCreated, updated.Timeline[0].Action)
	assert.Equal(t, domain.ActionTagWorkOrderInProgress, updated.Timeline[1].Action)
	assert.Equal(t, domain.WorkOrderStatusRequested, wo.Status)
}

func TestCreateWorkOrderFromRepairing(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	h.toDiagnosing()

	// The first order of a diagnosis comes from submit_diagnosis.
	_, err := h.do(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{WorkOrder: &WorkOrderInput{
		Type: "sparepart", Items: sparepartOrder().Items,
	}})
	requireCode(t, err, apperrors.CodeInvalidTransition)
	assert.Empty(t, h.orders)

	h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(domain.RepairTypeDirect)})

	_, err = h.do(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{})
	requireCode(t, err, apperrors.CodeValidation)

	res := h.must(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{WorkOrder: &WorkOrderInput{
		Type:    "license",
		License: &domain.LicenseInfo{Name: "CAD suite", Description: "one seat"},
	}})
	assert.Equal(t, domain.TicketStatusOnHold, h.ticket.Status)
	assert.Equal(t, domain.ActionTagWorkOrderCreated, res.Event.Action)
	assert.Equal(t, res.CreatedWorkOrders[0], res.Notify.WorkOrder)

	_, err = h.do(tech, domain.RoleTechnician, domain.ActionCompleteRepair, Payload{})
	requireCode(t, err, apperrors.CodeInvalidTransition)
}
