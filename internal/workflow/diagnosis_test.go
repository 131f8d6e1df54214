package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

func TestDiagnosisBranches(t *testing.T) {
	cases := []struct {
		repairType domain.RepairType
		workOrder  *WorkOrderInput
		status     domain.TicketStatus
		orders     int
	}{
		{domain.RepairTypeDirect, nil, domain.TicketStatusRepairing, 0},
		{domain.RepairTypeNeedSparepart, sparepartOrder(), domain.TicketStatusOnHold, 1},
		{domain.RepairTypeNeedVendor, &WorkOrderInput{Vendor: &domain.VendorInfo{Name: "PT Sinar", Contact: "021-555", Description: "board rework"}}, domain.TicketStatusOnHold, 1},
		{domain.RepairTypeNeedLicense, &WorkOrderInput{Type: "license", License: &domain.LicenseInfo{Name: "Office", Description: "renewal", Seats: 1}}, domain.TicketStatusOnHold, 1},
		// A stray work order payload never creates an order on the unrepairable branch.
		{domain.RepairTypeUnrepairable, sparepartOrder(), domain.TicketStatusClosedUnrepairable, 0},
	}
	for _, tc := range cases {
		t.Run(string(tc.repairType), func(t *testing.T) {
			h := newHarness(t, domain.TicketTypeRepair)
			h.toDiagnosing()

			res := h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(tc.repairType), WorkOrder: tc.workOrder})

			assert.Equal(t, tc.status, h.ticket.Status)
			assert.Len(t, res.CreatedWorkOrders, tc.orders)
			assert.Len(t, h.ticket.WorkOrderIDs, tc.orders)
			require.NotNil(t, h.ticket.Diagnosis)
			assert.Equal(t, tc.repairType, h.ticket.Diagnosis.RepairType)
			assert.Equal(t, 1, h.ticket.Diagnosis.Revision)
			assert.Equal(t, tech.ID, h.ticket.Diagnosis.DiagnosedBy)
			assert.Equal(t, domain.ActionTagDiagnosisCompleted, res.Event.Action)
			if tc.orders == 1 {
				wantType, _ := tc.repairType.WorkOrderType()
				assert.Equal(t, wantType, res.CreatedWorkOrders[0].Type)
				assert.Equal(t, h.ticket.ID, res.CreatedWorkOrders[0].TicketID)
				assert.Equal(t, tech.ID, res.CreatedWorkOrders[0].CreatedBy)
			}
			if tc.status.IsTerminal() {
				assert.NotNil(t, h.ticket.ClosedAt)
			}
		})
	}
}

func TestDiagnosisValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload func() Payload
		field   string
	}{
		{"missing diagnosis", func() Payload { return Payload{} }, "diagnosis"},
		{"missing physical exam", func() Payload {
			d := diagnosis(domain.RepairTypeDirect)
			d.PhysicalExam = "  "
			return Payload{Diagnosis: d}
		}, "diagnosis.physical_exam"},
		{"unknown category", func() Payload {
			d := diagnosis(domain.RepairTypeDirect)
			d.ProblemCategory = "firmware"
			return Payload{Diagnosis: d}
		}, "diagnosis.problem_category"},
		{"direct repair without description", func() Payload {
			d := diagnosis(domain.RepairTypeDirect)
			d.RepairDescription = ""
			return Payload{Diagnosis: d}
		}, "diagnosis.repair_description"},
		{"unrepairable without alternative", func() Payload {
			d := diagnosis(domain.RepairTypeUnrepairable)
			d.AlternativeSolution = " "
			return Payload{Diagnosis: d}
		}, "diagnosis.alternative_solution"},
		{"need vendor without order", func() Payload {
			return Payload{Diagnosis: diagnosis(domain.RepairTypeNeedVendor)}
		}, "work_order"},
		{"order type mismatch", func() Payload {
			order := sparepartOrder()
			order.Type = "sparepart"
			return Payload{Diagnosis: diagnosis(domain.RepairTypeNeedLicense), WorkOrder: order}
		}, "work_order.type"},
		{"sparepart without items", func() Payload {
			return Payload{Diagnosis: diagnosis(domain.RepairTypeNeedSparepart), WorkOrder: &WorkOrderInput{}}
		}, "work_order.items"},
		{"sparepart quantity zero", func() Payload {
			order := sparepartOrder()
			order.Items[0].Quantity = 0
			return Payload{Diagnosis: diagnosis(domain.RepairTypeNeedSparepart), WorkOrder: order}
		}, "work_order.items[0].quantity"},
		{"vendor without contact", func() Payload {
			order := &WorkOrderInput{Vendor: &domain.VendorInfo{Name: "PT Sinar", Description: "rework"}}
			return Payload{Diagnosis: diagnosis(domain.RepairTypeNeedVendor), WorkOrder: order}
		}, "work_order.vendor.contact"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, domain.TicketTypeRepair)
			h.toDiagnosing()
			before := h.ticket.Clone()

			_, err := h.do(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, tc.payload())

			de := requireCode(t, err, apperrors.CodeValidation)
			assert.Contains(t, de.Details, tc.field)
			assert.Equal(t, before, h.ticket)
		})
	}
}

func TestDiagnosisInputIsNotMutated(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	h.toDiagnosing()
	d := diagnosis(domain.RepairTypeDirect)
	d.TestResult = "  ok after reseat  "

	h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: d})

	assert.Equal(t, "  ok after reseat  ", d.TestResult)
	assert.Equal(t, "ok after reseat", h.ticket.Diagnosis.TestResult)
}

func TestDiagnosisRevision(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	h.toOnHold()

	revised := diagnosis(domain.RepairTypeNeedSparepart)
	revised.FaultyComponent = "lamp and ballast"
	res := h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: revised, WorkOrder: sparepartOrder()})

	assert.Equal(t, domain.TicketStatusOnHold, h.ticket.Status)
	assert.Equal(t, domain.ActionTagDiagnosisUpdated, res.Event.Action)
	assert.Empty(t, res.CreatedWorkOrders)
	assert.Len(t, h.orders, 1)
	assert.Equal(t, 2, h.ticket.Diagnosis.Revision)
	assert.Equal(t, "lamp and ballast", h.ticket.Diagnosis.FaultyComponent)
}

func TestDiagnosisEscalation(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	wo := h.toOnHold()

	_, err := h.do(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(domain.RepairTypeUnrepairable)})
	de := requireCode(t, err, apperrors.CodeInvalidTransition)
	assert.Equal(t, []string{wo.ID}, de.Details["blocking_work_orders"])
	assert.Contains(t, de.Message, wo.ID+" (requested)")
	assert.Equal(t, domain.TicketStatusOnHold, h.ticket.Status)

	h.mustOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionFailWorkOrder, Payload{Reason: "part discontinued"})
	assert.Equal(t, domain.TicketStatusOnHold, h.ticket.Status)

	res := h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(domain.RepairTypeUnrepairable)})
	assert.Equal(t, domain.TicketStatusClosedUnrepairable, h.ticket.Status)
	assert.Equal(t, domain.ActionTagClosedUnrepairable, res.Event.Action)
	assert.Equal(t, 2, h.ticket.Diagnosis.Revision)
	assert.NotNil(t, h.ticket.ClosedAt)
	assert.Len(t, h.orders, 1)
}

func TestEscalationWaitsForReplacementInProgress(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	wo := h.toOnHold()
	h.mustOn(wo.ID, provider, domain.RoleProviderAdmin, domain.ActionFailWorkOrder, Payload{Reason: "part discontinued"})
	h.must(tech, domain.RoleTechnician, domain.ActionCreateWorkOrder, Payload{WorkOrder: &WorkOrderInput{
		Type:         "sparepart",
		Items:        []domain.SparepartItem{{Name: "Compatible lamp", Quantity: 1, Unit: "pcs"}},
		SupersedesID: wo.ID,
	}})
	replacement := h.orders[1]

	_, err := h.do(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(domain.RepairTypeUnrepairable)})
	de := requireCode(t, err, apperrors.CodeInvalidTransition)
	assert.Equal(t, []string{replacement.ID}, de.Details["blocking_work_orders"])

	h.mustOn(replacement.ID, tech, domain.RoleTechnician, domain.ActionCancelWorkOrder, Payload{Reason: "no compatible part"})
	h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(domain.RepairTypeUnrepairable)})
	assert.Equal(t, domain.TicketStatusClosedUnrepairable, h.ticket.Status)
}

func TestDiagnosisFrozenAfterResolution(t *testing.T) {
	h := newHarness(t, domain.TicketTypeRepair)
	h.toDiagnosing()
	h.must(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(domain.RepairTypeDirect)})
	h.must(tech, domain.RoleTechnician, domain.ActionCompleteRepair, Payload{})

	_, err := h.do(tech, domain.RoleTechnician, domain.ActionSubmitDiagnosis, Payload{Diagnosis: diagnosis(domain.RepairTypeDirect)})
	requireCode(t, err, apperrors.CodeInvalidTransition)
}
