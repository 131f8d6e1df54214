package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

func strPtr(s string) *string { return &s }

func repairTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:                   "t1",
		Type:                 domain.TicketTypeRepair,
		Status:               domain.TicketStatusAssigned,
		RequesterID:          "req",
		AssignedTechnicianID: strPtr("tech"),
	}
}

func subject(id string, active domain.Role, roles ...domain.Role) Subject {
	if len(roles) == 0 {
		roles = []domain.Role{active}
	}
	return Subject{UserID: id, ActiveRole: active, Roles: roles}
}

func TestGate_Check(t *testing.T) {
	gate := NewGate()
	meeting := &domain.Ticket{ID: "m1", Type: domain.TicketTypeMeeting, RequesterID: "req"}

	cases := []struct {
		name    string
		sub     Subject
		action  domain.Action
		ticket  *domain.Ticket
		allowed bool
	}{
		{"requester submits own", subject("req", domain.RoleRequester), domain.ActionSubmit, repairTicket(), true},
		{"requester submits for other", subject("other", domain.RoleRequester), domain.ActionSubmit, repairTicket(), false},
		{"service admin approves", subject("adm", domain.RoleServiceAdmin), domain.ActionApprove, repairTicket(), true},
		{"super admin rejects", subject("root", domain.RoleSuperAdmin), domain.ActionReject, repairTicket(), true},
		{"requester cannot approve", subject("req", domain.RoleRequester), domain.ActionApprove, repairTicket(), false},
		{"technician cannot approve", subject("tech", domain.RoleTechnician), domain.ActionApprove, repairTicket(), false},
		{"admin assigns repair", subject("adm", domain.RoleServiceAdmin), domain.ActionAssign, repairTicket(), true},
		{"admin cannot assign meeting", subject("adm", domain.RoleServiceAdmin), domain.ActionAssign, meeting, false},
		{"assigned technician accepts", subject("tech", domain.RoleTechnician), domain.ActionAccept, repairTicket(), true},
		{"other technician cannot accept", subject("tech2", domain.RoleTechnician), domain.ActionAccept, repairTicket(), false},
		{"admin cannot accept", subject("adm", domain.RoleServiceAdmin), domain.ActionAccept, repairTicket(), false},
		{"assigned technician diagnoses", subject("tech", domain.RoleTechnician), domain.ActionSubmitDiagnosis, repairTicket(), true},
		{"assigned technician creates work order", subject("tech", domain.RoleTechnician), domain.ActionCreateWorkOrder, repairTicket(), true},
		{"requester confirms own", subject("req", domain.RoleRequester), domain.ActionConfirmCompletion, repairTicket(), true},
		{"admin cannot confirm", subject("adm", domain.RoleServiceAdmin), domain.ActionConfirmCompletion, repairTicket(), false},
		{"requester closes own meeting", subject("req", domain.RoleRequester), domain.ActionClose, meeting, true},
		{"admin closes meeting", subject("adm", domain.RoleServiceAdmin), domain.ActionClose, meeting, true},
		{"other requester cannot close meeting", subject("x", domain.RoleRequester), domain.ActionClose, meeting, false},
		{"work order action on ticket endpoint", subject("prov", domain.RoleProviderAdmin), domain.ActionCompleteWorkOrder, repairTicket(), false},
		{"unknown action", subject("adm", domain.RoleServiceAdmin), domain.Action("explode"), repairTicket(), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := gate.Check(tc.sub, tc.action, tc.ticket)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "want forbidden, got %v", err)
		})
	}
}

func TestGate_ActiveRoleMustBeHeld(t *testing.T) {
	gate := NewGate()
	sub := Subject{UserID: "adm", ActiveRole: domain.RoleServiceAdmin, Roles: []domain.Role{domain.RoleRequester}}

	err := gate.Check(sub, domain.ActionApprove, repairTicket())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestGate_ActiveRoleSelectsPermissions(t *testing.T) {
	gate := NewGate()
	roles := []domain.Role{domain.RoleRequester, domain.RoleServiceAdmin}
	ticket := repairTicket()
	ticket.RequesterID = "dual"

	asRequester := subject("dual", domain.RoleRequester, roles...)
	asAdmin := subject("dual", domain.RoleServiceAdmin, roles...)

	assert.Error(t, gate.Check(asRequester, domain.ActionApprove, ticket))
	assert.NoError(t, gate.Check(asAdmin, domain.ActionApprove, ticket))
	assert.NoError(t, gate.Check(asRequester, domain.ActionConfirmCompletion, ticket))
	assert.Error(t, gate.Check(asAdmin, domain.ActionConfirmCompletion, ticket))
}

func TestGate_CheckWorkOrder(t *testing.T) {
	gate := NewGate()
	ticket := repairTicket()

	assert.NoError(t, gate.CheckWorkOrder(subject("prov", domain.RoleProviderAdmin), domain.ActionCompleteWorkOrder, ticket))
	assert.NoError(t, gate.CheckWorkOrder(subject("root", domain.RoleSuperAdmin), domain.ActionFailWorkOrder, ticket))
	assert.Error(t, gate.CheckWorkOrder(subject("tech", domain.RoleTechnician), domain.ActionCompleteWorkOrder, ticket))
	assert.Error(t, gate.CheckWorkOrder(subject("adm", domain.RoleServiceAdmin), domain.ActionStartProcurement, ticket))

	assert.NoError(t, gate.CheckWorkOrder(subject("tech", domain.RoleTechnician), domain.ActionCancelWorkOrder, ticket))
	assert.Error(t, gate.CheckWorkOrder(subject("tech2", domain.RoleTechnician), domain.ActionCancelWorkOrder, ticket))
	assert.NoError(t, gate.CheckWorkOrder(subject("prov", domain.RoleProviderAdmin), domain.ActionCancelWorkOrder, ticket))
	assert.Error(t, gate.CheckWorkOrder(subject("prov", domain.RoleProviderAdmin), domain.ActionApprove, ticket))
}

func TestGate_CanView(t *testing.T) {
	gate := NewGate()
	ticket := repairTicket()

	assert.True(t, gate.CanView(subject("req", domain.RoleRequester), ticket))
	assert.False(t, gate.CanView(subject("x", domain.RoleRequester), ticket))
	assert.True(t, gate.CanView(subject("tech", domain.RoleTechnician), ticket))
	assert.False(t, gate.CanView(subject("tech2", domain.RoleTechnician), ticket))
	assert.True(t, gate.CanView(subject("prov", domain.RoleProviderAdmin), ticket))
	assert.False(t, gate.CanView(Subject{UserID: "adm", ActiveRole: domain.RoleServiceAdmin}, ticket))
}
