// Package authz decides who may perform which workflow action on a ticket.
//
// The gate answers the "who" question only: role held, role selected, and the actor's
// relationship to the ticket. Whether the action is possible in the ticket's current status
// is decided by the workflow machine, after the gate has allowed the call.
package authz

import (
	"fmt"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

// Subject is the caller as seen by the gate.
type Subject struct {
	UserID     string
	ActiveRole domain.Role
	Roles      []domain.Role
}

// SubjectFor builds a Subject for user acting under activeRole.
func SubjectFor(user *domain.User, activeRole domain.Role) Subject {
	return Subject{UserID: user.ID, ActiveRole: activeRole, Roles: append([]domain.Role(nil), user.Roles...)}
}

func (s Subject) holds(role domain.Role) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type relation int

const (
	anyone relation = iota
	owner
	assignee
)

type rule struct {
	roles      []domain.Role
	relation   relation
	repairOnly bool
	// bypassRoles pass without the relation check.
	bypassRoles []domain.Role
}

var admins = []domain.Role{domain.RoleServiceAdmin, domain.RoleSuperAdmin}

var ticketRules = map[domain.Action]rule{
	domain.ActionSubmit:            {roles: []domain.Role{domain.RoleRequester}, relation: owner},
	domain.ActionCancel:            {roles: []domain.Role{domain.RoleRequester}, relation: owner},
	domain.ActionApprove:           {roles: admins},
	domain.ActionReject:            {roles: admins},
	domain.ActionAssign:            {roles: admins, repairOnly: true},
	domain.ActionAccept:            {roles: []domain.Role{domain.RoleTechnician}, relation: assignee, repairOnly: true},
	domain.ActionRejectAssignment:  {roles: []domain.Role{domain.RoleTechnician}, relation: assignee, repairOnly: true},
	domain.ActionStartDiagnosis:    {roles: []domain.Role{domain.RoleTechnician}, relation: assignee, repairOnly: true},
	domain.ActionSubmitDiagnosis:   {roles: []domain.Role{domain.RoleTechnician}, relation: assignee, repairOnly: true},
	domain.ActionCreateWorkOrder:   {roles: []domain.Role{domain.RoleTechnician}, relation: assignee, repairOnly: true},
	domain.ActionResumeRepair:      {roles: []domain.Role{domain.RoleTechnician}, relation: assignee, repairOnly: true},
	domain.ActionCompleteRepair:    {roles: []domain.Role{domain.RoleTechnician}, relation: assignee, repairOnly: true},
	domain.ActionConfirmCompletion: {roles: []domain.Role{domain.RoleRequester}, relation: owner},
	domain.ActionClose: {
		roles:       []domain.Role{domain.RoleRequester, domain.RoleServiceAdmin, domain.RoleSuperAdmin},
		relation:    owner,
		bypassRoles: admins,
	},
}

var providers = []domain.Role{domain.RoleProviderAdmin, domain.RoleSuperAdmin}

var workOrderRules = map[domain.Action]rule{
	domain.ActionStartProcurement:  {roles: providers},
	domain.ActionDeliverWorkOrder:  {roles: providers},
	domain.ActionCompleteWorkOrder: {roles: providers},
	domain.ActionFailWorkOrder:     {roles: providers},
	domain.ActionCancelWorkOrder: {
		roles:       []domain.Role{domain.RoleProviderAdmin, domain.RoleSuperAdmin, domain.RoleTechnician},
		relation:    assignee,
		bypassRoles: providers,
	},
}

// Gate is a pure policy object; it holds no state.
type Gate struct{}

// NewGate returns the gate.
func NewGate() *Gate {
	return &Gate{}
}

// Check decides whether sub may perform action on ticket. It returns nil or a Forbidden error.
func (g *Gate) Check(sub Subject, action domain.Action, ticket *domain.Ticket) error {
	r, ok := ticketRules[action]
	if !ok {
		if _, isWorkOrder := workOrderRules[action]; isWorkOrder {
			return apperrors.NewForbidden(fmt.Sprintf("action %q targets a work order", action))
		}
		return apperrors.NewForbidden(fmt.Sprintf("action %q is not permitted", action))
	}
	return evaluate(sub, action, r, ticket)
}

// CheckWorkOrder decides whether sub may move a work order owned by ticket.
func (g *Gate) CheckWorkOrder(sub Subject, action domain.Action, ticket *domain.Ticket) error {
	r, ok := workOrderRules[action]
	if !ok {
		return apperrors.NewForbidden(fmt.Sprintf("action %q is not a work order action", action))
	}
	return evaluate(sub, action, r, ticket)
}

// CanView reports whether sub may read ticket.
func (g *Gate) CanView(sub Subject, ticket *domain.Ticket) bool {
	if !sub.holds(sub.ActiveRole) {
		return false
	}
	switch sub.ActiveRole {
	case domain.RoleServiceAdmin, domain.RoleProviderAdmin, domain.RoleSuperAdmin:
		return true
	case domain.RoleTechnician:
		return ticket.IsAssignedTo(sub.UserID)
	case domain.RoleRequester:
		return ticket.RequesterID == sub.UserID
	}
	return false
}

func evaluate(sub Subject, action domain.Action, r rule, ticket *domain.Ticket) error {
	if sub.UserID == "" || !sub.holds(sub.ActiveRole) {
		return apperrors.NewForbidden("active role is not held by the user")
	}
	if !containsRole(r.roles, sub.ActiveRole) {
		return apperrors.NewForbidden(fmt.Sprintf("role %q may not %s", sub.ActiveRole, action))
	}
	if ticket == nil {
		return apperrors.NewForbidden("ticket required")
	}
	if r.repairOnly && ticket.Type != domain.TicketTypeRepair {
		return apperrors.NewForbidden(fmt.Sprintf("%s applies to repair tickets only", action))
	}
	if containsRole(r.bypassRoles, sub.ActiveRole) {
		return nil
	}
	switch r.relation {
	case owner:
		if ticket.RequesterID != sub.UserID {
			return apperrors.NewForbidden("only the requester may " + string(action))
		}
	case assignee:
		if !ticket.IsAssignedTo(sub.UserID) {
			return apperrors.NewForbidden("only the assigned technician may " + string(action))
		}
	}
	return nil
}

func containsRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
