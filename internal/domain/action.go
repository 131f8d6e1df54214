package domain

// Action is a transition name accepted by the workflow entry point.
type Action string

// Ticket actions.
const (
	ActionSubmit            Action = "submit"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionCancel            Action = "cancel"
	ActionAssign            Action = "assign"
	ActionAccept            Action = "accept"
	ActionRejectAssignment  Action = "reject_assignment"
	ActionStartDiagnosis    Action = "start_diagnosis"
	ActionSubmitDiagnosis   Action = "submit_diagnosis"
	ActionCreateWorkOrder   Action = "create_work_order"
	ActionResumeRepair      Action = "resume_repair"
	ActionCompleteRepair    Action = "complete_repair"
	ActionConfirmCompletion Action = "confirm_completion"
	ActionClose             Action = "close"
)

// Work order actions.
const (
	ActionStartProcurement  Action = "start_procurement"
	ActionDeliverWorkOrder  Action = "deliver"
	ActionCompleteWorkOrder Action = "complete"
	ActionFailWorkOrder     Action = "fail"
	ActionCancelWorkOrder   Action = "cancel_work_order"
)

var ticketActions = map[Action]struct{}{
	ActionSubmit: {}, ActionApprove: {}, ActionReject: {}, ActionCancel: {}, ActionAssign: {},
	ActionAccept: {}, ActionRejectAssignment: {}, ActionStartDiagnosis: {}, ActionSubmitDiagnosis: {},
	ActionCreateWorkOrder: {}, ActionResumeRepair: {}, ActionCompleteRepair: {},
	ActionConfirmCompletion: {}, ActionClose: {},
}

var workOrderActions = map[Action]struct{}{
	ActionStartProcurement: {}, ActionDeliverWorkOrder: {}, ActionCompleteWorkOrder: {},
	ActionFailWorkOrder: {}, ActionCancelWorkOrder: {},
}

// IsTicketAction reports whether a is applied to a ticket directly.
func (a Action) IsTicketAction() bool {
	_, ok := ticketActions[a]
	return ok
}

// IsWorkOrderAction reports whether a targets a work order.
func (a Action) IsWorkOrderAction() bool {
	_, ok := workOrderActions[a]
	return ok
}

// Known reports whether a is part of the action enum.
func (a Action) Known() bool {
	return a.IsTicketAction() || a.IsWorkOrderAction()
}
