package notify

import (
	"fmt"

	"github.com/spec-kit/servicedesk/internal/domain"
)

type message struct {
	title string
	body  string
	kind  domain.NotificationType
}

func compose(ev Event) message {
	t := ev.Ticket
	ref := t.TicketNumber
	if ref == "" {
		ref = t.ID
	}
	withReason := func(s string) string {
		if ev.Reason == "" {
			return s
		}
		return s + ": " + ev.Reason
	}

	switch ev.Tag {
	case domain.ActionTagSubmitted:
		return message{"Ticket submitted", fmt.Sprintf("%s ticket %s is waiting for approval", t.Type, ref), domain.NotificationInfo}
	case domain.ActionTagApproved:
		return message{"Ticket approved", fmt.Sprintf("Ticket %s has been approved", ref), domain.NotificationSuccess}
	case domain.ActionTagRejected:
		return message{"Ticket rejected", withReason(fmt.Sprintf("Ticket %s was rejected", ref)), domain.NotificationError}
	case domain.ActionTagCancelled:
		return message{"Ticket cancelled", fmt.Sprintf("Ticket %s was cancelled by the requester", ref), domain.NotificationWarning}
	case domain.ActionTagAssigned:
		return message{"Technician assigned", fmt.Sprintf("Ticket %s has been assigned to a technician", ref), domain.NotificationInfo}
	case domain.ActionTagAssignmentAccepted:
		return message{"Assignment accepted", fmt.Sprintf("The technician accepted ticket %s and started diagnosis", ref), domain.NotificationSuccess}
	case domain.ActionTagAssignmentRejected:
		return message{"Assignment declined", withReason(fmt.Sprintf("The technician declined ticket %s", ref)), domain.NotificationWarning}
	case domain.ActionTagDiagnosisStarted:
		return message{"Diagnosis started", fmt.Sprintf("Diagnosis of ticket %s has started", ref), domain.NotificationInfo}
	case domain.ActionTagDiagnosisCompleted:
		return diagnosisMessage(t, ref)
	case domain.ActionTagDiagnosisUpdated:
		return message{"Diagnosis updated", fmt.Sprintf("The diagnosis of ticket %s was revised", ref), domain.NotificationInfo}
	case domain.ActionTagWorkOrderCreated:
		return message{"Work order created", fmt.Sprintf("A %s work order was raised for ticket %s", workOrderType(ev), ref), domain.NotificationWarning}
	case domain.ActionTagWorkOrderInProgress:
		return message{"Procurement started", fmt.Sprintf("Procurement for ticket %s is under way", ref), domain.NotificationInfo}
	case domain.ActionTagWorkOrderDelivered, domain.ActionTagWorkOrderCompleted:
		body := fmt.Sprintf("A %s work order for ticket %s is done", workOrderType(ev), ref)
		if ev.ReadyToResume {
			body += "; the repair can resume"
		}
		return message{"Work order finished", body, domain.NotificationSuccess}
	case domain.ActionTagWorkOrderFailed:
		return message{"Work order failed", withReason(fmt.Sprintf("A %s work order for ticket %s failed and needs a decision", workOrderType(ev), ref)), domain.NotificationWarning}
	case domain.ActionTagWorkOrderCancelled:
		body := fmt.Sprintf("A %s work order for ticket %s was cancelled", workOrderType(ev), ref)
		if ev.ReadyToResume {
			body += "; the repair can resume"
		}
		return message{"Work order cancelled", body, domain.NotificationWarning}
	case domain.ActionTagRepairResumed:
		return message{"Repair resumed", fmt.Sprintf("Repair of ticket %s has resumed", ref), domain.NotificationInfo}
	case domain.ActionTagRepairCompleted:
		return message{"Repair completed", fmt.Sprintf("Ticket %s is repaired; please confirm completion", ref), domain.NotificationSuccess}
	case domain.ActionTagClosed:
		return message{"Ticket closed", fmt.Sprintf("Ticket %s is closed", ref), domain.NotificationSuccess}
	case domain.ActionTagClosedUnrepairable:
		return message{"Equipment unrepairable", fmt.Sprintf("Ticket %s was closed as unrepairable", ref), domain.NotificationWarning}
	}
	return message{"Ticket updated", fmt.Sprintf("Ticket %s changed: %s", ref, ev.Tag), domain.NotificationInfo}
}

func diagnosisMessage(t *domain.Ticket, ref string) message {
	if t.Diagnosis == nil {
		return message{"Diagnosis completed", fmt.Sprintf("Diagnosis of ticket %s is complete", ref), domain.NotificationInfo}
	}
	switch rt := t.Diagnosis.RepairType; {
	case rt == domain.RepairTypeDirect:
		return message{"Diagnosis completed", fmt.Sprintf("Ticket %s can be repaired directly; repair is under way", ref), domain.NotificationSuccess}
	case rt.NeedsWorkOrder():
		woType, _ := rt.WorkOrderType()
		return message{"Ticket on hold", fmt.Sprintf("Ticket %s is on hold waiting for a %s work order", ref, woType), domain.NotificationWarning}
	case rt == domain.RepairTypeUnrepairable:
		return message{"Equipment unrepairable", fmt.Sprintf("Ticket %s was diagnosed as unrepairable: %s", ref, t.Diagnosis.UnrepairableReason), domain.NotificationWarning}
	}
	return message{"Diagnosis completed", fmt.Sprintf("Diagnosis of ticket %s is complete", ref), domain.NotificationInfo}
}

func workOrderType(ev Event) string {
	if ev.WorkOrder == nil {
		return "procurement"
	}
	return string(ev.WorkOrder.Type)
}
