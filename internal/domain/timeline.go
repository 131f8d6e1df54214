package domain

import "time"

// TimelineAction tags what happened in a timeline entry.
type TimelineAction string

const (
	ActionTagSubmitted           TimelineAction = "SUBMITTED"
	ActionTagApproved            TimelineAction = "APPROVED"
	ActionTagRejected            TimelineAction = "REJECTED"
	ActionTagCancelled           TimelineAction = "CANCELLED"
	ActionTagAssigned            TimelineAction = "ASSIGNED"
	ActionTagAssignmentAccepted  TimelineAction = "ASSIGNMENT_ACCEPTED"
	ActionTagAssignmentRejected  TimelineAction = "ASSIGNMENT_REJECTED"
	ActionTagDiagnosisStarted    TimelineAction = "DIAGNOSIS_STARTED"
	ActionTagDiagnosisCompleted  TimelineAction = "DIAGNOSIS_COMPLETED"
	ActionTagDiagnosisUpdated    TimelineAction = "DIAGNOSIS_UPDATED"
	ActionTagWorkOrderCreated    TimelineAction = "WORK_ORDER_CREATED"
	ActionTagWorkOrderInProgress TimelineAction = "WORK_ORDER_IN_PROCUREMENT"
	ActionTagWorkOrderDelivered  TimelineAction = "WORK_ORDER_DELIVERED"
	ActionTagWorkOrderCompleted  TimelineAction = "WORK_ORDER_COMPLETED"
	ActionTagWorkOrderFailed     TimelineAction = "WORK_ORDER_FAILED"
	ActionTagWorkOrderCancelled  TimelineAction = "WORK_ORDER_CANCELLED"
	ActionTagRepairResumed       TimelineAction = "REPAIR_RESUMED"
	ActionTagRepairCompleted     TimelineAction = "REPAIR_COMPLETED"
	ActionTagClosed              TimelineAction = "CLOSED"
	ActionTagClosedUnrepairable  TimelineAction = "CLOSED_UNREPAIRABLE"
)

// TimelineEvent is an immutable audit trail entry owned by a ticket or work order.
type TimelineEvent struct {
	ID        string
	Seq       int
	Timestamp time.Time
	Action    TimelineAction
	ActorID   string
	ActorName string
	Details   string
}
