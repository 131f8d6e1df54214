package dto

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/workflow"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Type     domain.TicketType     `json:"type"`
	Priority domain.TicketPriority `json:"priority"`
	Urgency  domain.TicketUrgency  `json:"urgency"`
	Data     map[string]any        `json:"data"`
}

// ActionRequest is the body of POST .../actions/:action. ExpectedVersion is
// the ticket version the client last read and must always be sent.
type ActionRequest struct {
	ExpectedVersion *int64 `json:"expected_version"`
	workflow.Payload
}

// TimelineEventResponse is one audit entry.
type TimelineEventResponse struct {
	Seq       int                   `json:"seq"`
	Timestamp time.Time             `json:"timestamp"`
	Action    domain.TimelineAction `json:"action"`
	ActorID   string                `json:"actor_id"`
	ActorName string                `json:"actor_name,omitempty"`
	Details   string                `json:"details,omitempty"`
}

// DiagnosisResponse is the technician's finding.
type DiagnosisResponse struct {
	ProblemCategory     domain.ProblemCategory `json:"problem_category"`
	ProblemDescription  string                 `json:"problem_description"`
	PhysicalExam        string                 `json:"physical_exam"`
	TestResult          string                 `json:"test_result"`
	FaultyComponent     string                 `json:"faulty_component,omitempty"`
	RepairType          domain.RepairType      `json:"repair_type"`
	RepairDescription   string                 `json:"repair_description,omitempty"`
	UnrepairableReason  string                 `json:"unrepairable_reason,omitempty"`
	AlternativeSolution string                 `json:"alternative_solution,omitempty"`
	DiagnosedBy         string                 `json:"diagnosed_by"`
	DiagnosedAt         time.Time              `json:"diagnosed_at"`
	Revision            int                    `json:"revision"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                   string                `json:"id"`
	TicketNumber         string                `json:"ticket_number"`
	Type                 domain.TicketType     `json:"type"`
	Status               domain.TicketStatus   `json:"status"`
	RequesterID          string                `json:"requester_id"`
	AssignedTechnicianID *string               `json:"assigned_technician_id"`
	Priority             domain.TicketPriority `json:"priority"`
	Urgency              domain.TicketUrgency  `json:"urgency"`
	Version              int64                 `json:"version"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
	ClosedAt             *time.Time            `json:"closed_at"`
	AllowedActions       []domain.Action       `json:"allowed_actions"`
}

// NextStepResponse tells the caller which manual decision is pending.
type NextStepResponse struct {
	Kind         string   `json:"kind"`
	Message      string   `json:"message"`
	WorkOrderIDs []string `json:"work_order_ids"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Data       map[string]any          `json:"data"`
	Diagnosis  *DiagnosisResponse      `json:"diagnosis"`
	Timeline   []TimelineEventResponse `json:"timeline"`
	WorkOrders []WorkOrderResponse     `json:"work_orders"`
	NextStep   *NextStepResponse       `json:"next_step,omitempty"`
}

// WorkOrderResponse describes a procurement sub-task.
type WorkOrderResponse struct {
	ID            string                  `json:"id"`
	TicketID      string                  `json:"ticket_id"`
	Type          domain.WorkOrderType    `json:"type"`
	Status        domain.WorkOrderStatus  `json:"status"`
	CreatedBy     string                  `json:"created_by"`
	Items         []domain.SparepartItem  `json:"items,omitempty"`
	Vendor        *domain.VendorInfo      `json:"vendor,omitempty"`
	License       *domain.LicenseInfo     `json:"license,omitempty"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	SupersedesID  *string                 `json:"supersedes_id,omitempty"`
	Version       int64                   `json:"version"`
	Timeline      []TimelineEventResponse `json:"timeline"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}
