package handlers

import (
	"github.com/spec-kit/servicedesk/internal/api/dto"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/service"
)

func ticketSummary(view *service.TicketView) dto.TicketSummary {
	t := view.Ticket
	allowed := view.Allowed
	if allowed == nil {
		allowed = []domain.Action{}
	}
	return dto.TicketSummary{
		ID:                   t.ID,
		TicketNumber:         t.TicketNumber,
		Type:                 t.Type,
		Status:               t.Status,
		RequesterID:          t.RequesterID,
		AssignedTechnicianID: t.AssignedTechnicianID,
		Priority:             t.Priority,
		Urgency:              t.Urgency,
		Version:              t.Version,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		ClosedAt:             t.ClosedAt,
		AllowedActions:       allowed,
	}
}

func ticketDetail(view *service.TicketView) dto.TicketDetailResponse {
	orders := make([]dto.WorkOrderResponse, 0, len(view.WorkOrders))
	for _, wo := range view.WorkOrders {
		orders = append(orders, workOrderResponse(wo))
	}
	resp := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(view),
		Data:          view.Ticket.Data,
		Diagnosis:     diagnosisResponse(view.Ticket.Diagnosis),
		Timeline:      timelineResponse(view.Ticket.Timeline),
		WorkOrders:    orders,
	}
	if step := view.NextStep; step != nil {
		resp.NextStep = &dto.NextStepResponse{Kind: step.Kind, Message: step.Message, WorkOrderIDs: step.WorkOrderIDs}
	}
	return resp
}

func diagnosisResponse(d *domain.Diagnosis) *dto.DiagnosisResponse {
	if d == nil {
		return nil
	}
	return &dto.DiagnosisResponse{
		ProblemCategory:     d.ProblemCategory,
		ProblemDescription:  d.ProblemDescription,
		PhysicalExam:        d.PhysicalExam,
		TestResult:          d.TestResult,
		FaultyComponent:     d.FaultyComponent,
		RepairType:          d.RepairType,
		RepairDescription:   d.RepairDescription,
		UnrepairableReason:  d.UnrepairableReason,
		AlternativeSolution: d.AlternativeSolution,
		DiagnosedBy:         d.DiagnosedBy,
		DiagnosedAt:         d.DiagnosedAt,
		Revision:            d.Revision,
	}
}

func workOrderResponse(wo *domain.WorkOrder) dto.WorkOrderResponse {
	return dto.WorkOrderResponse{
		ID:            wo.ID,
		TicketID:      wo.TicketID,
		Type:          wo.Type,
		Status:        wo.Status,
		CreatedBy:     wo.CreatedBy,
		Items:         wo.Items,
		Vendor:        wo.Vendor,
		License:       wo.License,
		FailureReason: wo.FailureReason,
		SupersedesID:  wo.SupersedesID,
		Version:       wo.Version,
		Timeline:      timelineResponse(wo.Timeline),
		CreatedAt:     wo.CreatedAt,
		UpdatedAt:     wo.UpdatedAt,
	}
}

func timelineResponse(events []domain.TimelineEvent) []dto.TimelineEventResponse {
	out := make([]dto.TimelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, dto.TimelineEventResponse{
			Seq:       e.Seq,
			Timestamp: e.Timestamp,
			Action:    e.Action,
			ActorID:   e.ActorID,
			ActorName: e.ActorName,
			Details:   e.Details,
		})
	}
	return out
}
