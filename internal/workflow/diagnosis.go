package workflow

import (
	"fmt"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

// parseDiagnosis validates one submission before anything is mutated.
func parseDiagnosis(in *DiagnosisInput) (DiagnosisInput, error) {
	if in == nil {
		return DiagnosisInput{}, apperrors.NewFieldError("diagnosis", "is required")
	}
	d := *in
	d.normalize()
	if err := validateStruct("diagnosis", &d); err != nil {
		return DiagnosisInput{}, err
	}
	return d, nil
}

func (d DiagnosisInput) record(c *change, revision int) *domain.Diagnosis {
	return &domain.Diagnosis{
		ProblemCategory:     domain.ProblemCategory(d.ProblemCategory),
		ProblemDescription:  d.ProblemDescription,
		PhysicalExam:        d.PhysicalExam,
		TestResult:          d.TestResult,
		FaultyComponent:     d.FaultyComponent,
		RepairType:          domain.RepairType(d.RepairType),
		RepairDescription:   d.RepairDescription,
		UnrepairableReason:  d.UnrepairableReason,
		AlternativeSolution: d.AlternativeSolution,
		DiagnosedBy:         c.actor.ID,
		DiagnosedAt:         c.now,
		Revision:            revision,
	}
}

// applyDiagnosis handles submit_diagnosis. The first submission (from
// diagnosing) selects the branch; later ones revise the record in place.
func applyDiagnosis(c *change) error {
	d, err := parseDiagnosis(c.req.Payload.Diagnosis)
	if err != nil {
		return err
	}
	if c.ticket.Status == domain.TicketStatusDiagnosing && c.ticket.Diagnosis == nil {
		return firstDiagnosis(c, d)
	}
	return reviseDiagnosis(c, d)
}

func firstDiagnosis(c *change, d DiagnosisInput) error {
	repairType := domain.RepairType(d.RepairType)
	record := d.record(c, 1)

	switch {
	case repairType == domain.RepairTypeDirect:
		c.ticket.Status = domain.TicketStatusRepairing
	case repairType.NeedsWorkOrder():
		want, _ := repairType.WorkOrderType()
		wo, err := buildWorkOrder(c, c.req.Payload.WorkOrder, want)
		if err != nil {
			return err
		}
		attachWorkOrder(c, wo)
		c.ticket.Status = domain.TicketStatusOnHold
	case repairType == domain.RepairTypeUnrepairable:
		c.ticket.Status = domain.TicketStatusClosedUnrepairable
	}

	c.ticket.Diagnosis = record
	c.tag = domain.ActionTagDiagnosisCompleted
	c.details = diagnosisDetails(record)
	return nil
}

// reviseDiagnosis overwrites the record. Only an unrepairable verdict changes
// the ticket status, and only once no work order is still in progress. A
// failed order does not hold it back.
func reviseDiagnosis(c *change, d DiagnosisInput) error {
	revision := 1
	if c.ticket.Diagnosis != nil {
		revision = c.ticket.Diagnosis.Revision + 1
	}
	record := d.record(c, revision)

	if record.RepairType == domain.RepairTypeUnrepairable {
		if pending := InProgress(c.orders); len(pending) > 0 {
			return blockedError(c.req.Action, c.ticket.Status, pending)
		}
		c.ticket.Diagnosis = record
		c.ticket.Status = domain.TicketStatusClosedUnrepairable
		c.tag = domain.ActionTagClosedUnrepairable
		c.details = diagnosisDetails(record)
		return nil
	}

	c.ticket.Diagnosis = record
	c.tag = domain.ActionTagDiagnosisUpdated
	c.details = fmt.Sprintf("revision %d: %s", revision, diagnosisDetails(record))
	return nil
}

func diagnosisDetails(d *domain.Diagnosis) string {
	switch {
	case d.RepairType == domain.RepairTypeDirect:
		return fmt.Sprintf("%s fault, direct repair: %s", d.ProblemCategory, d.RepairDescription)
	case d.RepairType.NeedsWorkOrder():
		return fmt.Sprintf("%s fault, %s", d.ProblemCategory, d.RepairType)
	case d.RepairType == domain.RepairTypeUnrepairable:
		return fmt.Sprintf("%s fault, unrepairable: %s; alternative: %s", d.ProblemCategory, d.UnrepairableReason, d.AlternativeSolution)
	}
	return string(d.RepairType)
}
