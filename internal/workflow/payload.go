package workflow

import (
	"strings"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Payload carries the action-specific fields of a transition request.
// Only the fields relevant to the action are read.
type Payload struct {
	Reason       string          `json:"reason"`
	TechnicianID string          `json:"technician_id"`
	Notes        string          `json:"notes"`
	Diagnosis    *DiagnosisInput `json:"diagnosis"`
	WorkOrder    *WorkOrderInput `json:"work_order"`
}

// DiagnosisInput is one complete diagnosis submission.
type DiagnosisInput struct {
	ProblemCategory     string `json:"problem_category" validate:"required,oneof=hardware software other"`
	ProblemDescription  string `json:"problem_description" validate:"notblank"`
	PhysicalExam        string `json:"physical_exam" validate:"notblank"`
	TestResult          string `json:"test_result" validate:"notblank"`
	FaultyComponent     string `json:"faulty_component"`
	RepairType          string `json:"repair_type" validate:"required,oneof=direct_repair need_sparepart need_vendor need_license unrepairable"`
	RepairDescription   string `json:"repair_description" validate:"required_if=RepairType direct_repair"`
	UnrepairableReason  string `json:"unrepairable_reason" validate:"required_if=RepairType unrepairable"`
	AlternativeSolution string `json:"alternative_solution" validate:"required_if=RepairType unrepairable"`
}

func (d *DiagnosisInput) normalize() {
	d.ProblemCategory = strings.ToLower(strings.TrimSpace(d.ProblemCategory))
	d.ProblemDescription = strings.TrimSpace(d.ProblemDescription)
	d.PhysicalExam = strings.TrimSpace(d.PhysicalExam)
	d.TestResult = strings.TrimSpace(d.TestResult)
	d.FaultyComponent = strings.TrimSpace(d.FaultyComponent)
	d.RepairType = strings.ToLower(strings.TrimSpace(d.RepairType))
	d.RepairDescription = strings.TrimSpace(d.RepairDescription)
	d.UnrepairableReason = strings.TrimSpace(d.UnrepairableReason)
	d.AlternativeSolution = strings.TrimSpace(d.AlternativeSolution)
}

// WorkOrderInput describes a procurement request. Exactly one of Items, Vendor
// or License is used, selected by Type.
type WorkOrderInput struct {
	Type         string                 `json:"type" validate:"omitempty,oneof=sparepart vendor license"`
	Items        []domain.SparepartItem `json:"items" validate:"dive"`
	Vendor       *domain.VendorInfo     `json:"vendor"`
	License      *domain.LicenseInfo    `json:"license"`
	SupersedesID string                 `json:"supersedes_id"`
}

func (w *WorkOrderInput) normalize() {
	w.Type = strings.ToLower(strings.TrimSpace(w.Type))
	w.SupersedesID = strings.TrimSpace(w.SupersedesID)
	for i := range w.Items {
		w.Items[i].Name = strings.TrimSpace(w.Items[i].Name)
		w.Items[i].Unit = strings.TrimSpace(w.Items[i].Unit)
		w.Items[i].Notes = strings.TrimSpace(w.Items[i].Notes)
	}
	if w.Vendor != nil {
		w.Vendor.Name = strings.TrimSpace(w.Vendor.Name)
		w.Vendor.Contact = strings.TrimSpace(w.Vendor.Contact)
		w.Vendor.Description = strings.TrimSpace(w.Vendor.Description)
	}
	if w.License != nil {
		w.License.Name = strings.TrimSpace(w.License.Name)
		w.License.Description = strings.TrimSpace(w.License.Description)
	}
}
