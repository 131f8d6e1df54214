package domain

import "time"

// ProblemCategory classifies the diagnosed fault.
type ProblemCategory string

const (
	ProblemCategoryHardware ProblemCategory = "hardware"
	ProblemCategorySoftware ProblemCategory = "software"
	ProblemCategoryOther    ProblemCategory = "other"
)

// RepairType is the technician's verdict; it selects the branch taken after diagnosis.
type RepairType string

const (
	RepairTypeDirect        RepairType = "direct_repair"
	RepairTypeNeedSparepart RepairType = "need_sparepart"
	RepairTypeNeedVendor    RepairType = "need_vendor"
	RepairTypeNeedLicense   RepairType = "need_license"
	RepairTypeUnrepairable  RepairType = "unrepairable"
)

// NeedsWorkOrder reports whether the verdict routes through procurement.
func (r RepairType) NeedsWorkOrder() bool {
	return r == RepairTypeNeedSparepart || r == RepairTypeNeedVendor || r == RepairTypeNeedLicense
}

// WorkOrderType returns the procurement kind that matches the verdict.
func (r RepairType) WorkOrderType() (WorkOrderType, bool) {
	switch r {
	case RepairTypeNeedSparepart:
		return WorkOrderTypeSparepart, true
	case RepairTypeNeedVendor:
		return WorkOrderTypeVendor, true
	case RepairTypeNeedLicense:
		return WorkOrderTypeLicense, true
	}
	return "", false
}

// Diagnosis is the technician's structured finding, owned 1:1 by a repair ticket.
type Diagnosis struct {
	ProblemCategory     ProblemCategory
	ProblemDescription  string
	PhysicalExam        string
	TestResult          string
	FaultyComponent     string
	RepairType          RepairType
	RepairDescription   string
	UnrepairableReason  string
	AlternativeSolution string
	DiagnosedBy         string
	DiagnosedAt         time.Time
	Revision            int
}
