package domain

import "time"

// WorkOrderType is the procurement kind.
type WorkOrderType string

const (
	WorkOrderTypeSparepart WorkOrderType = "sparepart"
	WorkOrderTypeVendor    WorkOrderType = "vendor"
	WorkOrderTypeLicense   WorkOrderType = "license"
)

// WorkOrderStatus enumerates procurement states.
type WorkOrderStatus string

const (
	WorkOrderStatusRequested     WorkOrderStatus = "requested"
	WorkOrderStatusInProcurement WorkOrderStatus = "in_procurement"
	WorkOrderStatusDelivered     WorkOrderStatus = "delivered"
	WorkOrderStatusCompleted     WorkOrderStatus = "completed"
	WorkOrderStatusFailed        WorkOrderStatus = "failed"
	WorkOrderStatusCancelled     WorkOrderStatus = "cancelled"
)

// IsTerminal reports whether the order accepts no further transition.
func (s WorkOrderStatus) IsTerminal() bool {
	switch s {
	case WorkOrderStatusDelivered, WorkOrderStatusCompleted, WorkOrderStatusFailed, WorkOrderStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known work order status.
func (s WorkOrderStatus) Valid() bool {
	switch s {
	case WorkOrderStatusRequested, WorkOrderStatusInProcurement:
		return true
	}
	return s.IsTerminal()
}

// SparepartItem is one line of a sparepart order.
type SparepartItem struct {
	Name     string `json:"name" validate:"notblank"`
	Quantity int    `json:"quantity" validate:"gte=1"`
	Unit     string `json:"unit" validate:"notblank"`
	Notes    string `json:"notes,omitempty"`
}

// VendorInfo describes an external repair vendor engagement.
type VendorInfo struct {
	Name        string `json:"name" validate:"notblank"`
	Contact     string `json:"contact" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
}

// LicenseInfo describes a software license purchase.
type LicenseInfo struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
	Seats       int    `json:"seats,omitempty" validate:"gte=0"`
}

// WorkOrder is a procurement sub-task linked to a repair ticket.
type WorkOrder struct {
	ID            string
	TicketID      string
	Type          WorkOrderType
	Status        WorkOrderStatus
	CreatedBy     string
	Items         []SparepartItem
	Vendor        *VendorInfo
	License       *LicenseInfo
	FailureReason string
	SupersedesID  *string
	Timeline      []TimelineEvent
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy.
func (w *WorkOrder) Clone() *WorkOrder {
	if w == nil {
		return nil
	}
	out := *w
	out.Items = append([]SparepartItem(nil), w.Items...)
	if w.Vendor != nil {
		v := *w.Vendor
		out.Vendor = &v
	}
	if w.License != nil {
		l := *w.License
		out.License = &l
	}
	if w.SupersedesID != nil {
		id := *w.SupersedesID
		out.SupersedesID = &id
	}
	out.Timeline = append([]TimelineEvent(nil), w.Timeline...)
	return &out
}
