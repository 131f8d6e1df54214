package domain

import "strings"

// legacyTicketStatuses maps spellings written by older clients onto the canonical enum.
var legacyTicketStatuses = map[string]TicketStatus{
	"diajukan":               TicketStatusSubmitted,
	"pending":                TicketStatusSubmitted,
	"disetujui":              TicketStatusApproved,
	"ditugaskan":             TicketStatusAssigned,
	"diterima":               TicketStatusAccepted,
	"dalam_diagnosa":         TicketStatusDiagnosing,
	"in_diagnosis":           TicketStatusDiagnosing,
	"sedang_diperbaiki":      TicketStatusRepairing,
	"in_progress":            TicketStatusRepairing,
	"dalam_perbaikan":        TicketStatusRepairing,
	"menunggu":               TicketStatusOnHold,
	"menunggu_sparepart":     TicketStatusOnHold,
	"pending_work_order":     TicketStatusOnHold,
	"selesai_diperbaiki":     TicketStatusResolved,
	"completed":              TicketStatusResolved,
	"selesai":                TicketStatusClosed,
	"done":                   TicketStatusClosed,
	"tidak_dapat_diperbaiki": TicketStatusClosedUnrepairable,
	"unrepairable":           TicketStatusClosedUnrepairable,
	"ditolak":                TicketStatusRejected,
	"dibatalkan":             TicketStatusCancelled,
	"canceled":               TicketStatusCancelled,
}

// NormalizeTicketStatus returns the canonical status for a stored value.
// Unknown values are returned lower-cased so that graph membership checks reject them.
func NormalizeTicketStatus(raw string) TicketStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := legacyTicketStatuses[key]; ok {
		return status
	}
	return TicketStatus(key)
}

var legacyWorkOrderStatuses = map[string]WorkOrderStatus{
	"diajukan":     WorkOrderStatusRequested,
	"pending":      WorkOrderStatusRequested,
	"dalam_proses": WorkOrderStatusInProcurement,
	"in_progress":  WorkOrderStatusInProcurement,
	"procurement":  WorkOrderStatusInProcurement,
	"dikirim":      WorkOrderStatusDelivered,
	"selesai":      WorkOrderStatusCompleted,
	"gagal":        WorkOrderStatusFailed,
	"dibatalkan":   WorkOrderStatusCancelled,
	"canceled":     WorkOrderStatusCancelled,
}

// NormalizeWorkOrderStatus is the work order counterpart of NormalizeTicketStatus.
func NormalizeWorkOrderStatus(raw string) WorkOrderStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := legacyWorkOrderStatuses[key]; ok {
		return status
	}
	return WorkOrderStatus(key)
}
