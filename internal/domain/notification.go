package domain

import "time"

// NotificationType drives how a client renders the message.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is a message for one user, created only as a side effect of a transition.
type Notification struct {
	ID          string
	UserID      string
	TicketID    string
	Title       string
	Message     string
	Type        NotificationType
	Read        bool
	CreatedAt   time.Time
	DeliveredAt *time.Time
	// ClaimedUntil is the lease of the deliverer currently holding the row.
	ClaimedUntil *time.Time
}
