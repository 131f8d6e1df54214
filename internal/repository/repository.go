package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// TicketFilter narrows ticket listings. Empty fields do not filter.
type TicketFilter struct {
	RequesterID  *string
	TechnicianID *string
	Types        []domain.TicketType
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// DefaultListLimit applies when a filter asks for no limit.
const DefaultListLimit = 20

// NormalizedPage returns the limit and offset a listing should use.
func (f TicketFilter) NormalizedPage() (int, int) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// TicketRepository persists tickets together with their timelines.
type TicketRepository interface {
	// Create stores a new ticket and sets its version to 1.
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Save writes ticket only when the stored version equals expectedVersion,
	// then bumps ticket.Version. A mismatch is a CONFLICT error.
	Save(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]*domain.Ticket, error)
}

// WorkOrderRepository persists work orders together with their timelines.
type WorkOrderRepository interface {
	Create(ctx context.Context, order *domain.WorkOrder) error
	Save(ctx context.Context, order *domain.WorkOrder, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.WorkOrder, error)
	ListByTicket(ctx context.Context, ticketID string) ([]*domain.WorkOrder, error)
}

// NotificationRepository is the notification outbox and inbox.
type NotificationRepository interface {
	Enqueue(ctx context.Context, n *domain.Notification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	ListUndelivered(ctx context.Context, limit int) ([]*domain.Notification, error)
	// Claim leases the undelivered notifications among ids that nobody holds
	// at now, until until, and returns the ones it leased.
	Claim(ctx context.Context, ids []string, now, until time.Time) ([]*domain.Notification, error)
	// ClaimPending leases up to limit unheld undelivered notifications, oldest first.
	ClaimPending(ctx context.Context, limit int, now, until time.Time) ([]*domain.Notification, error)
	// Release drops the lease so the next relay tick retries the notification.
	Release(ctx context.Context, id string) error
	// MarkDelivered records delivery and drops the lease.
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

// UserRepository defines read access to accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Tickets       TicketRepository
	WorkOrders    WorkOrderRepository
	Notifications NotificationRepository
	Users         UserRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repositories() Repositories
	// WithinTx runs fn against repositories bound to a single transaction.
	// Nothing fn wrote is visible to others unless fn returns nil.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}
