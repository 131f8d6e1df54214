package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

const notificationColumns = `id, user_id, ticket_id, title, message, type, read, created_at, delivered_at, claimed_until`

type notificationRepository struct {
	q querier
}

// NewNotificationRepository returns a Postgres-backed outbox.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return newNotificationRepository(pool)
}

func newNotificationRepository(q querier) *notificationRepository {
	return &notificationRepository{q: q}
}

func (r *notificationRepository) Enqueue(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, user_id, ticket_id, title, message, type, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)`
	if _, err := r.q.Exec(ctx, query, n.ID, n.UserID, n.TicketID, n.Title, n.Message, n.Type, n.CreatedAt); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(notificationColumns).
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit))
	if unreadOnly {
		builder = builder.Where(sq.Eq{"read": false})
	}
	return r.list(ctx, builder)
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	cmd, err := r.q.Exec(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("notification", map[string]any{"id": id})
	}
	return nil
}

func (r *notificationRepository) ListUndelivered(ctx context.Context, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(notificationColumns).
		From("notifications").
		Where(sq.Eq{"delivered_at": nil}).
		OrderBy("created_at", "id").
		Limit(uint64(limit))
	return r.list(ctx, builder)
}

func (r *notificationRepository) Claim(ctx context.Context, ids []string, now, until time.Time) ([]*domain.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
        UPDATE notifications SET claimed_until=$3
        WHERE id = ANY($1) AND delivered_at IS NULL AND (claimed_until IS NULL OR claimed_until <= $2)
        RETURNING ` + notificationColumns
	rows, err := r.q.Query(ctx, query, ids, now, until)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	return scanClaimed(rows)
}

func (r *notificationRepository) ClaimPending(ctx context.Context, limit int, now, until time.Time) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `
        UPDATE notifications SET claimed_until=$2
        WHERE id IN (
            SELECT id FROM notifications
            WHERE delivered_at IS NULL AND (claimed_until IS NULL OR claimed_until <= $1)
            ORDER BY created_at, id
            LIMIT $3
            FOR UPDATE SKIP LOCKED)
        RETURNING ` + notificationColumns
	rows, err := r.q.Query(ctx, query, now, until, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending notifications: %w", err)
	}
	return scanClaimed(rows)
}

func (r *notificationRepository) Release(ctx context.Context, id string) error {
	cmd, err := r.q.Exec(ctx, `UPDATE notifications SET claimed_until=NULL WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("notification", map[string]any{"id": id})
	}
	return nil
}

func (r *notificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.q.Exec(ctx, `UPDATE notifications SET delivered_at=$2, claimed_until=NULL WHERE id=$1 AND delivered_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
	}
	return nil
}

func (r *notificationRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]*domain.Notification, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build notification query: %w", err)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanNotifications(rows)
}

// scanClaimed scans UPDATE ... RETURNING rows, which come back unordered.
func scanClaimed(rows pgx.Rows) ([]*domain.Notification, error) {
	out, err := scanNotifications(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	defer rows.Close()
	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.TicketID, &n.Title, &n.Message, &n.Type, &n.Read, &n.CreatedAt, &n.DeliveredAt, &n.ClaimedUntil); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
