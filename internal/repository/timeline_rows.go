package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

// timelineTable is an append-only event table keyed by (owner, seq).
type timelineTable struct {
	table string
	owner string
}

var (
	ticketEvents    = timelineTable{table: "ticket_events", owner: "ticket_id"}
	workOrderEvents = timelineTable{table: "work_order_events", owner: "work_order_id"}
)

// append inserts the events past the highest stored seq. Stored rows are
// never rewritten; callers hold the owner row lock from the version-checked
// update, so the stored maximum cannot move underneath them.
func (tt timelineTable) append(ctx context.Context, q querier, ownerID string, events []domain.TimelineEvent) error {
	if len(events) == 0 {
		return nil
	}
	var stored int
	err := q.QueryRow(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(seq), 0) FROM %s WHERE %s = $1`, tt.table, tt.owner),
		ownerID).Scan(&stored)
	if err != nil {
		return fmt.Errorf("read %s head: %w", tt.table, err)
	}
	fresh := unsaved(events, stored)
	if len(fresh) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s, seq, id, occurred_at, action, actor_id, actor_name, details)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, tt.table, tt.owner)
	batch := &pgx.Batch{}
	for _, e := range fresh {
		batch.Queue(query, ownerID, e.Seq, e.ID, e.Timestamp, e.Action, e.ActorID, e.ActorName, e.Details)
	}
	br := q.SendBatch(ctx, batch)
	for range fresh {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err) {
				return apperrors.NewConflict("timeline was appended concurrently; refetch and retry",
					map[string]any{"id": ownerID})
			}
			return fmt.Errorf("insert %s: %w", tt.table, err)
		}
	}
	return br.Close()
}

// unsaved returns the tail of events whose seq is above stored.
func unsaved(events []domain.TimelineEvent, stored int) []domain.TimelineEvent {
	for i, e := range events {
		if e.Seq > stored {
			return events[i:]
		}
	}
	return nil
}

// load returns the events of every owner in ownerIDs, ordered by seq.
func (tt timelineTable) load(ctx context.Context, q querier, ownerIDs []string) (map[string][]domain.TimelineEvent, error) {
	out := make(map[string][]domain.TimelineEvent, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`
        SELECT %s, seq, id, occurred_at, action, actor_id, actor_name, details
        FROM %s WHERE %s = ANY($1) ORDER BY %s, seq`, tt.owner, tt.table, tt.owner, tt.owner)

	rows, err := q.Query(ctx, query, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			owner string
			e     domain.TimelineEvent
		)
		if err := rows.Scan(&owner, &e.Seq, &e.ID, &e.Timestamp, &e.Action, &e.ActorID, &e.ActorName, &e.Details); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		out[owner] = append(out[owner], e)
	}
	return out, rows.Err()
}

// notFoundOr maps pgx.ErrNoRows to a NOT_FOUND error for resource.
func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}

// staleOr distinguishes a missing row from a version mismatch after a
// version-checked update touched nothing.
func staleOr(ctx context.Context, q querier, table, resource, id string, expected int64) error {
	var current int64
	err := q.QueryRow(ctx, fmt.Sprintf(`SELECT version FROM %s WHERE id=$1`, table), id).Scan(&current)
	if err != nil {
		return notFoundOr(err, resource, id)
	}
	return apperrors.NewConflict(
		fmt.Sprintf("%s was modified concurrently; refetch and retry", resource),
		map[string]any{"id": id, "expected_version": expected, "current_version": current},
	)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
