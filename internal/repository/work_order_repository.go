package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

const workOrderColumns = `id, ticket_id, type, status, created_by, items, vendor, license,
        failure_reason, supersedes_id, version, created_at, updated_at`

type workOrderRepository struct {
	q querier
}

// NewWorkOrderRepository returns a Postgres-backed implementation.
func NewWorkOrderRepository(pool *pgxpool.Pool) WorkOrderRepository {
	return newWorkOrderRepository(pool)
}

func newWorkOrderRepository(q querier) *workOrderRepository {
	return &workOrderRepository{q: q}
}

func (r *workOrderRepository) Create(ctx context.Context, order *domain.WorkOrder) error {
	items, vendor, license, err := encodeWorkOrderDocs(order)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO work_orders (id, ticket_id, type, status, created_by, items, vendor, license,
            failure_reason, supersedes_id, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,$11,$12)`
	_, err = r.q.Exec(ctx, query,
		order.ID,
		order.TicketID,
		order.Type,
		order.Status,
		order.CreatedBy,
		items,
		vendor,
		license,
		order.FailureReason,
		order.SupersedesID,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("work order already exists", map[string]any{"id": order.ID})
		}
		return fmt.Errorf("insert work order: %w", err)
	}
	if err := workOrderEvents.append(ctx, r.q, order.ID, order.Timeline); err != nil {
		return err
	}
	order.Version = 1
	return nil
}

func (r *workOrderRepository) Save(ctx context.Context, order *domain.WorkOrder, expectedVersion int64) error {
	const query = `
        UPDATE work_orders SET status=$2, failure_reason=$3, updated_at=$4, version=version+1
        WHERE id=$1 AND version=$5
        RETURNING version`
	var version int64
	err := r.q.QueryRow(ctx, query,
		order.ID,
		order.Status,
		order.FailureReason,
		order.UpdatedAt,
		expectedVersion,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return staleOr(ctx, r.q, "work_orders", "work order", order.ID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("update work order: %w", err)
	}
	if err := workOrderEvents.append(ctx, r.q, order.ID, order.Timeline); err != nil {
		return err
	}
	order.Version = version
	return nil
}

func (r *workOrderRepository) GetByID(ctx context.Context, id string) (*domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders WHERE id=$1`
	order, err := scanWorkOrder(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "work order", id)
	}
	events, err := workOrderEvents.load(ctx, r.q, []string{id})
	if err != nil {
		return nil, err
	}
	order.Timeline = events[id]
	return order, nil
}

func (r *workOrderRepository) ListByTicket(ctx context.Context, ticketID string) ([]*domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders WHERE ticket_id=$1 ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		orders []*domain.WorkOrder
		ids    []string
	)
	for rows.Next() {
		order, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	events, err := workOrderEvents.load(ctx, r.q, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Timeline = events[o.ID]
	}
	return orders, nil
}

func scanWorkOrder(row pgx.Row) (*domain.WorkOrder, error) {
	var (
		order                  domain.WorkOrder
		items, vendor, license []byte
	)
	if err := row.Scan(
		&order.ID,
		&order.TicketID,
		&order.Type,
		&order.Status,
		&order.CreatedBy,
		&items,
		&vendor,
		&license,
		&order.FailureReason,
		&order.SupersedesID,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	order.Status = domain.NormalizeWorkOrderStatus(string(order.Status))
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, fmt.Errorf("decode work order %s items: %w", order.ID, err)
		}
	}
	if len(vendor) > 0 {
		order.Vendor = &domain.VendorInfo{}
		if err := json.Unmarshal(vendor, order.Vendor); err != nil {
			return nil, fmt.Errorf("decode work order %s vendor: %w", order.ID, err)
		}
	}
	if len(license) > 0 {
		order.License = &domain.LicenseInfo{}
		if err := json.Unmarshal(license, order.License); err != nil {
			return nil, fmt.Errorf("decode work order %s license: %w", order.ID, err)
		}
	}
	return &order, nil
}

func encodeWorkOrderDocs(order *domain.WorkOrder) (items, vendor, license []byte, err error) {
	if len(order.Items) > 0 {
		if items, err = json.Marshal(order.Items); err != nil {
			return nil, nil, nil, fmt.Errorf("encode items: %w", err)
		}
	}
	if order.Vendor != nil {
		if vendor, err = json.Marshal(order.Vendor); err != nil {
			return nil, nil, nil, fmt.Errorf("encode vendor: %w", err)
		}
	}
	if order.License != nil {
		if license, err = json.Marshal(order.License); err != nil {
			return nil, nil, nil, fmt.Errorf("encode license: %w", err)
		}
	}
	return items, vendor, license, nil
}
