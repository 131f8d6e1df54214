package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

const ticketColumns = `id, ticket_number, type, status, requester_id, assigned_technician_id,
        priority, urgency, data, diagnosis, version, created_at, updated_at, closed_at`

// diagnosisRecord is the stored JSON shape of a diagnosis.
type diagnosisRecord struct {
	ProblemCategory     domain.ProblemCategory `json:"problem_category"`
	ProblemDescription  string                 `json:"problem_description"`
	PhysicalExam        string                 `json:"physical_exam"`
	TestResult          string                 `json:"test_result"`
	FaultyComponent     string                 `json:"faulty_component,omitempty"`
	RepairType          domain.RepairType      `json:"repair_type"`
	RepairDescription   string                 `json:"repair_description,omitempty"`
	UnrepairableReason  string                 `json:"unrepairable_reason,omitempty"`
	AlternativeSolution string                 `json:"alternative_solution,omitempty"`
	DiagnosedBy         string                 `json:"diagnosed_by"`
	DiagnosedAt         time.Time              `json:"diagnosed_at"`
	Revision            int                    `json:"revision"`
}

type ticketRepository struct {
	q querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return newTicketRepository(pool)
}

func newTicketRepository(q querier) *ticketRepository {
	return &ticketRepository{q: q}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	data, diagnosis, err := encodeTicketDocs(ticket)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, ticket_number, type, status, requester_id, assigned_technician_id,
            priority, urgency, data, diagnosis, version, created_at, updated_at, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,$11,$12,$13)`
	_, err = r.q.Exec(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.Type,
		ticket.Status,
		ticket.RequesterID,
		ticket.AssignedTechnicianID,
		ticket.Priority,
		ticket.Urgency,
		data,
		diagnosis,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("ticket already exists", map[string]any{"id": ticket.ID})
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	if err := ticketEvents.append(ctx, r.q, ticket.ID, ticket.Timeline); err != nil {
		return err
	}
	ticket.Version = 1
	return nil
}

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	data, diagnosis, err := encodeTicketDocs(ticket)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET status=$2, assigned_technician_id=$3, priority=$4, urgency=$5,
            data=$6, diagnosis=$7, updated_at=$8, closed_at=$9, version=version+1
        WHERE id=$1 AND version=$10
        RETURNING version`
	var version int64
	err = r.q.QueryRow(ctx, query,
		ticket.ID,
		ticket.Status,
		ticket.AssignedTechnicianID,
		ticket.Priority,
		ticket.Urgency,
		data,
		diagnosis,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		expectedVersion,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return staleOr(ctx, r.q, "tickets", "ticket", ticket.ID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if err := ticketEvents.append(ctx, r.q, ticket.ID, ticket.Timeline); err != nil {
		return err
	}
	ticket.Version = version
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "ticket", id)
	}
	if err := r.attachChildren(ctx, []*domain.Ticket{ticket}); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]*domain.Ticket, error) {
	limit, offset := filter.NormalizedPage()
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(ticketColumns).
		From("tickets").
		OrderBy("updated_at DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	if filter.RequesterID != nil {
		builder = builder.Where(sq.Eq{"requester_id": *filter.RequesterID})
	}
	if filter.TechnicianID != nil {
		builder = builder.Where(sq.Eq{"assigned_technician_id": *filter.TechnicianID})
	}
	if len(filter.Types) > 0 {
		builder = builder.Where(sq.Eq{"type": stringsOf(filter.Types)})
	}
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": stringsOf(filter.Statuses)})
	}
	if len(filter.Priorities) > 0 {
		builder = builder.Where(sq.Eq{"priority": stringsOf(filter.Priorities)})
	}
	if filter.CreatedFrom != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.CreatedFrom})
	}
	if filter.CreatedTo != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filter.CreatedTo})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket list query: %w", err)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachChildren(ctx, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// attachChildren loads timelines and work order ids for tickets in two queries.
func (r *ticketRepository) attachChildren(ctx context.Context, tickets []*domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	events, err := ticketEvents.load(ctx, r.q, ids)
	if err != nil {
		return err
	}

	rows, err := r.q.Query(ctx, `
        SELECT ticket_id, id FROM work_orders
        WHERE ticket_id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	orders := make(map[string][]string)
	for rows.Next() {
		var ticketID, orderID string
		if err := rows.Scan(&ticketID, &orderID); err != nil {
			return err
		}
		orders[ticketID] = append(orders[ticketID], orderID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range tickets {
		t.Timeline = events[t.ID]
		t.WorkOrderIDs = orders[t.ID]
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket    domain.Ticket
		data      []byte
		diagnosis []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Type,
		&ticket.Status,
		&ticket.RequesterID,
		&ticket.AssignedTechnicianID,
		&ticket.Priority,
		&ticket.Urgency,
		&data,
		&diagnosis,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	// Stored legacy statuses are folded into the canonical set on load.
	ticket.Status = domain.NormalizeTicketStatus(string(ticket.Status))
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ticket.Data); err != nil {
			return nil, fmt.Errorf("decode ticket %s data: %w", ticket.ID, err)
		}
	}
	if len(diagnosis) > 0 {
		var rec diagnosisRecord
		if err := json.Unmarshal(diagnosis, &rec); err != nil {
			return nil, fmt.Errorf("decode ticket %s diagnosis: %w", ticket.ID, err)
		}
		d := domain.Diagnosis(rec)
		ticket.Diagnosis = &d
	}
	return &ticket, nil
}

func encodeTicketDocs(ticket *domain.Ticket) (data, diagnosis []byte, err error) {
	data, err = json.Marshal(ticket.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("encode ticket data: %w", err)
	}
	if ticket.Diagnosis != nil {
		diagnosis, err = json.Marshal(diagnosisRecord(*ticket.Diagnosis))
		if err != nil {
			return nil, nil, fmt.Errorf("encode diagnosis: %w", err)
		}
	}
	return data, diagnosis, nil
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
