// Package memory is an in-process repository.Store. Transactions run one at a
// time on a copy of the data that replaces the live copy on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/repository"
	apperrors "github.com/spec-kit/servicedesk/pkg/util/errorutil"
)

type state struct {
	tickets       map[string]*domain.Ticket
	orders        map[string]*domain.WorkOrder
	notifications map[string]*domain.Notification
	users         map[string]*domain.User
}

func newState() *state {
	return &state{
		tickets:       map[string]*domain.Ticket{},
		orders:        map[string]*domain.WorkOrder{},
		notifications: map[string]*domain.Notification{},
		users:         map[string]*domain.User{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, t := range s.tickets {
		out.tickets[id] = t.Clone()
	}
	for id, o := range s.orders {
		out.orders[id] = o.Clone()
	}
	for id, n := range s.notifications {
		out.notifications[id] = cloneNotification(n)
	}
	for id, u := range s.users {
		out.users[id] = cloneUser(u)
	}
	return out
}

// Store is safe for concurrent use.
type Store struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Repositories returns repositories that read and write the live data directly.
func (s *Store) Repositories() repository.Repositories {
	return s.bind(view{store: s})
}

// WithinTx runs fn on a private copy of the data and publishes the copy only
// when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	draft := s.state.clone()
	s.mu.Unlock()

	if err := fn(s.bind(view{store: s, tx: draft})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.mu.Lock()
	s.state = draft
	s.mu.Unlock()
	return nil
}

func (s *Store) bind(v view) repository.Repositories {
	return repository.Repositories{
		Tickets:       ticketRepo{v},
		WorkOrders:    workOrderRepo{v},
		Notifications: notificationRepo{v},
		Users:         userRepo{v},
	}
}

// view resolves which copy of the data an operation touches.
type view struct {
	store *Store
	tx    *state
}

func (v view) read(fn func(*state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

// write outside a transaction is serialized with transactions so a commit
// never drops it.
func (v view) write(fn func(*state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	return v.read(fn)
}

func conflict(resource, id string, expected, current int64) error {
	return apperrors.NewConflict(
		fmt.Sprintf("%s was modified concurrently; refetch and retry", resource),
		map[string]any{"id": id, "expected_version": expected, "current_version": current},
	)
}

type ticketRepo struct{ v view }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.tickets[ticket.ID]; ok {
			return apperrors.NewConflict("ticket already exists", map[string]any{"id": ticket.ID})
		}
		ticket.Version = 1
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r ticketRepo) Save(_ context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	return r.v.write(func(st *state) error {
		current, ok := st.tickets[ticket.ID]
		if !ok {
			return apperrors.NewNotFound("ticket", map[string]any{"id": ticket.ID})
		}
		if current.Version != expectedVersion {
			return conflict("ticket", ticket.ID, expectedVersion, current.Version)
		}
		if len(ticket.Timeline) < len(current.Timeline) {
			return fmt.Errorf("ticket %s: timeline would shrink from %d to %d events", ticket.ID, len(current.Timeline), len(ticket.Timeline))
		}
		ticket.Version = expectedVersion + 1
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.read(func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]*domain.Ticket, error) {
	var matched []*domain.Ticket
	_ = r.v.read(func(st *state) error {
		for _, t := range st.tickets {
			if matches(t, filter) {
				matched = append(matched, t.Clone())
			}
		}
		return nil
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	limit, offset := filter.NormalizedPage()
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matches(t *domain.Ticket, f repository.TicketFilter) bool {
	if f.RequesterID != nil && t.RequesterID != *f.RequesterID {
		return false
	}
	if f.TechnicianID != nil && !t.IsAssignedTo(*f.TechnicianID) {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, t.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, t.Priority) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

type workOrderRepo struct{ v view }

func (r workOrderRepo) Create(_ context.Context, order *domain.WorkOrder) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.orders[order.ID]; ok {
			return apperrors.NewConflict("work order already exists", map[string]any{"id": order.ID})
		}
		order.Version = 1
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r workOrderRepo) Save(_ context.Context, order *domain.WorkOrder, expectedVersion int64) error {
	return r.v.write(func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok {
			return apperrors.NewNotFound("work order", map[string]any{"id": order.ID})
		}
		if current.Version != expectedVersion {
			return conflict("work order", order.ID, expectedVersion, current.Version)
		}
		order.Version = expectedVersion + 1
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r workOrderRepo) GetByID(_ context.Context, id string) (*domain.WorkOrder, error) {
	var out *domain.WorkOrder
	err := r.v.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return apperrors.NewNotFound("work order", map[string]any{"id": id})
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

func (r workOrderRepo) ListByTicket(_ context.Context, ticketID string) ([]*domain.WorkOrder, error) {
	var out []*domain.WorkOrder
	_ = r.v.read(func(st *state) error {
		for _, o := range st.orders {
			if o.TicketID == ticketID {
				out = append(out, o.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type notificationRepo struct{ v view }

func (r notificationRepo) Enqueue(_ context.Context, n *domain.Notification) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.notifications[n.ID]; ok {
			return apperrors.NewConflict("notification already exists", map[string]any{"id": n.ID})
		}
		st.notifications[n.ID] = cloneNotification(n)
		return nil
	})
}

func (r notificationRepo) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	out := r.collect(func(n *domain.Notification) bool {
		return n.UserID == userID && (!unreadOnly || !n.Read)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

func (r notificationRepo) MarkRead(_ context.Context, userID, id string) error {
	return r.v.write(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
		n.Read = true
		return nil
	})
}

func (r notificationRepo) ListUndelivered(_ context.Context, limit int) ([]*domain.Notification, error) {
	out := r.collect(func(n *domain.Notification) bool { return n.DeliveredAt == nil })
	sortOldestFirst(out)
	return truncate(out, limit), nil
}

func sortOldestFirst(ns []*domain.Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.Before(ns[j].CreatedAt)
		}
		return ns[i].ID < ns[j].ID
	})
}

func (r notificationRepo) Claim(_ context.Context, ids []string, now, until time.Time) ([]*domain.Notification, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return r.claim(func(n *domain.Notification) bool { return wanted[n.ID] }, 0, now, until)
}

func (r notificationRepo) ClaimPending(_ context.Context, limit int, now, until time.Time) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	return r.claim(func(*domain.Notification) bool { return true }, limit, now, until)
}

func (r notificationRepo) claim(match func(*domain.Notification) bool, limit int, now, until time.Time) ([]*domain.Notification, error) {
	var out []*domain.Notification
	err := r.v.write(func(st *state) error {
		var free []*domain.Notification
		for _, n := range st.notifications {
			if n.DeliveredAt == nil && (n.ClaimedUntil == nil || !n.ClaimedUntil.After(now)) && match(n) {
				free = append(free, n)
			}
		}
		sortOldestFirst(free)
		if limit > 0 && len(free) > limit {
			free = free[:limit]
		}
		for _, n := range free {
			lease := until
			n.ClaimedUntil = &lease
			out = append(out, cloneNotification(n))
		}
		return nil
	})
	return out, err
}

func (r notificationRepo) Release(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
		n.ClaimedUntil = nil
		return nil
	})
}

func (r notificationRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	return r.v.write(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
		if n.DeliveredAt == nil {
			n.DeliveredAt = &at
		}
		n.ClaimedUntil = nil
		return nil
	})
}

func (r notificationRepo) collect(keep func(*domain.Notification) bool) []*domain.Notification {
	var out []*domain.Notification
	_ = r.v.read(func(st *state) error {
		for _, n := range st.notifications {
			if keep(n) {
				out = append(out, cloneNotification(n))
			}
		}
		return nil
	})
	return out
}

func truncate(in []*domain.Notification, limit int) []*domain.Notification {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	if len(in) > limit {
		return in[:limit]
	}
	return in
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	out := *n
	if n.DeliveredAt != nil {
		at := *n.DeliveredAt
		out.DeliveredAt = &at
	}
	if n.ClaimedUntil != nil {
		until := *n.ClaimedUntil
		out.ClaimedUntil = &until
	}
	return &out
}

type userRepo struct{ v view }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	return r.v.write(func(st *state) error {
		email := strings.ToLower(user.Email)
		for _, u := range st.users {
			if u.ID == user.ID || (email != "" && strings.ToLower(u.Email) == email) {
				return apperrors.NewConflict("user already exists", map[string]any{"id": user.ID})
			}
		}
		now := time.Now().UTC()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		st.users[user.ID] = cloneUser(user)
		return nil
	})
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.v.read(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		out = cloneUser(u)
		return nil
	})
	return out, err
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out *domain.User
	err := r.v.read(func(st *state) error {
		for _, u := range st.users {
			if strings.ToLower(u.Email) == email {
				out = cloneUser(u)
				return nil
			}
		}
		return apperrors.NewNotFound("user", map[string]any{"id": email})
	})
	return out, err
}

func (r userRepo) ListByRole(_ context.Context, role domain.Role) ([]*domain.User, error) {
	var out []*domain.User
	_ = r.v.read(func(st *state) error {
		for _, u := range st.users {
			if u.HasRole(role) {
				out = append(out, cloneUser(u))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneUser(u *domain.User) *domain.User {
	out := *u
	out.Roles = append([]domain.Role(nil), u.Roles...)
	return &out
}
