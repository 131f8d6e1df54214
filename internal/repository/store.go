package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool  *pgxpool.Pool
	users UserRepository
}

// NewPostgresStore returns a Store backed by pool. users, when not nil, replaces
// the plain user repository outside transactions (e.g. a cached one).
func NewPostgresStore(pool *pgxpool.Pool, users UserRepository) Store {
	if users == nil {
		users = NewUserRepository(pool)
	}
	return &postgresStore{pool: pool, users: users}
}

func (s *postgresStore) Repositories() Repositories {
	return Repositories{
		Tickets:       NewTicketRepository(s.pool),
		WorkOrders:    NewWorkOrderRepository(s.pool),
		Notifications: NewNotificationRepository(s.pool),
		Users:         s.users,
	}
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(Repositories) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return
		}
		if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("commit tx: %w", err)
		}
	}()

	return fn(Repositories{
		Tickets:       newTicketRepository(tx),
		WorkOrders:    newWorkOrderRepository(tx),
		Notifications: newNotificationRepository(tx),
		Users:         newUserRepository(tx),
	})
}
