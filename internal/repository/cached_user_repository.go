package repository

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// CachedUserRepository keeps recently read users and role listings in memory.
type CachedUserRepository struct {
	next  UserRepository
	cache *cache.Cache
}

// NewCachedUserRepository wraps next with a ttl-bound cache. A ttl <= 0 disables caching.
func NewCachedUserRepository(next UserRepository, ttl time.Duration) UserRepository {
	if ttl <= 0 {
		return next
	}
	return &CachedUserRepository{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (r *CachedUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.next.Create(ctx, user); err != nil {
		return err
	}
	r.Invalidate()
	return nil
}

func (r *CachedUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	key := "id:" + id
	if v, ok := r.cache.Get(key); ok {
		return cloneUser(v.(*domain.User)), nil
	}
	user, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, cloneUser(user))
	return user, nil
}

// GetByEmail is not cached; it backs login where the password hash must be fresh.
func (r *CachedUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.next.GetByEmail(ctx, email)
}

func (r *CachedUserRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	key := "role:" + string(role)
	if v, ok := r.cache.Get(key); ok {
		return cloneUsers(v.([]*domain.User)), nil
	}
	users, err := r.next.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, cloneUsers(users))
	return users, nil
}

// Invalidate drops every cached entry.
func (r *CachedUserRepository) Invalidate() {
	r.cache.Flush()
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = append([]domain.Role(nil), u.Roles...)
	return &out
}

func cloneUsers(in []*domain.User) []*domain.User {
	out := make([]*domain.User, len(in))
	for i, u := range in {
		out[i] = cloneUser(u)
	}
	return out
}
