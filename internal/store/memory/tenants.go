package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) CreateTenant(ctx context.Context, t *repository.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tenants[t.ID] = *t
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*repository.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := t
	return &out, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *repository.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		return repository.ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	s.tenants[t.ID] = *t
	return nil
}
