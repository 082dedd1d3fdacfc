package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) CreateAgent(ctx context.Context, a *repository.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; ok {
		return repository.ErrConflict
	}
	if a.CredentialHash != "" {
		if _, ok := s.byCred[a.CredentialHash]; ok {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.agents[a.ID] = cloneAgent(*a)
	if a.CredentialHash != "" {
		s.byCred[a.CredentialHash] = a.ID
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*repository.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneAgent(a)
	return &out, nil
}

func (s *Store) AgentByCredentialHash(ctx context.Context, hash string) (*repository.Agent, *repository.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCred[hash]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	a, ok := s.agents[id]
	if !ok || a.Revoked {
		return nil, nil, repository.ErrNotFound
	}
	t, ok := s.tenants[a.TenantID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	outA := cloneAgent(a)
	outT := t
	return &outA, &outT, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]repository.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repository.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if a.Revoked {
			continue
		}
		out = append(out, cloneAgent(a))
	}
	return out, nil
}

func (s *Store) UpdateAgent(ctx context.Context, a *repository.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.agents[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if prev.CredentialHash != a.CredentialHash {
		if a.CredentialHash != "" {
			if otherID, busy := s.byCred[a.CredentialHash]; busy && otherID != a.ID {
				return repository.ErrConflict
			}
			s.byCred[a.CredentialHash] = a.ID
		}
		delete(s.byCred, prev.CredentialHash)
	}
	a.UpdatedAt = time.Now().UTC()
	s.agents[a.ID] = cloneAgent(*a)
	return nil
}

func (s *Store) TouchAgentUsage(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.LastUsed = &at
	a.UsageCount++
	s.agents[id] = a
	return nil
}

func (s *Store) AddSpentToday(ctx context.Context, id string, day string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.SpentDay != day {
		a.SpentDay = day
		a.SpentToday = 0
	}
	a.SpentToday += amountCents
	s.agents[id] = a
	return nil
}

func (s *Store) SetEmergencyStop(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.EmergencyStop = active
	a.UpdatedAt = time.Now().UTC()
	s.agents[id] = a
	return nil
}

func (s *Store) RevokeAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Revoked = true
	a.UpdatedAt = time.Now().UTC()
	s.agents[id] = a
	delete(s.byCred, a.CredentialHash)
	return nil
}
