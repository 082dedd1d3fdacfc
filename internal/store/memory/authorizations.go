package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) PutAuthorization(ctx context.Context, a *repository.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert por ID: un reintento de la cola de persistencia no puede pisar
	// una transición de estado posterior.
	if prev, ok := s.auths[a.ID]; ok && prev.Status != a.Status && prev.Status.Terminal() {
		return nil
	}
	s.auths[a.ID] = *a
	return nil
}

func (s *Store) GetAuthorization(ctx context.Context, id string) (*repository.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auths[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := a
	return &out, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from, to repository.AuthorizationStatus, finalAmountCents int64, chargeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auths[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Status != from {
		return repository.ErrInvalidStatus
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	if to == repository.StatusConfirmed {
		a.FinalAmountCents = finalAmountCents
		a.ChargeID = chargeID
	}
	s.auths[id] = a
	return nil
}

func (s *Store) CountAuthorizationsToday(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := time.Now().UTC().Format("2006-01-02")
	n := 0
	for _, a := range s.auths {
		if a.TenantID == tenantID && a.CreatedAt.UTC().Format("2006-01-02") == day {
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendLedger(ctx context.Context, e *repository.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAuth[e.AuthorizationID]; ok {
		return repository.ErrConflict
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.byAuth[e.AuthorizationID] = struct{}{}
	s.ledger = append(s.ledger, *e)
	return nil
}

func (s *Store) SpendSnapshotFor(ctx context.Context, agentID string, now time.Time) (*repository.SpendSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := now.UTC().Format("2006-01-02")
	month := now.UTC().Format("2006-01")
	hourAgo := now.Add(-time.Hour)

	snap := &repository.SpendSnapshot{
		AgentID:              agentID,
		SpentMonthByCategory: make(map[string]int64),
		TakenAt:              now,
	}

	for _, e := range s.ledger {
		if e.AgentID != agentID {
			continue
		}
		ts := e.CreatedAt.UTC()
		if ts.Format("2006-01-02") == day {
			snap.SpentToday += e.AmountCents
		}
		if ts.Format("2006-01") == month && e.Category != "" {
			snap.SpentMonthByCategory[e.Category] += e.AmountCents
		}
		if e.CreatedAt.After(hourAgo) {
			snap.TxnsLastHour++
		}
	}
	return snap, nil
}

func (s *Store) LedgerByAgent(ctx context.Context, agentID string, from time.Time) ([]repository.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.LedgerEntry
	for _, e := range s.ledger {
		if e.AgentID == agentID && !e.CreatedAt.Before(from) {
			out = append(out, e)
		}
	}
	return out, nil
}
