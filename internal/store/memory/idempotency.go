package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) GetIdempotency(ctx context.Context, fingerprint string) (*repository.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idem[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := rec
	out.Response = append([]byte(nil), rec.Response...)
	return &out, nil
}

func (s *Store) PutIdempotency(ctx context.Context, rec *repository.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// First-writer-wins: bajo una carrera la primera respuesta es la canónica.
	if _, ok := s.idem[rec.Fingerprint]; ok {
		return nil
	}
	stored := *rec
	stored.Response = append([]byte(nil), rec.Response...)
	s.idem[rec.Fingerprint] = stored
	return nil
}

func (s *Store) DeleteIdempotencyBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for fp, rec := range s.idem {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.idem, fp)
			n++
		}
	}
	return n, nil
}

func (s *Store) SeenWebhook(ctx context.Context, eventID string, window time.Duration) (*repository.WebhookSeen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.webhooks[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if time.Since(w.ProcessedAt) > window {
		return nil, repository.ErrNotFound
	}
	out := w
	return &out, nil
}

func (s *Store) RecordWebhook(ctx context.Context, w *repository.WebhookSeen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[w.EventID] = *w
	return nil
}
