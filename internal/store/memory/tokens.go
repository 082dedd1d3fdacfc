package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) InsertToken(ctx context.Context, rec *repository.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[rec.JTI]; ok {
		return repository.ErrConflict
	}
	s.tokens[rec.JTI] = *rec
	return nil
}

func (s *Store) RevokeToken(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[jti]
	if !ok {
		// La emisión se persiste en background: si la revocación llega
		// primero, queda un tombstone y el insert posterior choca.
		now := time.Now().UTC()
		s.tokens[jti] = repository.TokenRecord{
			JTI:       jti,
			Revoked:   true,
			IssuedAt:  now,
			ExpiresAt: now.Add(24 * time.Hour),
		}
		return false, nil
	}
	rec.Revoked = true
	s.tokens[jti] = rec
	return true, nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[jti]
	if !ok {
		// Un jti desconocido no se trata como revocado: el registro pudo
		// haber sido barrido por el janitor después de expirar.
		return false, nil
	}
	return rec.Revoked, nil
}

func (s *Store) DeleteTokensBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for jti, rec := range s.tokens {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.tokens, jti)
			n++
		}
	}
	return n, nil
}
