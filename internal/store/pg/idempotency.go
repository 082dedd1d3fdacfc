package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) GetIdempotency(ctx context.Context, fingerprint string) (*repository.IdempotencyRecord, error) {
	const q = `
		SELECT fingerprint, endpoint, method, status_code, response, created_at
		FROM idempotency_records WHERE fingerprint = $1`
	var rec repository.IdempotencyRecord
	err := s.pool.QueryRow(ctx, q, fingerprint).Scan(
		&rec.Fingerprint, &rec.Endpoint, &rec.Method, &rec.StatusCode, &rec.Response, &rec.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (s *Store) PutIdempotency(ctx context.Context, rec *repository.IdempotencyRecord) error {
	// First-writer-wins: ON CONFLICT DO NOTHING deja la primera respuesta
	// como canónica.
	const q = `
		INSERT INTO idempotency_records (fingerprint, endpoint, method, status_code, response, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (fingerprint) DO NOTHING`
	_, err := s.pool.Exec(ctx, q,
		rec.Fingerprint, rec.Endpoint, rec.Method, rec.StatusCode, rec.Response, rec.CreatedAt,
	)
	return mapErr(err)
}

func (s *Store) DeleteIdempotencyBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SeenWebhook(ctx context.Context, eventID string, window time.Duration) (*repository.WebhookSeen, error) {
	const q = `
		SELECT event_id, endpoint, processed_at
		FROM webhook_log
		WHERE event_id = $1 AND processed_at > now() - $2::interval`
	var w repository.WebhookSeen
	err := s.pool.QueryRow(ctx, q, eventID, window.String()).Scan(
		&w.EventID, &w.Endpoint, &w.ProcessedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (s *Store) RecordWebhook(ctx context.Context, w *repository.WebhookSeen) error {
	const q = `
		INSERT INTO webhook_log (event_id, endpoint, processed_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (event_id) DO UPDATE SET processed_at = EXCLUDED.processed_at`
	_, err := s.pool.Exec(ctx, q, w.EventID, w.Endpoint, w.ProcessedAt)
	return mapErr(err)
}
