package repository

import (
	"context"
	"time"
)

// IdempotencyRecord mapea un fingerprint de request a la respuesta original.
type IdempotencyRecord struct {
	Fingerprint string
	Endpoint    string
	Method      string
	StatusCode  int
	Response    []byte
	CreatedAt   time.Time
}

// IdempotencyRepository guarda respuestas exitosas para replay.
type IdempotencyRepository interface {
	// GetIdempotency busca un registro por fingerprint. Retorna ErrNotFound
	// si no existe o si está fuera de la ventana de replay del llamador.
	GetIdempotency(ctx context.Context, fingerprint string) (*IdempotencyRecord, error)

	// PutIdempotency guarda un registro. First-writer-wins: si el
	// fingerprint ya existe, la escritura se descarta sin error (bajo una
	// carrera real solo una respuesta exitosa queda cacheada).
	PutIdempotency(ctx context.Context, rec *IdempotencyRecord) error

	// DeleteIdempotencyBefore borra registros anteriores al corte (janitor).
	DeleteIdempotencyBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// WebhookSeen registra un webhook procesado, deduplicado por event id.
type WebhookSeen struct {
	EventID     string
	Endpoint    string
	ProcessedAt time.Time
}

// WebhookLogRepository deduplica webhooks por event id externo: los bodies
// de webhooks pueden repetirse legítimamente, el content-hash no sirve.
type WebhookLogRepository interface {
	// SeenWebhook consulta si el event id fue procesado dentro de la ventana.
	SeenWebhook(ctx context.Context, eventID string, window time.Duration) (*WebhookSeen, error)

	// RecordWebhook registra el event id como procesado.
	RecordWebhook(ctx context.Context, w *WebhookSeen) error
}
