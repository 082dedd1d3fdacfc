package idempotency

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

// WebhookGuard deduplica entregas de webhooks por ID de evento. Los
// proveedores reintentan entregas; procesar dos veces el mismo evento
// duplicaría efectos.
type WebhookGuard struct {
	repo   repository.WebhookLogRepository
	window time.Duration
	now    func() time.Time
}

func NewWebhookGuard(repo repository.WebhookLogRepository, window time.Duration) *WebhookGuard {
	return &WebhookGuard{
		repo:   repo,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Seen retorna true si el evento ya fue procesado dentro de la ventana.
func (w *WebhookGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		// Sin ID no hay clave de deduplicación; el endpoint los rechaza
		// antes de llegar acá.
		return false, nil
	}
	rec, err := w.repo.SeenWebhook(ctx, eventID, w.window)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return rec != nil, nil
}

// Mark registra el evento como procesado.
func (w *WebhookGuard) Mark(ctx context.Context, eventID, endpoint string) error {
	if eventID == "" {
		return nil
	}
	return w.repo.RecordWebhook(ctx, &repository.WebhookSeen{
		EventID:     eventID,
		Endpoint:    endpoint,
		ProcessedAt: w.now(),
	})
}
