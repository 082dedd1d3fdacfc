package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

// Webhook maneja POST /v1/webhooks/payments: eventos del proveedor de
// pagos. Deduplicado por X-Webhook-Id: los proveedores reintentan entregas
// y el body puede repetirse legítimamente.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimSpace(r.Header.Get("X-Webhook-Id"))
	if eventID == "" {
		// Sin ID de evento no hay deduplicación posible: se rechaza.
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("X-Webhook-Id header is required"))
		return
	}

	seen, err := h.webhook.Seen(r.Context(), eventID)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if seen {
		writeJSON(w, http.StatusOK, map[string]any{
			"received":  true,
			"duplicate": true,
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithCause(err))
		return
	}

	var event struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithCause(err))
		return
	}

	// El procesamiento real del evento depende del proveedor; acá queda el
	// registro estructurado y la marca de procesado.
	logger.From(r.Context()).Info("payment webhook received",
		logger.String("event_id", eventID),
		logger.String("event_type", event.Type))

	if err := h.webhook.Mark(r.Context(), eventID, r.URL.Path); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
