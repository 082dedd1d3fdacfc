// Package handlers implementa los endpoints HTTP del control plane.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/controltower/internal/authz"
	"github.com/dropDatabas3/controltower/internal/config"
	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/idempotency"
)

// Handlers agrupa los endpoints con sus dependencias.
type Handlers struct {
	cfg     *config.Config
	svc     *authz.Service
	store   repository.Store
	webhook *idempotency.WebhookGuard
}

func New(cfg *config.Config, svc *authz.Service, store repository.Store, webhook *idempotency.WebhookGuard) *Handlers {
	return &Handlers{cfg: cfg, svc: svc, store: store, webhook: webhook}
}

// decodeJSON parsea el body en modo estricto: Content-Type JSON, tope de
// 64KB, campos desconocidos rechazados, sin basura trailing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return httperrors.ErrInvalidJSON.WithCause(err)
	}
	if dec.More() {
		return httperrors.ErrInvalidJSON.WithDetail("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
