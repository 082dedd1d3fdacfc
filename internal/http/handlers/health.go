package handlers

import (
	"net/http"
	"time"
)

var startedAt = time.Now()

// Readyz maneja GET /readyz: chequeo liviano, sin tocar almacenamiento.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"uptimeSeconds":    int(time.Since(startedAt).Seconds()),
		"directoryEntries": h.svc.Directory().Size(),
	})
}
