package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/controltower/internal/http/dto"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/http/middlewares"
)

// Spending maneja GET /v1/agents/{id}/spending: el resumen de gasto.
// La credencial portadora tiene que resolver al mismo agente consultado:
// un agente nunca lee el gasto de otro.
func (h *Handlers) Spending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cred := middlewares.GetCredential(r.Context())
	caller, _, err := h.svc.Directory().Lookup(r.Context(), cred)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("unknown credential"))
		return
	}
	if caller.ID != id {
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("credential does not belong to this agent"))
		return
	}

	sum, err := h.svc.Spending(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	resp := dto.SpendingResponse{
		AgentID:          sum.AgentID,
		SpentToday:       sum.SpentToday,
		DailyLimit:       sum.DailyLimit,
		RemainingDaily:   sum.RemainingDaily,
		MonthByCategory:  sum.MonthByCategory,
		TxnsLastHour:     sum.TxnsLastHour,
		EmergencyStopped: sum.EmergencyStopped,
		RecentPurchases:  make([]dto.PurchaseEntry, 0, len(sum.RecentPurchases)),
	}
	for _, e := range sum.RecentPurchases {
		resp.RecentPurchases = append(resp.RecentPurchases, dto.PurchaseEntry{
			AuthorizationID: e.AuthorizationID,
			AmountCents:     e.AmountCents,
			FeeCents:        e.FeeCents,
			Category:        e.Category,
			Merchant:        e.Merchant,
			ChargeID:        e.ChargeID,
			CreatedAt:       e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
