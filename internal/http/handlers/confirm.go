package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/controltower/internal/authz"
	"github.com/dropDatabas3/controltower/internal/http/dto"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
)

// Confirm maneja POST /v1/authorizations/{id}/confirm.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.ConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.FinalAmountCents <= 0 {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("finalAmount must be a positive integer of cents"))
		return
	}

	conf, err := h.svc.Confirm(r.Context(), id, req.FinalAmountCents)
	if err != nil {
		httperrors.WriteError(w, confirmToHTTP(err))
		return
	}

	writeJSON(w, http.StatusOK, dto.ConfirmResponse{
		Confirmed:         true,
		AuthorizationID:   conf.AuthorizationID,
		ChargeID:          conf.ChargeID,
		FinalAmountCents:  conf.FinalAmountCents,
		FeeCents:          conf.FeeCents,
		TotalChargedCents: conf.FinalAmountCents + conf.FeeCents,
		ConfirmedAt:       conf.ConfirmedAt,
	})
}

// confirmToHTTP mapea códigos de confirmación a status HTTP. El código del
// dominio viaja tal cual en el campo code de la respuesta.
func confirmToHTTP(err error) error {
	var ce *authz.ConfirmError
	if !errors.As(err, &ce) {
		return err
	}

	status := http.StatusConflict
	switch ce.Code {
	case authz.CodeNotFound:
		status = http.StatusNotFound
	case authz.CodeExpired, authz.CodeInvalidStatus:
		status = http.StatusConflict
	case authz.CodeAmountExceeds, authz.CodeLimitExceededOnClose:
		status = http.StatusUnprocessableEntity
	case authz.CodeNoPaymentMethod:
		status = http.StatusUnprocessableEntity
	}
	return httperrors.New(status, ce.Code, ce.Message)
}
