package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/http/dto"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

// CreateTenant maneja POST /v1/admin/tenants. Los límites salen del plan;
// el risk level inicial depende de la verificación.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.Name == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("name is required"))
		return
	}

	planID := req.Plan
	if planID == "" {
		planID = "sandbox"
	}
	plan := h.cfg.PlanFor(planID)

	risk := repository.RiskNew
	if req.Verified {
		risk = repository.RiskVerified
	}

	t := &repository.Tenant{
		ID:              req.ID,
		Name:            req.Name,
		Plan:            planID,
		RiskLevel:       risk,
		Verified:        req.Verified,
		TransactionCap:  plan.TransactionCap,
		DailyCap:        plan.DailyCap,
		APIQuota:        plan.APIQuota,
		VelocityCap:     plan.VelocityCap,
		OverageFeeCents: plan.OverageFeeCents,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	if err := h.store.CreateTenant(r.Context(), t); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	logger.From(r.Context()).Info("tenant created",
		logger.TenantID(t.ID), logger.String("plan", planID))
	writeJSON(w, http.StatusCreated, tenantToDTO(t))
}

// GetTenant maneja GET /v1/admin/tenants/{id}.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenantToDTO(t))
}

// VerifyTenant maneja POST /v1/admin/tenants/{id}/verify: marca el tenant
// verificado y baja su nivel de riesgo.
func (h *Handlers) VerifyTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	t.Verified = true
	if t.RiskLevel == repository.RiskNew {
		t.RiskLevel = repository.RiskVerified
	}
	if err := h.store.UpdateTenant(r.Context(), t); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	logger.From(r.Context()).Info("tenant verified", logger.TenantID(t.ID))
	writeJSON(w, http.StatusOK, tenantToDTO(t))
}

func tenantToDTO(t *repository.Tenant) dto.TenantResponse {
	return dto.TenantResponse{
		ID:              t.ID,
		Name:            t.Name,
		Plan:            t.Plan,
		RiskLevel:       string(t.RiskLevel),
		Verified:        t.Verified,
		TransactionCap:  t.TransactionCap,
		DailyCap:        t.DailyCap,
		APIQuota:        t.APIQuota,
		VelocityCap:     t.VelocityCap,
		OverageFeeCents: t.OverageFeeCents,
		CreatedAt:       t.CreatedAt,
	}
}
