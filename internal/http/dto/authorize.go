// Package dto define los contratos JSON de la API. Montos siempre en
// centavos enteros; nunca floats de dinero en el wire.
package dto

import "time"

// AuthorizeRequest es la compra propuesta por un agente.
type AuthorizeRequest struct {
	AmountCents int64  `json:"amount"`
	Category    string `json:"category,omitempty"`
	Merchant    string `json:"merchant,omitempty"`
	Intent      string `json:"intent,omitempty"`
}

// AuthorizeResponse es la decisión.
type AuthorizeResponse struct {
	Approved      bool `json:"approved"`
	NeedsApproval bool `json:"needsApproval,omitempty"`

	AuthorizationID string     `json:"authorizationId,omitempty"`
	Token           string     `json:"token,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`

	Reason               string `json:"reason,omitempty"`
	Detail               string `json:"detail,omitempty"`
	RemainingDailyBudget int64  `json:"remainingDailyBudget,omitempty"`

	LatencyMs int64 `json:"latencyMs"`
}

// ConfirmRequest liquida una autorización con el monto final.
type ConfirmRequest struct {
	FinalAmountCents int64 `json:"finalAmount"`
}

// ConfirmResponse es la confirmación asentada. totalCharged = monto final
// más la comisión de plataforma.
type ConfirmResponse struct {
	Confirmed         bool      `json:"confirmed"`
	AuthorizationID   string    `json:"authorizationId"`
	ChargeID          string    `json:"chargeId"`
	FinalAmountCents  int64     `json:"finalAmount"`
	FeeCents          int64     `json:"platformFee"`
	TotalChargedCents int64     `json:"totalCharged"`
	ConfirmedAt       time.Time `json:"confirmedAt"`
}

// StatusResponse es el estado observable de una autorización.
type StatusResponse struct {
	AuthorizationID  string     `json:"authorizationId"`
	AgentID          string     `json:"agentId"`
	Status           string     `json:"status"`
	AmountCents      int64      `json:"amount"`
	FinalAmountCents int64      `json:"finalAmount,omitempty"`
	Category         string     `json:"category,omitempty"`
	Merchant         string     `json:"merchant,omitempty"`
	Intent           string     `json:"intent,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	ConfirmedAt      *time.Time `json:"confirmedAt,omitempty"`
}
