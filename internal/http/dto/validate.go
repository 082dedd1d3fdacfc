package dto

import "time"

// ValidateRequest es la consulta de un comercio sobre una autorización
// antes de cumplir la compra.
type ValidateRequest struct {
	AuthorizationID  string `json:"authorizationId"`
	MerchantID       string `json:"merchantId"`
	FinalAmountCents int64  `json:"finalAmount,omitempty"`
}

// ValidateResponse es el veredicto. Una autorización inválida responde 200
// con valid:false y la razón; el error HTTP queda para fallas de la
// operación. chargeToken solo viene en veredictos válidos.
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`

	AgentID         string     `json:"agentId,omitempty"`
	AuthorizationID string     `json:"authorizationId,omitempty"`
	MaxAmountCents  int64      `json:"maxAmount,omitempty"`
	ChargeToken     string     `json:"chargeToken,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// ValidateTokenRequest es un scoped token presentado por un comercio para
// verificar directamente.
type ValidateTokenRequest struct {
	Token    string `json:"token"`
	Merchant string `json:"merchant,omitempty"`
}

// ValidateTokenResponse es el veredicto sobre el token presentado.
type ValidateTokenResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`

	AgentID         string     `json:"agentId,omitempty"`
	AuthorizationID string     `json:"authorizationId,omitempty"`
	MaxAmountCents  int64      `json:"maxAmount,omitempty"`
	Category        string     `json:"category,omitempty"`
	Merchant        string     `json:"merchant,omitempty"`
	Intent          string     `json:"intent,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}
