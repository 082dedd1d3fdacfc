package authz

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/token"
)

// Validation es el veredicto sobre un token presentado por un comercio.
// Inválido no es un error de la operación: la operación de validar funcionó
// y la respuesta es "no".
type Validation struct {
	Valid  bool
	Reason string

	AgentID         string
	AuthorizationID string
	MaxAmountCents  int64
	Category        string
	Merchant        string
	Intent          string
	ExpiresAt       time.Time
}

// ValidateToken verifica un scoped token para la audiencia dada. La lista
// de revocación se consulta en cada llamada.
func (s *Service) ValidateToken(ctx context.Context, raw, audience string) (*Validation, error) {
	claims, err := s.validator.Validate(ctx, raw, audience)
	if err != nil {
		reason := "invalid_token"
		switch {
		case errors.Is(err, token.ErrExpired):
			reason = "expired"
		case errors.Is(err, token.ErrRevoked):
			reason = "revoked"
		case errors.Is(err, token.ErrAudienceMismatch):
			reason = "audience_mismatch"
		case errors.Is(err, token.ErrIssuerMismatch):
			reason = "issuer_mismatch"
		case errors.Is(err, token.ErrInvalidSignature):
			reason = "invalid_signature"
		case errors.Is(err, token.ErrMalformed):
			reason = "malformed"
		}
		return &Validation{Valid: false, Reason: reason}, nil
	}

	return &Validation{
		Valid:           true,
		AgentID:         claims.Subject,
		AuthorizationID: claims.Scope.AuthorizationID,
		MaxAmountCents:  claims.Scope.MaxAmountCents,
		Category:        claims.Scope.Category,
		Merchant:        claims.Scope.Merchant,
		Intent:          claims.Scope.Intent,
		ExpiresAt:       claims.ExpiresAt.Time,
	}, nil
}

// PurchaseValidation es el veredicto sobre una autorización consultada por
// un comercio antes de cumplir la compra.
type PurchaseValidation struct {
	Valid  bool
	Reason string

	AgentID         string
	AuthorizationID string
	MaxAmountCents  int64

	// ChargeToken es un token corto acotado al comercio consultante, para
	// que su sistema de cobro pueda verificar sin reexponer el token de
	// gasto original.
	ChargeToken string
	ExpiresAt   time.Time
}

// ValidatePurchase responde si una autorización es genuina y cobrable por
// el comercio dado. Chequea estado, vigencia, audiencia y la tolerancia del
// 5% sobre el monto final; si todo pasa, emite el charge token.
func (s *Service) ValidatePurchase(ctx context.Context, authorizationID, merchant string, finalAmountCents int64) (*PurchaseValidation, error) {
	invalid := func(reason string) *PurchaseValidation {
		return &PurchaseValidation{Valid: false, Reason: reason, AuthorizationID: authorizationID}
	}

	auth, err := s.store.GetAuthorization(ctx, authorizationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return invalid("not_found"), nil
		}
		return nil, err
	}

	if auth.Status != repository.StatusAuthorized {
		return invalid("invalid_status"), nil
	}
	if auth.Expired(s.now()) {
		return invalid("expired"), nil
	}
	// La audiencia de la autorización manda: un comercio concreto solo
	// valida lo que fue autorizado para él o con comodín.
	if auth.Merchant != "" && auth.Merchant != token.AudienceAny && auth.Merchant != merchant {
		return invalid("merchant_mismatch"), nil
	}
	if finalAmountCents > 0 && finalAmountCents*100 > auth.AmountCents*105 {
		return invalid("amount_exceeds_authorization"), nil
	}

	agent, err := s.store.GetAgent(ctx, auth.AgentID)
	if err != nil {
		return nil, err
	}

	issued, err := s.issuer.IssueValidation(auth.AgentID, agent.CredentialHash, token.Scope{
		MaxAmountCents:  auth.AmountCents,
		Category:        auth.Category,
		Merchant:        merchant,
		Intent:          auth.Intent,
		AuthorizationID: auth.ID,
	}, s.cfg.MerchantTokenTTL())
	if err != nil {
		return nil, err
	}

	rec := issued.Record
	s.enqueue("persist-token", func(ctx context.Context) error {
		err := s.store.InsertToken(ctx, &rec)
		if repository.IsConflict(err) {
			return nil
		}
		return err
	})

	return &PurchaseValidation{
		Valid:           true,
		AgentID:         auth.AgentID,
		AuthorizationID: auth.ID,
		MaxAmountCents:  auth.AmountCents,
		ChargeToken:     issued.Token,
		ExpiresAt:       rec.ExpiresAt,
	}, nil
}
