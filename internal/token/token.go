// Package token emite y valida tokens de capacidad con alcance acotado:
// monto máximo, categoría, comercio e intención quedan firmados dentro del
// token. HS256 con kid en el header para rotación de secretos.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Errores de validación. Cada uno mapea a una razón distinta en la
// respuesta, para que el comercio sepa exactamente por qué rechazar.
var (
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrIssuerMismatch   = errors.New("token: issuer mismatch")
	ErrAudienceMismatch = errors.New("token: audience mismatch")
	ErrExpired          = errors.New("token: expired")
	ErrRevoked          = errors.New("token: revoked")
	ErrMalformed        = errors.New("token: malformed")
	ErrWrongPurpose     = errors.New("token: wrong purpose")
)

// AudienceAny es el comodín: el token vale para cualquier comercio.
const AudienceAny = "any"

// PurposeCharge identifica tokens de autorización de gasto;
// PurposeValidation, tokens cortos que un comercio presenta para validar.
const (
	PurposeCharge     = "spend-authorization"
	PurposeValidation = "authorization-validation"
)

// Scope es el alcance firmado dentro del token.
type Scope struct {
	MaxAmountCents  int64  `json:"maxAmount"`
	Category        string `json:"category,omitempty"`
	Merchant        string `json:"merchant,omitempty"`
	Intent          string `json:"intent,omitempty"`
	AuthorizationID string `json:"authorizationId"`
}

// Claims son los claims completos de un token de capacidad.
// CredentialHash es el sha256 de la credencial del agente, nunca la
// credencial misma: permite rastrear el token hasta la credencial que lo
// originó sin reexponerla.
type Claims struct {
	jwt.RegisteredClaims
	Purpose        string `json:"purpose"`
	CredentialHash string `json:"credentialHash,omitempty"`
	Scope          Scope  `json:"scope"`
}

// Keyring resuelve secretos de firma por kid. Config provee la
// implementación; acá solo importa el contrato.
type Keyring interface {
	// ActiveKey retorna el kid y secreto con el que se firma hoy.
	ActiveKey() (kid string, secret []byte)
	// KeyFor retorna el secreto para un kid dado, o false si no existe.
	KeyFor(kid string) ([]byte, bool)
}

// StaticKeyring firma siempre con el mismo secreto. Suficiente mientras no
// haya rotación en caliente.
type StaticKeyring struct {
	KID    string
	Secret []byte
}

func (k StaticKeyring) ActiveKey() (string, []byte)     { return k.KID, k.Secret }
func (k StaticKeyring) KeyFor(kid string) ([]byte, bool) {
	if kid != k.KID {
		return nil, false
	}
	return k.Secret, true
}

// Issuer emite tokens de capacidad y los registra para poder revocarlos.
type Issuer struct {
	issuer    string
	keys      Keyring
	ttl       time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

// NewIssuer arma un emisor. ttl es la vigencia de los tokens de gasto;
// clockSkew la tolerancia de reloj aceptada al validar.
func NewIssuer(issuer string, keys Keyring, ttl, clockSkew time.Duration) *Issuer {
	return &Issuer{
		issuer:    issuer,
		keys:      keys,
		ttl:       ttl,
		clockSkew: clockSkew,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Issued es el resultado de una emisión: el JWT serializado más el registro
// que el caller persiste para habilitar revocación por jti.
type Issued struct {
	Token  string
	Record repository.TokenRecord
}

// Issue firma un token de gasto con el alcance dado. credentialHash es el
// sha256 de la credencial del agente que disparó la emisión. Audiencia
// vacía se normaliza al comodín "any".
func (i *Issuer) Issue(agentID, credentialHash string, scope Scope) (*Issued, error) {
	return i.issue(agentID, credentialHash, scope, PurposeCharge, i.ttl)
}

// IssueValidation firma un token corto de validación para un comercio
// concreto (nunca comodín).
func (i *Issuer) IssueValidation(agentID, credentialHash string, scope Scope, ttl time.Duration) (*Issued, error) {
	if scope.Merchant == "" || scope.Merchant == AudienceAny {
		return nil, fmt.Errorf("token: validation tokens require a concrete merchant")
	}
	return i.issue(agentID, credentialHash, scope, PurposeValidation, ttl)
}

func (i *Issuer) issue(agentID, credentialHash string, scope Scope, purpose string, ttl time.Duration) (*Issued, error) {
	now := i.now()
	jti := uuid.NewString()

	aud := scope.Merchant
	if aud == "" {
		aud = AudienceAny
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   agentID,
			Audience:  jwt.ClaimStrings{aud},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Purpose:        purpose,
		CredentialHash: credentialHash,
		Scope:          scope,
	}

	kid, secret := i.keys.ActiveKey()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(secret)
	if err != nil {
		return nil, fmt.Errorf("token: sign: %w", err)
	}

	return &Issued{
		Token: signed,
		Record: repository.TokenRecord{
			JTI:             jti,
			AgentID:         agentID,
			AuthorizationID: scope.AuthorizationID,
			Merchant:        aud,
			MaxAmountCents:  scope.MaxAmountCents,
			IssuedAt:        now,
			ExpiresAt:       now.Add(ttl),
		},
	}, nil
}

// RevocationChecker consulta si un jti fue revocado. Se chequea en CADA
// validación: un token revocado muere al instante, no al expirar.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Validator valida tokens de capacidad contra audiencia y revocación.
type Validator struct {
	issuer    string
	keys      Keyring
	clockSkew time.Duration
	revoked   RevocationChecker
	now       func() time.Time
}

func NewValidator(issuer string, keys Keyring, clockSkew time.Duration, revoked RevocationChecker) *Validator {
	return &Validator{
		issuer:    issuer,
		keys:      keys,
		clockSkew: clockSkew,
		revoked:   revoked,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate parsea y verifica un token para la audiencia dada. audience es
// quién pregunta (el comercio); un token con audiencia "any" lo satisface,
// uno acotado solo si coincide exacto.
func (v *Validator) Validate(ctx context.Context, raw, audience string) (*Claims, error) {
	claims := &Claims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuer(v.issuer),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		secret, ok := v.keys.KeyFor(kid)
		if !ok {
			return nil, ErrInvalidSignature
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrIssuerMismatch
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrInvalidSignature):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if !audienceAccepts(claims.Audience, audience) {
		return nil, ErrAudienceMismatch
	}

	if v.revoked != nil {
		rev, err := v.revoked.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("token: revocation check: %w", err)
		}
		if rev {
			return nil, ErrRevoked
		}
	}

	return claims, nil
}

// audienceAccepts: "any" en el token acepta cualquier audiencia; si el
// caller no declara audiencia, solo acepta tokens comodín.
func audienceAccepts(tokenAud jwt.ClaimStrings, audience string) bool {
	for _, a := range tokenAud {
		if a == AudienceAny {
			return true
		}
		if audience != "" && a == audience {
			return true
		}
	}
	return false
}
