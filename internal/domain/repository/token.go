package repository

import (
	"context"
	"time"
)

// TokenRecord registra un scoped token emitido, para revocación y limpieza.
// El token firmado no se persiste completo; alcanza con el jti.
type TokenRecord struct {
	JTI             string
	AgentID         string
	AuthorizationID string
	Merchant        string
	MaxAmountCents  int64
	Revoked         bool
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// TokenRepository define la lista de revocación de scoped tokens.
// La validación consulta esta lista en cada llamada: una firma correcta
// no alcanza por sí sola.
type TokenRepository interface {
	// InsertToken registra un token recién emitido.
	InsertToken(ctx context.Context, rec *TokenRecord) error

	// RevokeToken marca el jti como revocado. Si el registro todavía no
	// existe (la emisión se persiste en background), deja un tombstone
	// revocado para que la revocación nunca se pierda. Retorna true si el
	// registro ya existía.
	RevokeToken(ctx context.Context, jti string) (bool, error)

	// IsTokenRevoked consulta la lista de revocación.
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteTokensBefore borra registros emitidos antes del corte.
	// Lo invoca el janitor horario.
	DeleteTokensBefore(ctx context.Context, cutoff time.Time) (int, error)
}
