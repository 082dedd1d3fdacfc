package repository

import (
	"context"
	"time"
)

// AuthorizationStatus es el estado de una autorización.
// pending nunca se observa externamente; las transiciones a un estado
// terminal (confirmed/expired/revoked) ocurren exactamente una vez.
type AuthorizationStatus string

const (
	StatusPending    AuthorizationStatus = "pending"
	StatusAuthorized AuthorizationStatus = "authorized"
	StatusConfirmed  AuthorizationStatus = "confirmed"
	StatusExpired    AuthorizationStatus = "expired"
	StatusRevoked    AuthorizationStatus = "revoked"
	StatusFlagged    AuthorizationStatus = "flagged"
)

// Terminal indica si el estado no admite más transiciones.
func (s AuthorizationStatus) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Authorization es una compra propuesta, autorizada por un TTL corto.
type Authorization struct {
	ID       string
	AgentID  string
	TenantID string

	AmountCents int64
	Category    string
	Merchant    string
	Intent      string

	Status  AuthorizationStatus
	TokenID string // jti del scoped token emitido para esta autorización

	// Seteados al confirmar.
	FinalAmountCents int64
	ChargeID         string

	CreatedAt time.Time
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// Expired indica si la autorización venció respecto de now.
func (a *Authorization) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// LedgerEntry es una entrada append-only del libro de gastos.
// Cada autorización terminal confirmada tiene exactamente una entrada.
type LedgerEntry struct {
	ID              string
	AgentID         string
	TenantID        string
	AuthorizationID string
	AmountCents     int64
	FeeCents        int64
	Category        string
	Merchant        string
	ChargeID        string
	CreatedAt       time.Time
}

// SpendSnapshot es un agregado de lectura para el Policy Evaluator:
// evita re-escanear el ledger en cada decisión.
type SpendSnapshot struct {
	AgentID string

	// SpentToday: suma de entradas completadas del día UTC corriente.
	SpentToday int64

	// SpentMonthByCategory: suma mensual por categoría (para category limits).
	SpentMonthByCategory map[string]int64

	// TxnsLastHour: transacciones completadas en la última hora móvil.
	TxnsLastHour int

	TakenAt time.Time
}

// AuthorizationRepository define operaciones sobre autorizaciones.
type AuthorizationRepository interface {
	// PutAuthorization inserta o reemplaza por ID. Idempotente: la cola de
	// persistencia puede reintentar sin efectos dobles.
	PutAuthorization(ctx context.Context, a *Authorization) error

	// GetAuthorization busca por ID. Retorna ErrNotFound si no existe.
	GetAuthorization(ctx context.Context, id string) (*Authorization, error)

	// TransitionStatus cambia el estado con semántica compare-and-set:
	// falla con ErrInvalidStatus si el estado actual no es from. El update
	// de FinalAmountCents/ChargeID solo aplica en la transición a confirmed.
	TransitionStatus(ctx context.Context, id string, from, to AuthorizationStatus, finalAmountCents int64, chargeID string) error

	// CountAuthorizationsToday cuenta autorizaciones del tenant emitidas hoy
	// (UTC). Alimenta el velocity cap de tenants nuevos.
	CountAuthorizationsToday(ctx context.Context, tenantID string) (int, error)
}

// LedgerRepository define el libro append-only y sus agregados.
type LedgerRepository interface {
	// AppendLedger agrega una entrada. Retorna ErrConflict si ya existe una
	// entrada para la misma autorización (garantía de exactamente-una).
	AppendLedger(ctx context.Context, e *LedgerEntry) error

	// SpendSnapshotFor calcula el agregado de gasto del agente a now.
	SpendSnapshotFor(ctx context.Context, agentID string, now time.Time) (*SpendSnapshot, error)

	// LedgerByAgent lista entradas del agente desde from (para summaries).
	LedgerByAgent(ctx context.Context, agentID string, from time.Time) ([]LedgerEntry, error)
}
