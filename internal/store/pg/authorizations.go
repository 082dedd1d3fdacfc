package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) PutAuthorization(ctx context.Context, a *repository.Authorization) error {
	// Upsert idempotente: un reintento no pisa una transición posterior a
	// estado terminal.
	const q = `
		INSERT INTO authorizations (id, agent_id, tenant_id, amount_cents,
			category, merchant, intent, status, token_id,
			final_amount_cents, charge_id, created_at, expires_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			token_id = EXCLUDED.token_id,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		WHERE authorizations.status NOT IN ('confirmed','expired','revoked')`
	_, err := s.pool.Exec(ctx, q,
		a.ID, a.AgentID, a.TenantID, a.AmountCents,
		a.Category, a.Merchant, a.Intent, string(a.Status), a.TokenID,
		a.FinalAmountCents, a.ChargeID, a.CreatedAt, a.ExpiresAt, a.UpdatedAt,
	)
	return mapErr(err)
}

func (s *Store) GetAuthorization(ctx context.Context, id string) (*repository.Authorization, error) {
	const q = `
		SELECT id, agent_id, tenant_id, amount_cents, category, merchant, intent,
			status, token_id, final_amount_cents, charge_id,
			created_at, expires_at, updated_at
		FROM authorizations WHERE id = $1`
	var a repository.Authorization
	var status string
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&a.ID, &a.AgentID, &a.TenantID, &a.AmountCents, &a.Category, &a.Merchant, &a.Intent,
		&status, &a.TokenID, &a.FinalAmountCents, &a.ChargeID,
		&a.CreatedAt, &a.ExpiresAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	a.Status = repository.AuthorizationStatus(status)
	return &a, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from, to repository.AuthorizationStatus, finalAmountCents int64, chargeID string) error {
	// Compare-and-set sobre el status: exactamente una transición gana.
	const q = `
		UPDATE authorizations SET
			status = $3,
			final_amount_cents = CASE WHEN $3 = 'confirmed' THEN $4 ELSE final_amount_cents END,
			charge_id = CASE WHEN $3 = 'confirmed' THEN $5 ELSE charge_id END,
			updated_at = now()
		WHERE id = $1 AND status = $2`
	tag, err := s.pool.Exec(ctx, q, id, string(from), string(to), finalAmountCents, chargeID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguir inexistente de estado incorrecto.
		var exists bool
		if qerr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM authorizations WHERE id = $1)`, id).Scan(&exists); qerr != nil {
			return mapErr(qerr)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrInvalidStatus
	}
	return nil
}

func (s *Store) CountAuthorizationsToday(ctx context.Context, tenantID string) (int, error) {
	const q = `
		SELECT count(*) FROM authorizations
		WHERE tenant_id = $1 AND created_at >= date_trunc('day', now() AT TIME ZONE 'utc')`
	var n int
	if err := s.pool.QueryRow(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (s *Store) AppendLedger(ctx context.Context, e *repository.LedgerEntry) error {
	const q = `
		INSERT INTO ledger_entries (id, agent_id, tenant_id, authorization_id,
			amount_cents, fee_cents, category, merchant, charge_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := s.pool.Exec(ctx, q,
		e.ID, e.AgentID, e.TenantID, e.AuthorizationID,
		e.AmountCents, e.FeeCents, e.Category, e.Merchant, e.ChargeID, e.CreatedAt,
	)
	return mapErr(err)
}

func (s *Store) SpendSnapshotFor(ctx context.Context, agentID string, now time.Time) (*repository.SpendSnapshot, error) {
	snap := &repository.SpendSnapshot{
		AgentID:              agentID,
		SpentMonthByCategory: make(map[string]int64),
		TakenAt:              now,
	}

	const q = `
		SELECT
			COALESCE(sum(amount_cents) FILTER (WHERE created_at >= date_trunc('day', $2::timestamptz)), 0),
			COALESCE(count(*) FILTER (WHERE created_at >= $2::timestamptz - interval '1 hour'), 0)
		FROM ledger_entries WHERE agent_id = $1`
	if err := s.pool.QueryRow(ctx, q, agentID, now).Scan(&snap.SpentToday, &snap.TxnsLastHour); err != nil {
		return nil, mapErr(err)
	}

	const qcat = `
		SELECT category, sum(amount_cents)
		FROM ledger_entries
		WHERE agent_id = $1 AND category <> ''
			AND created_at >= date_trunc('month', $2::timestamptz)
		GROUP BY category`
	rows, err := s.pool.Query(ctx, qcat, agentID, now)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var sum int64
		if err := rows.Scan(&cat, &sum); err != nil {
			return nil, mapErr(err)
		}
		snap.SpentMonthByCategory[cat] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return snap, nil
}

func (s *Store) LedgerByAgent(ctx context.Context, agentID string, from time.Time) ([]repository.LedgerEntry, error) {
	const q = `
		SELECT id, agent_id, tenant_id, authorization_id,
			amount_cents, fee_cents, category, merchant, charge_id, created_at
		FROM ledger_entries
		WHERE agent_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, agentID, from)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.LedgerEntry
	for rows.Next() {
		var e repository.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.AgentID, &e.TenantID, &e.AuthorizationID,
			&e.AmountCents, &e.FeeCents, &e.Category, &e.Merchant, &e.ChargeID, &e.CreatedAt,
		); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}
