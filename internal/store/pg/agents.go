package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

const agentCols = `
	id, tenant_id, name, credential_hash,
	daily_limit, transaction_limit, category_limits, velocity_limit,
	emergency_stop,
	require_approval_over, auto_approve_under, always_approve, never_approve,
	payment_method, spent_today, spent_day, last_used, usage_count, revoked,
	created_at, updated_at`

func (s *Store) CreateAgent(ctx context.Context, a *repository.Agent) error {
	const q = `
		INSERT INTO agents (id, tenant_id, name, credential_hash,
			daily_limit, transaction_limit, category_limits, velocity_limit,
			emergency_stop,
			require_approval_over, auto_approve_under, always_approve, never_approve,
			payment_method, spent_today, spent_day, usage_count, revoked,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,0,'',0,false, now(), now())
		RETURNING created_at, updated_at`
	err := s.pool.QueryRow(ctx, q,
		a.ID, a.TenantID, a.Name, a.CredentialHash,
		a.DailyLimit, a.TransactionLimit, a.CategoryLimits, a.VelocityLimit,
		a.EmergencyStop,
		a.Approval.RequireApprovalOver, a.Approval.AutoApproveUnder,
		a.Approval.AlwaysApprove, a.Approval.NeverApprove,
		a.PaymentMethod,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapErr(err)
}

func scanAgent(row interface{ Scan(...any) error }) (*repository.Agent, error) {
	var a repository.Agent
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Name, &a.CredentialHash,
		&a.DailyLimit, &a.TransactionLimit, &a.CategoryLimits, &a.VelocityLimit,
		&a.EmergencyStop,
		&a.Approval.RequireApprovalOver, &a.Approval.AutoApproveUnder,
		&a.Approval.AlwaysApprove, &a.Approval.NeverApprove,
		&a.PaymentMethod, &a.SpentToday, &a.SpentDay, &a.LastUsed, &a.UsageCount, &a.Revoked,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*repository.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentCols+` FROM agents WHERE id = $1`, id))
}

// AgentByCredentialHash es la consulta del camino caliente: un solo round
// trip trae agente y tenant.
func (s *Store) AgentByCredentialHash(ctx context.Context, hash string) (*repository.Agent, *repository.Tenant, error) {
	const q = `
		SELECT a.id, a.tenant_id, a.name, a.credential_hash,
			a.daily_limit, a.transaction_limit, a.category_limits, a.velocity_limit,
			a.emergency_stop,
			a.require_approval_over, a.auto_approve_under, a.always_approve, a.never_approve,
			a.payment_method, a.spent_today, a.spent_day, a.last_used, a.usage_count, a.revoked,
			a.created_at, a.updated_at,
			t.id, t.name, t.plan, t.risk_level, t.verified,
			t.transaction_cap, t.daily_cap, t.api_quota, t.velocity_cap, t.overage_fee_cents,
			t.created_at, t.updated_at
		FROM agents a
		JOIN tenants t ON t.id = a.tenant_id
		WHERE a.credential_hash = $1 AND NOT a.revoked`
	var a repository.Agent
	var t repository.Tenant
	var risk string
	err := s.pool.QueryRow(ctx, q, hash).Scan(
		&a.ID, &a.TenantID, &a.Name, &a.CredentialHash,
		&a.DailyLimit, &a.TransactionLimit, &a.CategoryLimits, &a.VelocityLimit,
		&a.EmergencyStop,
		&a.Approval.RequireApprovalOver, &a.Approval.AutoApproveUnder,
		&a.Approval.AlwaysApprove, &a.Approval.NeverApprove,
		&a.PaymentMethod, &a.SpentToday, &a.SpentDay, &a.LastUsed, &a.UsageCount, &a.Revoked,
		&a.CreatedAt, &a.UpdatedAt,
		&t.ID, &t.Name, &t.Plan, &risk, &t.Verified,
		&t.TransactionCap, &t.DailyCap, &t.APIQuota, &t.VelocityCap, &t.OverageFeeCents,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, nil, mapErr(err)
	}
	t.RiskLevel = repository.RiskLevel(risk)
	return &a, &t, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]repository.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentCols+` FROM agents WHERE NOT revoked`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) UpdateAgent(ctx context.Context, a *repository.Agent) error {
	const q = `
		UPDATE agents SET
			name = $2, credential_hash = $3,
			daily_limit = $4, transaction_limit = $5, category_limits = $6,
			velocity_limit = $7, emergency_stop = $8,
			require_approval_over = $9, auto_approve_under = $10,
			always_approve = $11, never_approve = $12,
			payment_method = $13, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	err := s.pool.QueryRow(ctx, q,
		a.ID, a.Name, a.CredentialHash,
		a.DailyLimit, a.TransactionLimit, a.CategoryLimits,
		a.VelocityLimit, a.EmergencyStop,
		a.Approval.RequireApprovalOver, a.Approval.AutoApproveUnder,
		a.Approval.AlwaysApprove, a.Approval.NeverApprove,
		a.PaymentMethod,
	).Scan(&a.UpdatedAt)
	return mapErr(err)
}

func (s *Store) TouchAgentUsage(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET last_used = $2, usage_count = usage_count + 1 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) AddSpentToday(ctx context.Context, id string, day string, amountCents int64) error {
	// Rollover de día y suma en un solo statement atómico.
	const q = `
		UPDATE agents SET
			spent_today = CASE WHEN spent_day = $2 THEN spent_today + $3 ELSE $3 END,
			spent_day = $2
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, day, amountCents)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) SetEmergencyStop(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET emergency_stop = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET revoked = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
