package pg

import (
	"context"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) CreateTenant(ctx context.Context, t *repository.Tenant) error {
	const q = `
		INSERT INTO tenants (id, name, plan, risk_level, verified,
			transaction_cap, daily_cap, api_quota, velocity_cap, overage_fee_cents,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now(), now())
		RETURNING created_at, updated_at`
	err := s.pool.QueryRow(ctx, q,
		t.ID, t.Name, t.Plan, string(t.RiskLevel), t.Verified,
		t.TransactionCap, t.DailyCap, t.APIQuota, t.VelocityCap, t.OverageFeeCents,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetTenant(ctx context.Context, id string) (*repository.Tenant, error) {
	const q = `
		SELECT id, name, plan, risk_level, verified,
			transaction_cap, daily_cap, api_quota, velocity_cap, overage_fee_cents,
			created_at, updated_at
		FROM tenants WHERE id = $1`
	var t repository.Tenant
	var risk string
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&t.ID, &t.Name, &t.Plan, &risk, &t.Verified,
		&t.TransactionCap, &t.DailyCap, &t.APIQuota, &t.VelocityCap, &t.OverageFeeCents,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	t.RiskLevel = repository.RiskLevel(risk)
	return &t, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *repository.Tenant) error {
	const q = `
		UPDATE tenants SET
			name = $2, plan = $3, risk_level = $4, verified = $5,
			transaction_cap = $6, daily_cap = $7, api_quota = $8,
			velocity_cap = $9, overage_fee_cents = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	err := s.pool.QueryRow(ctx, q,
		t.ID, t.Name, t.Plan, string(t.RiskLevel), t.Verified,
		t.TransactionCap, t.DailyCap, t.APIQuota, t.VelocityCap, t.OverageFeeCents,
	).Scan(&t.UpdatedAt)
	return mapErr(err)
}
