package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func (s *Store) InsertToken(ctx context.Context, rec *repository.TokenRecord) error {
	const q = `
		INSERT INTO issued_tokens (jti, agent_id, authorization_id, merchant,
			max_amount_cents, revoked, issued_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,false,$6,$7)`
	_, err := s.pool.Exec(ctx, q,
		rec.JTI, rec.AgentID, rec.AuthorizationID, rec.Merchant,
		rec.MaxAmountCents, rec.IssuedAt, rec.ExpiresAt,
	)
	return mapErr(err)
}

func (s *Store) RevokeToken(ctx context.Context, jti string) (bool, error) {
	// Upsert: si la emisión todavía no se persistió (va en background),
	// queda un tombstone revocado y el insert posterior choca.
	const q = `
		INSERT INTO issued_tokens (jti, agent_id, authorization_id, merchant,
			max_amount_cents, revoked, issued_at, expires_at)
		VALUES ($1, '', '', '', 0, true, now(), now() + interval '24 hours')
		ON CONFLICT (jti) DO UPDATE SET revoked = true
		RETURNING (xmax <> 0)`
	var existed bool
	if err := s.pool.QueryRow(ctx, q, jti).Scan(&existed); err != nil {
		return false, mapErr(err)
	}
	return existed, nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		`SELECT revoked FROM issued_tokens WHERE jti = $1`, jti).Scan(&revoked)
	if err != nil {
		if mapErr(err) == repository.ErrNotFound {
			// Registro barrido por el janitor tras expirar: no es revocado.
			return false, nil
		}
		return false, mapErr(err)
	}
	return revoked, nil
}

func (s *Store) DeleteTokensBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM issued_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}
