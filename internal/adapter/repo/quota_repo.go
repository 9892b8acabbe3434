package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"booth/internal/domain"
)

// QuotaRepositoryPG implements domain.QuotaStore.
type QuotaRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository creates a quota store backed by PostgreSQL.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepositoryPG {
	return &QuotaRepositoryPG{pool: pool}
}

// LatestQuota fetches the most recent allotment record for a billing
// account. domain.ErrNotFound means no record exists; callers treat that
// as zero allotment.
func (r *QuotaRepositoryPG) LatestQuota(ctx context.Context, accountID string) (*domain.BillingQuota, error) {
	query := `
SELECT account_id, allotted, reset_at
FROM billing_quotas
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, query, accountID)
	var q domain.BillingQuota
	if err := row.Scan(&q.AccountID, &q.Allotted, &q.ResetAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}
