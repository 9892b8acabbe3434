package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"booth/internal/domain"
)

// SessionRepositoryPG implements domain.SessionLedger.
type SessionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a session ledger backed by PostgreSQL.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepositoryPG {
	return &SessionRepositoryPG{pool: pool}
}

// Append inserts a session record. Records are append-only; there is no
// update path.
func (r *SessionRepositoryPG) Append(ctx context.Context, rec *domain.SessionRecord) error {
	query := `
INSERT INTO session_records (id, project_id, style_id, outcome, timing_ms, has_watermark, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.ProjectID,
		rec.StyleID,
		rec.Outcome,
		rec.TimingMs,
		rec.HasWatermark,
		rec.ErrorMessage,
		rec.CreatedAt,
	)
	return err
}

// CountSince counts records for a project created at or after since,
// successes and failures alike.
func (r *SessionRepositoryPG) CountSince(ctx context.Context, projectID string, since time.Time) (int, error) {
	query := `
SELECT COUNT(*)
FROM session_records
WHERE project_id = $1
  AND created_at >= $2;
`
	var count int
	if err := r.pool.QueryRow(ctx, query, projectID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
