package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"booth/internal/domain"
)

// ProjectRepositoryPG implements domain.ProjectStore.
type ProjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a project configuration store backed by
// PostgreSQL.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

// ProjectConfig fetches a project's pipeline configuration. The pipeline
// polls it once per run.
func (r *ProjectRepositoryPG) ProjectConfig(ctx context.Context, projectID string) (*domain.ProjectConfig, error) {
	query := `
SELECT id, output_width, output_height, countdown_enabled, countdown_ticks,
       max_processing_seconds, watermark_url, billing_account_id,
       chroma_key_threshold, locale
FROM projects
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, projectID)
	var (
		cfg        domain.ProjectConfig
		maxSeconds int
		threshold  int
	)
	if err := row.Scan(
		&cfg.ID,
		&cfg.OutputWidth,
		&cfg.OutputHeight,
		&cfg.CountdownEnabled,
		&cfg.CountdownTicks,
		&maxSeconds,
		&cfg.WatermarkURL,
		&cfg.BillingAccountID,
		&threshold,
		&cfg.Locale,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	cfg.MaxProcessingTime = time.Duration(maxSeconds) * time.Second
	if threshold > 0 && threshold < 256 {
		cfg.ChromaKeyThreshold = uint8(threshold)
	}
	cfg.Normalize()
	return &cfg, nil
}
