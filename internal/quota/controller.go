// Package quota computes remaining allowance from the latest billing
// record and a windowed count of session records, and gates new captures.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"booth/internal/domain"
)

// Controller derives QuotaSnapshots on demand. Snapshots are never
// persisted.
type Controller struct {
	projects domain.ProjectStore
	quotas   domain.QuotaStore
	ledger   domain.SessionLedger
	logger   zerolog.Logger
}

func NewController(projects domain.ProjectStore, quotas domain.QuotaStore, ledger domain.SessionLedger, logger zerolog.Logger) *Controller {
	return &Controller{projects: projects, quotas: quotas, ledger: ledger, logger: logger}
}

// Check resolves the project's billing account and recomputes the
// snapshot. Both successful and failed runs count against usage. A missing
// billing record yields zero allotment: the controller fails closed rather
// than granting unlimited captures.
func (c *Controller) Check(ctx context.Context, projectID string) (domain.QuotaSnapshot, error) {
	cfg, err := c.projects.ProjectConfig(ctx, projectID)
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("resolve project: %w", err)
	}

	q, err := c.quotas.LatestQuota(ctx, cfg.BillingAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn().Str("project_id", projectID).Str("account_id", cfg.BillingAccountID).Msg("quota: no billing record, failing closed")
			return domain.QuotaSnapshot{}, nil
		}
		return domain.QuotaSnapshot{}, fmt.Errorf("read quota: %w", err)
	}

	used, err := c.ledger.CountSince(ctx, projectID, q.ResetAt)
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("count usage: %w", err)
	}

	remaining := q.Allotted - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.QuotaSnapshot{
		Allotted:       q.Allotted,
		UsedSinceReset: used,
		Remaining:      remaining,
		ResetAt:        q.ResetAt,
	}, nil
}
