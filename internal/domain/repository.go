package domain

import (
	"context"
	"time"
)

// SessionLedger is the append-only sink for session records, plus the
// windowed count that quota accounting depends on.
type SessionLedger interface {
	Append(ctx context.Context, rec *SessionRecord) error
	CountSince(ctx context.Context, projectID string, since time.Time) (int, error)
}

// QuotaStore supplies the latest allotment for a billing account.
type QuotaStore interface {
	LatestQuota(ctx context.Context, accountID string) (*BillingQuota, error)
}

// ProjectStore yields per-project pipeline configuration.
type ProjectStore interface {
	ProjectConfig(ctx context.Context, projectID string) (*ProjectConfig, error)
}
