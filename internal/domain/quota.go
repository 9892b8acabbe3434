package domain

import "time"

// BillingQuota is the latest allotment record for a billing account, as
// read from the billing quota store.
type BillingQuota struct {
	AccountID string
	Allotted  int
	ResetAt   time.Time
}

// QuotaSnapshot is the derived remaining allowance for a project. It is
// recomputed on demand and never persisted.
type QuotaSnapshot struct {
	Allotted       int
	UsedSinceReset int
	Remaining      int
	ResetAt        time.Time
}

// Exhausted reports whether no allowance remains.
func (q QuotaSnapshot) Exhausted() bool {
	return q.Remaining <= 0
}
