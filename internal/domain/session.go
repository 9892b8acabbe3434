package domain

import "time"

// Outcome enumerates pipeline run outcomes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// StorageOutcome reports where the final raster ended up. Exactly one of
// RemoteURL or EmbeddedFallback is populated.
type StorageOutcome struct {
	RemoteURL        string
	EmbeddedFallback string
	// FailureReason records why the upload path fell back, when it did.
	FailureReason string
}

// Stored reports whether any representation of the raster survived.
func (o StorageOutcome) Stored() bool {
	return o.RemoteURL != "" || o.EmbeddedFallback != ""
}

// SessionRecord is the append-only ledger entry written exactly once per
// pipeline run. It is the sole input to quota accounting and auditing and
// is never mutated after creation.
type SessionRecord struct {
	ID           string
	ProjectID    string
	StyleID      string
	Outcome      Outcome
	TimingMs     int64
	HasWatermark bool
	ErrorMessage string
	CreatedAt    time.Time
}
