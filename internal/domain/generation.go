package domain

import (
	"strings"
	"time"
)

// StyleDirective steers the external style-transfer backend. It is selected
// upstream and treated as opaque, read-only input by the pipeline.
type StyleDirective struct {
	StyleID      string
	Prompt       string
	ReferenceURL string
}

// Empty reports whether the directive carries neither a prompt nor a
// reference raster.
func (d StyleDirective) Empty() bool {
	return strings.TrimSpace(d.Prompt) == "" && strings.TrimSpace(d.ReferenceURL) == ""
}

// GenerationStatus enumerates generation request lifecycle states.
type GenerationStatus string

const (
	GenerationQueued    GenerationStatus = "queued"
	GenerationRunning   GenerationStatus = "running"
	GenerationSucceeded GenerationStatus = "succeeded"
	GenerationFailed    GenerationStatus = "failed"
	GenerationTimedOut  GenerationStatus = "timed_out"
)

// Terminal reports whether the status admits no further transitions.
func (s GenerationStatus) Terminal() bool {
	switch s {
	case GenerationSucceeded, GenerationFailed, GenerationTimedOut:
		return true
	}
	return false
}

// GenerationRequest tracks one submission to the style backend. It is
// created on submit and mutated only by the orchestrator until it reaches
// a terminal status.
type GenerationRequest struct {
	ID          string
	Directive   StyleDirective
	SubmittedAt time.Time
	Status      GenerationStatus
	// Progress is a 0-100 estimate; heuristic while running, clamped at 95
	// until a terminal signal arrives.
	Progress int
	// LogLines is the append-only backend transcript, chronological.
	LogLines     []string
	ResultURL    string
	ResultData   []byte
	ErrorMessage string
}

// AppendLog appends lines to the transcript. Existing lines are never
// replaced or reordered.
func (r *GenerationRequest) AppendLog(lines ...string) {
	r.LogLines = append(r.LogLines, lines...)
}

// HasResult reports whether a generated raster reference is available.
func (r *GenerationRequest) HasResult() bool {
	return r != nil && (r.ResultURL != "" || len(r.ResultData) > 0)
}
