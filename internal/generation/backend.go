// Package generation orchestrates style-transfer requests against an
// external backend: submission, polling, progress estimation and failure
// classification.
package generation

import "context"

// StartInput carries the capture and directive to the backend.
type StartInput struct {
	Prompt       string
	ReferenceURL string
	// ImagePNG is the PNG-encoded capture frame.
	ImagePNG     []byte
	OutputFormat string
	Width        int
	Height       int
}

// StartResult is the backend's response to a submission. Done short-circuits
// polling for backends that answer synchronously.
type StartResult struct {
	JobID      string
	Done       bool
	ResultURL  string
	ResultData []byte
}

// JobState is the backend-reported job state.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// PollResult is one polling observation of a running job. LogLines is the
// full transcript so far; the orchestrator appends only unseen lines.
type PollResult struct {
	State      JobState
	LogLines   []string
	ResultURL  string
	ResultData []byte
	Message    string
}

// Backend is the generation service contract. Implementations live under
// internal/providers.
type Backend interface {
	Start(ctx context.Context, in StartInput) (StartResult, error)
	Poll(ctx context.Context, jobID string) (PollResult, error)
}
