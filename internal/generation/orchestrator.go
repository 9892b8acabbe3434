package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"booth/internal/domain"
)

const (
	defaultPollInterval = 3 * time.Second
	// progressCeiling reserves the final slice of the bar for compositing
	// and persistence.
	progressCeiling = 95
)

// ErrCancelled marks a user-initiated abort of the polling loop. The
// request is still terminal and still produces a session record.
var ErrCancelled = errors.New("generation cancelled")

// Snapshot is a point-in-time copy of a request's user-visible state:
// what a status caller may render while the request is still in flight.
type Snapshot struct {
	RequestID string
	Status    domain.GenerationStatus
	Progress  int
	LogLines  []string
}

// Observer receives a snapshot every time a request advances. It is called
// synchronously from the submitting goroutine with value copies, so
// implementations need no access to the request itself.
type Observer func(Snapshot)

// Orchestrator submits capture frames to the style backend and drives each
// request to a terminal state. No automatic retry: a retry is a deliberate
// user action re-entering the capture cycle.
type Orchestrator struct {
	backend      Backend
	logger       zerolog.Logger
	pollInterval time.Duration
	now          func() time.Time
	observe      Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval overrides the status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver registers the snapshot observer. Snapshots are published
// from submission onward, so progress and the transcript are observable
// while polling is still under way.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

func NewOrchestrator(backend Backend, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:      backend,
		logger:       logger,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates preconditions, issues the generation call and polls it
// to a terminal state. Precondition failures are returned as errors before
// any network call; backend, timeout and cancellation failures are absorbed
// into the returned request's terminal status.
func (o *Orchestrator) Submit(ctx context.Context, frame *domain.CaptureFrame, directive domain.StyleDirective, budget time.Duration) (*domain.GenerationRequest, error) {
	if frame.Empty() {
		return nil, domain.ErrMissingFrame
	}
	if directive.Empty() {
		return nil, domain.ErrMissingDirective
	}
	if budget <= 0 {
		budget = 90 * time.Second
	}

	req := &domain.GenerationRequest{
		ID:          uuid.NewString(),
		Directive:   directive,
		SubmittedAt: o.now(),
		Status:      domain.GenerationQueued,
	}
	o.publish(req)

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image); err != nil {
		return nil, fmt.Errorf("encode capture frame: %w", err)
	}

	start, err := o.backend.Start(ctx, StartInput{
		Prompt:       directive.Prompt,
		ReferenceURL: directive.ReferenceURL,
		ImagePNG:     buf.Bytes(),
		OutputFormat: "png",
		Width:        frame.Width,
		Height:       frame.Height,
	})
	if err != nil {
		o.fail(req, domain.GenerationFailed, fmt.Sprintf("style backend unreachable: %v", err))
		return req, nil
	}
	if start.Done {
		o.succeed(req, start.ResultURL, start.ResultData)
		return req, nil
	}

	req.Status = domain.GenerationRunning
	o.publish(req)
	o.poll(ctx, req, start.JobID, budget)
	return req, nil
}

func (o *Orchestrator) poll(ctx context.Context, req *domain.GenerationRequest, jobID string, budget time.Duration) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		elapsed := o.now().Sub(req.SubmittedAt)
		if elapsed > budget {
			o.fail(req, domain.GenerationTimedOut, fmt.Sprintf("processing exceeded the %s budget", budget))
			return
		}
		req.Progress = estimateProgress(elapsed, budget)
		o.publish(req)

		select {
		case <-ctx.Done():
			o.fail(req, domain.GenerationFailed, ErrCancelled.Error())
			return
		case <-ticker.C:
		}

		res, err := o.backend.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				o.fail(req, domain.GenerationFailed, ErrCancelled.Error())
				return
			}
			o.fail(req, domain.GenerationFailed, fmt.Sprintf("status poll failed: %v", err))
			return
		}

		// Append only transcript lines not yet seen; never replace.
		if len(res.LogLines) > len(req.LogLines) {
			req.AppendLog(res.LogLines[len(req.LogLines):]...)
			o.publish(req)
		}

		switch res.State {
		case JobSucceeded:
			o.succeed(req, res.ResultURL, res.ResultData)
			return
		case JobFailed:
			msg := res.Message
			if msg == "" {
				msg = "backend reported failure"
			}
			o.fail(req, domain.GenerationFailed, msg)
			return
		}
	}
}

func (o *Orchestrator) succeed(req *domain.GenerationRequest, url string, data []byte) {
	req.Status = domain.GenerationSucceeded
	req.ResultURL = url
	req.ResultData = data
	req.Progress = progressCeiling
	o.logger.Info().Str("request_id", req.ID).Msg("generation: succeeded")
	o.publish(req)
}

func (o *Orchestrator) fail(req *domain.GenerationRequest, status domain.GenerationStatus, msg string) {
	req.Status = status
	req.ErrorMessage = msg
	o.logger.Warn().Str("request_id", req.ID).Str("status", string(status)).Str("reason", msg).Msg("generation: terminal failure")
	o.publish(req)
}

// publish hands the observer a value copy; the request itself never
// escapes the submitting goroutine until it is terminal.
func (o *Orchestrator) publish(req *domain.GenerationRequest) {
	if o.observe == nil {
		return
	}
	lines := make([]string, len(req.LogLines))
	copy(lines, req.LogLines)
	o.observe(Snapshot{
		RequestID: req.ID,
		Status:    req.Status,
		Progress:  req.Progress,
		LogLines:  lines,
	})
}

// estimateProgress maps elapsed time against the processing budget onto
// 0-95. A UX affordance, not a contract; swap for backend-reported progress
// when the service grows one.
func estimateProgress(elapsed, budget time.Duration) int {
	if budget <= 0 {
		return 0
	}
	p := int(float64(elapsed) / float64(budget) * 100)
	if p < 0 {
		p = 0
	}
	if p > progressCeiling {
		p = progressCeiling
	}
	return p
}
