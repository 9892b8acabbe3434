// Package pipeline runs one confirmed capture end to end: generation,
// watermark compositing, storage, and the ledger record. Stages are
// strictly sequential within a run; exactly one session record is written
// per run regardless of where it fails.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"booth/internal/compositing"
	"booth/internal/domain"
	"booth/internal/generation"
	"booth/internal/storage"
)

// Generator submits a frame for style transfer and drives it to a terminal
// status.
type Generator interface {
	Submit(ctx context.Context, frame *domain.CaptureFrame, directive domain.StyleDirective, budget time.Duration) (*domain.GenerationRequest, error)
}

// WatermarkFetcher resolves a project watermark raster.
type WatermarkFetcher interface {
	Fetch(ctx context.Context, url string, canvasW, canvasH int) (*domain.WatermarkAsset, error)
}

// Persister stores the final raster, falling back rather than failing.
type Persister interface {
	Persist(ctx context.Context, payload storage.Payload, run storage.RunContext) domain.StorageOutcome
}

// Snapshot is a point-in-time view of the active (or most recent)
// generation request, safe to serve from the status endpoint.
type Snapshot struct {
	RequestID string                  `json:"request_id"`
	Status    domain.GenerationStatus `json:"status"`
	Progress  int                     `json:"progress"`
	LogLines  []string                `json:"log_lines"`
}

// Runner owns the post-confirm pipeline for a single project.
type Runner struct {
	projectID  string
	projects   domain.ProjectStore
	generator  Generator
	watermarks WatermarkFetcher
	engine     *compositing.Engine
	persister  Persister
	ledger     domain.SessionLedger
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	snap    Snapshot
	hasSnap bool
}

func NewRunner(projectID string, projects domain.ProjectStore, generator Generator, watermarks WatermarkFetcher, engine *compositing.Engine, persister Persister, ledger domain.SessionLedger, httpClient *http.Client, logger zerolog.Logger) *Runner {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Runner{
		projectID:  projectID,
		projects:   projects,
		generator:  generator,
		watermarks: watermarks,
		engine:     engine,
		persister:  persister,
		ledger:     ledger,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Current returns a snapshot of the latest generation request, including
// one still in flight. The second return is false before the first run.
func (r *Runner) Current() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap, r.hasSnap
}

// ObserveGeneration ingests the orchestrator's in-flight snapshots so the
// transcript and progress estimate are visible while polling is still
// under way. Wired via generation.WithObserver.
func (r *Runner) ObserveGeneration(s generation.Snapshot) {
	r.mu.Lock()
	r.snap = Snapshot{
		RequestID: s.RequestID,
		Status:    s.Status,
		Progress:  s.Progress,
		LogLines:  s.LogLines,
	}
	r.hasSnap = true
	r.mu.Unlock()
}

// Run executes one pipeline session for a confirmed frame. Cancelling ctx
// aborts generation polling; persistence and the ledger append run on a
// detached context so an in-flight upload completes and the record is
// still written.
func (r *Runner) Run(ctx context.Context, frame *domain.CaptureFrame, directive domain.StyleDirective) error {
	start := r.now()

	cfg, err := r.projects.ProjectConfig(ctx, r.projectID)
	if err != nil {
		err = fmt.Errorf("load project config: %w", err)
		r.record(ctx, cfg, directive, domain.OutcomeFailure, false, start, err.Error())
		return err
	}
	cfg.Normalize()

	req, err := r.generator.Submit(ctx, frame, directive, cfg.MaxProcessingTime)
	if err != nil {
		err = fmt.Errorf("submit generation: %w", err)
		r.record(ctx, cfg, directive, domain.OutcomeFailure, false, start, err.Error())
		return err
	}
	r.ObserveGeneration(generation.Snapshot{
		RequestID: req.ID,
		Status:    req.Status,
		Progress:  req.Progress,
		LogLines:  req.LogLines,
	})

	if req.Status != domain.GenerationSucceeded {
		r.logger.Warn().
			Str("request_id", req.ID).
			Str("status", string(req.Status)).
			Str("error", req.ErrorMessage).
			Msg("pipeline: generation did not succeed")
		r.record(ctx, cfg, directive, domain.OutcomeFailure, false, start, req.ErrorMessage)
		return fmt.Errorf("generation %s: %s", req.Status, req.ErrorMessage)
	}

	payload, hasWatermark := r.finalize(ctx, cfg, req)

	outcome := r.persister.Persist(context.WithoutCancel(ctx), payload, storage.RunContext{
		ProjectID: cfg.ID,
		RequestID: req.ID,
	})
	if !outcome.Stored() {
		r.record(ctx, cfg, directive, domain.OutcomeFailure, hasWatermark, start, outcome.FailureReason)
		return fmt.Errorf("persist result: %s", outcome.FailureReason)
	}

	r.record(ctx, cfg, directive, domain.OutcomeSuccess, hasWatermark, start, "")
	r.mu.Lock()
	r.snap.Progress = 100
	r.mu.Unlock()
	return nil
}

// finalize decodes the generated raster and applies the project watermark.
// Neither a decode failure nor a watermark fetch failure fails the run:
// the raw backend payload, or the unwatermarked raster, is persisted
// instead.
func (r *Runner) finalize(ctx context.Context, cfg *domain.ProjectConfig, req *domain.GenerationRequest) (storage.Payload, bool) {
	img, err := r.resultImage(ctx, req)
	if err != nil {
		r.logger.Warn().Err(err).Str("request_id", req.ID).Msg("pipeline: result not decodable, skipping watermark")
		return storage.Payload{Data: req.ResultData, RemoteURL: req.ResultURL}, false
	}

	var wm *domain.WatermarkAsset
	if cfg.WatermarkURL != "" {
		wm, err = r.watermarks.Fetch(ctx, cfg.WatermarkURL, cfg.OutputWidth, cfg.OutputHeight)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", cfg.WatermarkURL).Msg("pipeline: watermark unavailable, continuing without it")
			wm = nil
		}
	}

	res := r.engine.Composite(img, wm, cfg.ChromaKeyThreshold)
	return storage.Payload{Image: res.Image}, res.HasWatermark
}

func (r *Runner) resultImage(ctx context.Context, req *domain.GenerationRequest) (image.Image, error) {
	data := req.ResultData
	if len(data) == 0 {
		if req.ResultURL == "" {
			return nil, fmt.Errorf("generation result carries no raster")
		}
		fetched, err := r.fetch(ctx, req.ResultURL)
		if err != nil {
			return nil, err
		}
		data = fetched
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode generated raster: %w", err)
	}
	return img, nil
}

func (r *Runner) fetch(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch result: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// record appends the run's ledger entry on a detached context. Append
// failures are logged, never propagated: the run outcome stands on its own.
func (r *Runner) record(ctx context.Context, cfg *domain.ProjectConfig, directive domain.StyleDirective, outcome domain.Outcome, hasWatermark bool, start time.Time, errMsg string) {
	projectID := r.projectID
	if cfg != nil {
		projectID = cfg.ID
	}
	rec := &domain.SessionRecord{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		StyleID:      directive.StyleID,
		Outcome:      outcome,
		TimingMs:     r.now().Sub(start).Milliseconds(),
		HasWatermark: hasWatermark,
		ErrorMessage: errMsg,
		CreatedAt:    r.now(),
	}
	if err := r.ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error().Err(err).Str("record_id", rec.ID).Msg("pipeline: ledger append failed")
	}
}
