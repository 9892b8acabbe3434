package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"booth/internal/capture"
	"booth/internal/device"
	"booth/internal/domain"
	"booth/internal/pipeline"
)

type stubQuota struct {
	snap domain.QuotaSnapshot
	err  error
}

func (s *stubQuota) Check(context.Context, string) (domain.QuotaSnapshot, error) {
	return s.snap, s.err
}

type stubSessions struct {
	snap pipeline.Snapshot
	ok   bool
}

func (s *stubSessions) Current() (pipeline.Snapshot, bool) { return s.snap, s.ok }

type stubCapture struct {
	state      capture.State
	triggerErr error
	retakeErr  error
	confirmErr error

	mu        sync.Mutex
	confirmed bool
}

func (s *stubCapture) State() capture.State         { return s.state }
func (s *stubCapture) Trigger(context.Context) error { return s.triggerErr }
func (s *stubCapture) Retake() error                 { return s.retakeErr }
func (s *stubCapture) SetStream(*device.Stream)      {}

func (s *stubCapture) Confirm(ctx context.Context, run func(context.Context, *domain.CaptureFrame) error) error {
	s.mu.Lock()
	s.confirmed = true
	s.mu.Unlock()
	if s.confirmErr != nil {
		return s.confirmErr
	}
	return run(ctx, &domain.CaptureFrame{Width: 1})
}

func (s *stubCapture) wasConfirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

type stubRunner struct {
	mu        sync.Mutex
	directive domain.StyleDirective
	ran       chan struct{}
}

func (s *stubRunner) Run(_ context.Context, _ *domain.CaptureFrame, d domain.StyleDirective) error {
	s.mu.Lock()
	s.directive = d
	s.mu.Unlock()
	if s.ran != nil {
		close(s.ran)
	}
	return nil
}

func newApp(quota QuotaChecker, sessions SessionSource, machine *stubCapture, runner *stubRunner) *App {
	return &App{
		ProjectID: "proj-1",
		Locale:    "en",
		Quota:     quota,
		Sessions:  sessions,
		Capture:   machine,
		Runner:    runner,
		Logger:    zerolog.Nop(),
	}
}

func TestHealth(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCurrentSessionBeforeFirstRun(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{ok: false}, &stubCapture{}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.CurrentSession(rec, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCurrentSessionTranscript(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{ok: true, snap: pipeline.Snapshot{
		RequestID: "req-9",
		Status:    domain.GenerationRunning,
		Progress:  40,
		LogLines:  []string{"queued", "rendering"},
	}}, &stubCapture{}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.CurrentSession(rec, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got pipeline.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.RequestID != "req-9" || got.Progress != 40 || len(got.LogLines) != 2 {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestQuotaStatus(t *testing.T) {
	app := newApp(&stubQuota{snap: domain.QuotaSnapshot{
		Allotted:       10,
		UsedSinceReset: 10,
		Remaining:      0,
		ResetAt:        time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}}, &stubSessions{}, &stubCapture{}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.QuotaStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/quota", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got quotaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !got.Exhausted || got.Remaining != 0 || got.ResetAt != "2026-09-01T00:00:00Z" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestQuotaStatusError(t *testing.T) {
	app := newApp(&stubQuota{err: errors.New("db down")}, &stubSessions{}, &stubCapture{}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.QuotaStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/quota", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestTriggerCapture(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{state: capture.StateReview}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.TriggerCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(capture.StateReview)) {
		t.Fatalf("body should report reached state: %s", rec.Body.String())
	}
}

func TestTriggerCaptureBlocked(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{triggerErr: &capture.BlockedError{
		Err:     domain.ErrQuotaExceeded,
		Message: "Photo limit reached. Please contact staff.",
	}}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.TriggerCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Photo limit reached") {
		t.Fatalf("blocked message should pass through verbatim: %s", rec.Body.String())
	}
}

func TestTriggerCaptureBusy(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{triggerErr: domain.ErrCaptureInProgress}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.TriggerCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestConfirmCapture(t *testing.T) {
	machine := &stubCapture{state: capture.StateReview}
	runner := &stubRunner{ran: make(chan struct{})}
	app := newApp(&stubQuota{}, &stubSessions{}, machine, runner)

	body := strings.NewReader(`{"style_id":"noir","prompt":"noir portrait"}`)
	rec := httptest.NewRecorder()
	app.ConfirmCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture/confirm", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline run never started")
	}
	if !machine.wasConfirmed() {
		t.Fatal("machine confirm not invoked")
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.directive.StyleID != "noir" {
		t.Fatalf("directive not forwarded: %+v", runner.directive)
	}
}

func TestCancelCaptureAbortsRun(t *testing.T) {
	machine := &stubCapture{state: capture.StateReview}
	runner := &blockingRunner{
		started:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	app := newApp(&stubQuota{}, &stubSessions{}, machine, nil)
	app.Runner = runner

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"prompt":"p"}`)
	app.ConfirmCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture/confirm", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("confirm status = %d", rec.Code)
	}

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	rec = httptest.NewRecorder()
	app.CancelCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture/cancel", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rec.Code)
	}

	select {
	case <-runner.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not reach the run context")
	}
	if runner.ctxErr == nil {
		t.Fatal("run context should be cancelled")
	}
}

func TestCancelCaptureWithoutRun(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.CancelCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture/cancel", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

// blockingRunner parks until its context is cancelled, standing in for a
// long generation poll.
type blockingRunner struct {
	started  chan struct{}
	finished chan struct{}
	ctxErr   error
}

func (b *blockingRunner) Run(ctx context.Context, _ *domain.CaptureFrame, _ domain.StyleDirective) error {
	close(b.started)
	<-ctx.Done()
	b.ctxErr = ctx.Err()
	close(b.finished)
	return ctx.Err()
}

func TestConfirmCaptureRequiresDirective(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{state: capture.StateReview}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.ConfirmCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture/confirm", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfirmCaptureWithoutReviewFrame(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{state: capture.StateIdle}, &stubRunner{})
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"prompt":"p"}`)
	app.ConfirmCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture/confirm", body))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRetakeCapture(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{}, &stubRunner{})
	rec := httptest.NewRecorder()
	app.RetakeCapture(rec, httptest.NewRequest(http.MethodPost, "/v1/capture/retake", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

type stubDevice struct {
	stream *device.Stream
	err    error
}

func (s *stubDevice) Retry(context.Context) (*device.Stream, error) { return s.stream, s.err }

func TestRetryDeviceFailure(t *testing.T) {
	app := newApp(&stubQuota{}, &stubSessions{}, &stubCapture{}, &stubRunner{})
	app.Device = &stubDevice{err: &device.DeviceError{
		Cause: device.CauseNoDevice,
		Err:   device.ErrNoDevice,
	}}
	rec := httptest.NewRecorder()
	app.RetryDevice(rec, httptest.NewRequest(http.MethodPost, "/v1/device/retry", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(device.CauseNoDevice)) {
		t.Fatalf("cause missing from body: %s", rec.Body.String())
	}
}
