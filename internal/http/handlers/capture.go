package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"booth/internal/capture"
	"booth/internal/domain"
)

type stateResponse struct {
	State string `json:"state"`
}

// TriggerCapture starts a capture cycle and returns once the frame is in
// review (or the countdown was aborted). Refusals carry the localized
// blocking message the front-end shows verbatim.
func (a *App) TriggerCapture(w http.ResponseWriter, r *http.Request) {
	err := a.Capture.Trigger(r.Context())
	var blocked *capture.BlockedError
	switch {
	case err == nil:
		a.json(w, http.StatusOK, stateResponse{State: string(a.Capture.State())})
	case errors.As(err, &blocked):
		a.json(w, http.StatusConflict, map[string]string{"error": blocked.Message})
	case errors.Is(err, domain.ErrCaptureInProgress), errors.Is(err, domain.ErrRunOutstanding):
		a.error(w, http.StatusConflict, err.Error())
	default:
		a.Logger.Error().Err(err).Msg("http: capture trigger failed")
		a.error(w, http.StatusInternalServerError, err.Error())
	}
}

// RetakeCapture discards the frame under review.
func (a *App) RetakeCapture(w http.ResponseWriter, r *http.Request) {
	if err := a.Capture.Retake(); err != nil {
		a.error(w, http.StatusConflict, err.Error())
		return
	}
	a.json(w, http.StatusOK, stateResponse{State: string(capture.StateIdle)})
}

type confirmRequest struct {
	StyleID      string `json:"style_id"`
	Prompt       string `json:"prompt"`
	ReferenceURL string `json:"reference_url"`
}

// ConfirmCapture hands the reviewed frame to the pipeline and returns 202.
// The run proceeds in the background; the front-end follows it on
// /v1/session. The run context is detached from the request so closing the
// HTTP connection does not cancel generation.
func (a *App) ConfirmCapture(w http.ResponseWriter, r *http.Request) {
	var body confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid body")
		return
	}
	directive := domain.StyleDirective{
		StyleID:      body.StyleID,
		Prompt:       body.Prompt,
		ReferenceURL: body.ReferenceURL,
	}
	if directive.Empty() {
		a.error(w, http.StatusBadRequest, "style directive required")
		return
	}
	if a.Capture.State() != capture.StateReview {
		a.error(w, http.StatusConflict, "no frame under review")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancelRun = cancel
	a.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			a.mu.Lock()
			a.cancelRun = nil
			a.mu.Unlock()
		}()
		err := a.Capture.Confirm(runCtx, func(ctx context.Context, frame *domain.CaptureFrame) error {
			return a.Runner.Run(ctx, frame, directive)
		})
		if err != nil {
			a.Logger.Warn().Err(err).Str("style_id", directive.StyleID).Msg("http: confirmed run failed")
		}
	}()
	a.json(w, http.StatusAccepted, stateResponse{State: string(capture.StateIdle)})
}

// CancelCapture aborts the active run's generation polling. The in-flight
// upload, if any, still completes and the session record is still written.
func (a *App) CancelCapture(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	cancel := a.cancelRun
	a.mu.Unlock()
	if cancel == nil {
		a.error(w, http.StatusConflict, "no run in flight")
		return
	}
	cancel()
	a.json(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
