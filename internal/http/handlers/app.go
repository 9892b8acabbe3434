// Package handlers serves the kiosk daemon's local HTTP surface: health,
// the active session transcript, remaining quota, and the capture controls
// the touchscreen front-end drives. It is bound to localhost; there is no
// authentication layer because the surface never leaves the kiosk.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"booth/internal/capture"
	"booth/internal/device"
	"booth/internal/domain"
	"booth/internal/pipeline"
)

// QuotaChecker recomputes the project's remaining allowance.
type QuotaChecker interface {
	Check(ctx context.Context, projectID string) (domain.QuotaSnapshot, error)
}

// SessionSource exposes the latest generation request snapshot.
type SessionSource interface {
	Current() (pipeline.Snapshot, bool)
}

// CaptureController is the capture state machine as the front-end sees it.
type CaptureController interface {
	State() capture.State
	Trigger(ctx context.Context) error
	Retake() error
	Confirm(ctx context.Context, run func(ctx context.Context, frame *domain.CaptureFrame) error) error
	SetStream(s *device.Stream)
}

// RunStarter executes a confirmed frame through the pipeline.
type RunStarter interface {
	Run(ctx context.Context, frame *domain.CaptureFrame, directive domain.StyleDirective) error
}

// DeviceRetrier re-acquires the camera from the top of the fallback ladder.
type DeviceRetrier interface {
	Retry(ctx context.Context) (*device.Stream, error)
}

type App struct {
	ProjectID string
	Locale    string
	Quota     QuotaChecker
	Sessions  SessionSource
	Capture   CaptureController
	Runner    RunStarter
	Device    DeviceRetrier
	Logger    zerolog.Logger

	mu sync.Mutex
	// cancelRun aborts the active pipeline run's polling loop; nil when no
	// run is in flight. The upload and ledger write survive the cancel.
	cancelRun context.CancelFunc
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
