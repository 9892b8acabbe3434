package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"booth/internal/device"
	"booth/internal/domain"
	"booth/internal/i18n"
)

// State enumerates the capture state machine states.
type State string

const (
	StateIdle      State = "idle"
	StateCountdown State = "countdown"
	StateCapturing State = "capturing"
	StateReview    State = "review"
)

const defaultTickInterval = time.Second

// Admission gates new captures on remaining quota.
type Admission interface {
	Check(ctx context.Context, projectID string) (domain.QuotaSnapshot, error)
}

// BlockedError carries the localized message shown on the kiosk when a
// trigger is refused.
type BlockedError struct {
	Err     error
	Message string
}

func (e *BlockedError) Error() string { return e.Err.Error() }
func (e *BlockedError) Unwrap() error { return e.Err }

// Machine drives idle -> countdown -> capturing -> review. One machine is
// bound to one project and one acquired stream.
type Machine struct {
	stream    *device.Stream
	cfg       *domain.ProjectConfig
	admission Admission
	logger    zerolog.Logger

	tickInterval time.Duration
	// onTick observes countdown ticks for the kiosk display; remaining is
	// the number of ticks still to elapse.
	onTick func(remaining int)

	mu sync.Mutex

	state State
	frame *domain.CaptureFrame
	// triggering guards re-entrancy while the admission check is still in
	// flight and the state is therefore still idle.
	triggering bool
	running    bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithTickInterval overrides the one second countdown tick, for tests.
func WithTickInterval(d time.Duration) Option {
	return func(m *Machine) { m.tickInterval = d }
}

// WithTickObserver registers a countdown observer.
func WithTickObserver(fn func(remaining int)) Option {
	return func(m *Machine) { m.onTick = fn }
}

func NewMachine(stream *device.Stream, cfg *domain.ProjectConfig, admission Admission, logger zerolog.Logger, opts ...Option) *Machine {
	m := &Machine{
		stream:       stream,
		cfg:          cfg,
		admission:    admission,
		logger:       logger,
		tickInterval: defaultTickInterval,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// run serializes a state mutation; the machine is cooperative and
// single-threaded in the spirit of a UI loop.
func (m *Machine) run(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// State returns the current state.
func (m *Machine) State() State {
	var s State
	m.run(func() { s = m.state })
	return s
}

// Frame returns the pending capture frame, if any.
func (m *Machine) Frame() *domain.CaptureFrame {
	var f *domain.CaptureFrame
	m.run(func() { f = m.frame })
	return f
}

// Trigger starts a capture cycle. It refuses re-entrantly while a countdown
// or downstream run is in flight, while the stream has not signaled loaded,
// and when the project quota is exhausted (surfacing a blocking message
// instead of attempting capture). The machine stays in idle until the
// quota check admits the cycle.
func (m *Machine) Trigger(ctx context.Context) error {
	var refusal error
	m.run(func() {
		switch {
		case m.state != StateIdle:
			refusal = domain.ErrCaptureInProgress
		case m.triggering:
			refusal = domain.ErrCaptureInProgress
		case m.running:
			refusal = domain.ErrRunOutstanding
		case m.stream == nil || !m.stream.Ready():
			refusal = &BlockedError{
				Err:     domain.ErrStreamNotReady,
				Message: i18n.Message(m.cfg.Locale, i18n.KeyStreamNotReady),
			}
		}
		if refusal == nil {
			m.triggering = true
		}
	})
	if refusal != nil {
		return refusal
	}
	defer m.run(func() { m.triggering = false })

	snap, err := m.admission.Check(ctx, m.cfg.ID)
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	if snap.Exhausted() {
		m.logger.Info().Int("allotted", snap.Allotted).Int("used", snap.UsedSinceReset).Msg("capture: blocked by quota")
		return &BlockedError{
			Err:     domain.ErrQuotaExceeded,
			Message: i18n.Message(m.cfg.Locale, i18n.KeyQuotaExhausted),
		}
	}

	m.setState(StateCountdown)
	if m.cfg.CountdownEnabled {
		if err := m.countdown(ctx); err != nil {
			m.setState(StateIdle)
			return err
		}
	}

	m.setState(StateCapturing)
	if err := m.snapshot(); err != nil {
		m.setState(StateIdle)
		return err
	}
	m.setState(StateReview)
	return nil
}

func (m *Machine) countdown(ctx context.Context) error {
	ticks := m.cfg.CountdownTicks
	for remaining := ticks; remaining > 0; remaining-- {
		if m.onTick != nil {
			m.onTick(remaining)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.tickInterval):
		}
	}
	return nil
}

// snapshot reads the live frame and rasterizes it, mirrored, into the
// configured output canvas with aspect-fit-and-center placement.
func (m *Machine) snapshot() error {
	img, err := m.stream.Frame()
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	raster := Rasterize(img, m.cfg.OutputWidth, m.cfg.OutputHeight, true)

	frame := &domain.CaptureFrame{
		Image:        raster,
		Width:        m.cfg.OutputWidth,
		Height:       m.cfg.OutputHeight,
		SourceAspect: float64(srcW) / float64(srcH),
		Mirrored:     true,
		CapturedAt:   time.Now(),
	}
	m.run(func() { m.frame = frame })
	return nil
}

// SetStream swaps the live stream, typically after a device retry
// re-acquired the camera.
func (m *Machine) SetStream(s *device.Stream) {
	m.run(func() { m.stream = s })
}

// Retake discards the pending frame and returns to idle.
func (m *Machine) Retake() error {
	var err error
	m.run(func() {
		if m.state != StateReview {
			err = fmt.Errorf("retake from %s: %w", m.state, domain.ErrCaptureInProgress)
			return
		}
		m.frame = nil
		m.state = StateIdle
	})
	return err
}

// Confirm hands the pending frame to run and stays inert until it returns,
// then goes back to idle regardless of outcome. run is typically the
// pipeline's Run bound to a directive.
func (m *Machine) Confirm(ctx context.Context, run func(ctx context.Context, frame *domain.CaptureFrame) error) error {
	var frame *domain.CaptureFrame
	var refusal error
	m.run(func() {
		if m.state != StateReview || m.frame.Empty() {
			refusal = domain.ErrMissingFrame
			return
		}
		frame = m.frame
		m.frame = nil
		m.state = StateIdle
		m.running = true
	})
	if refusal != nil {
		return refusal
	}
	defer m.run(func() { m.running = false })
	return run(ctx, frame)
}

func (m *Machine) setState(s State) {
	m.run(func() { m.state = s })
}
