package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"booth/internal/i18n"
)

// Cause classifies why acquisition failed, for the operator-facing message.
type Cause string

const (
	CauseNoDevice         Cause = "no_device"
	CausePermissionDenied Cause = "permission_denied"
	CauseBusy             Cause = "hardware_busy"
)

// DeviceError is surfaced only after every constraint attempt has failed.
type DeviceError struct {
	Cause    Cause
	Attempts int
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device acquisition failed after %d attempts (%s): %v", e.Attempts, e.Cause, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Message returns the localized operator-facing cause.
func (e *DeviceError) Message(locale string) string {
	switch e.Cause {
	case CausePermissionDenied:
		return i18n.Message(locale, i18n.KeyDevicePermission)
	case CauseBusy:
		return i18n.Message(locale, i18n.KeyDeviceBusy)
	default:
		return i18n.Message(locale, i18n.KeyDeviceNoDevice)
	}
}

// Manager owns the live camera stream. The stream it returns is an owned
// resource: the consumer reads frames from it and the manager disposes it
// on Close or Retry.
type Manager struct {
	opener Opener
	logger zerolog.Logger

	mu     sync.Mutex
	stream *Stream
}

func NewManager(opener Opener, logger zerolog.Logger) *Manager {
	return &Manager{opener: opener, logger: logger}
}

// Acquire walks the constraint ladder until a source opens. Each failed
// rung is logged; only after every rung fails does it surface a
// *DeviceError classifying the most actionable cause seen.
func (m *Manager) Acquire(ctx context.Context) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(ctx)
}

func (m *Manager) acquireLocked(ctx context.Context) (*Stream, error) {
	if m.stream != nil {
		return m.stream, nil
	}

	ladder := fallbackLadder()
	var lastErr error
	var sawPermission, sawBusy bool

	for i, c := range ladder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := m.opener.Open(ctx, c)
		if err == nil {
			m.logger.Info().Int("attempt", i+1).Str("constraints", c.String()).Msg("device: stream acquired")
			m.stream = newStream(src)
			return m.stream, nil
		}
		lastErr = err
		if errors.Is(err, ErrPermissionDenied) {
			sawPermission = true
		}
		if errors.Is(err, ErrBusy) {
			sawBusy = true
		}
		m.logger.Warn().Err(err).Int("attempt", i+1).Str("constraints", c.String()).Msg("device: attempt failed")
	}

	cause := CauseNoDevice
	switch {
	case sawPermission:
		cause = CausePermissionDenied
	case sawBusy:
		cause = CauseBusy
	}
	devErr := &DeviceError{Cause: cause, Attempts: len(ladder), Err: lastErr}
	m.logger.Error().Err(devErr).Msg("device: all constraint attempts exhausted")
	return nil, devErr
}

// Retry tears down any existing stream and restarts acquisition from the
// first rung. Device state (e.g. a permission re-prompt) may have changed,
// so it never resumes from the last-tried constraint.
func (m *Manager) Retry(ctx context.Context) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("device: close before retry")
		}
		m.stream = nil
	}
	return m.acquireLocked(ctx)
}

// Close stops every media track of the current stream and clears it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	m.stream = nil
	return err
}
