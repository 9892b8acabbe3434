package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"booth/internal/device"
	"booth/internal/domain"
)

type stubSource struct {
	frame image.Image
}

func (s *stubSource) Frame() (image.Image, error) { return s.frame, nil }
func (s *stubSource) Dimensions() (int, int) {
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}
func (s *stubSource) Close() error { return nil }

type stubOpener struct{ src *stubSource }

func (o *stubOpener) Open(context.Context, device.Constraints) (device.FrameSource, error) {
	return o.src, nil
}

type stubAdmission struct {
	snap domain.QuotaSnapshot
	err  error
}

func (a *stubAdmission) Check(context.Context, string) (domain.QuotaSnapshot, error) {
	return a.snap, a.err
}

func readyStream(t *testing.T, srcW, srcH int) *device.Stream {
	t.Helper()
	opener := &stubOpener{src: &stubSource{frame: image.NewRGBA(image.Rect(0, 0, srcW, srcH))}}
	m := device.NewManager(opener, zerolog.Nop())
	stream, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := stream.WaitReady(context.Background()); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	return stream
}

func testConfig() *domain.ProjectConfig {
	cfg := &domain.ProjectConfig{ID: "proj-1", CountdownEnabled: true}
	cfg.Normalize()
	return cfg
}

func openAdmission() *stubAdmission {
	return &stubAdmission{snap: domain.QuotaSnapshot{Allotted: 10, Remaining: 10}}
}

func TestTriggerRefusedBeforeStreamReady(t *testing.T) {
	opener := &stubOpener{src: &stubSource{frame: image.NewRGBA(image.Rect(0, 0, 10, 10))}}
	mgr := device.NewManager(opener, zerolog.Nop())
	stream, err := mgr.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// No WaitReady: the loaded signal has not fired.
	m := NewMachine(stream, testConfig(), openAdmission(), zerolog.Nop())
	err = m.Trigger(context.Background())
	if !errors.Is(err, domain.ErrStreamNotReady) {
		t.Fatalf("expected ErrStreamNotReady, got %v", err)
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) || blocked.Message == "" {
		t.Fatalf("expected blocking message, got %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("state should stay idle, got %s", m.State())
	}
}

func TestTriggerCountdownAndSnapshot(t *testing.T) {
	stream := readyStream(t, 1920, 1080)
	var mu sync.Mutex
	var ticks []int
	m := NewMachine(stream, testConfig(), openAdmission(), zerolog.Nop(),
		WithTickInterval(time.Millisecond),
		WithTickObserver(func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		}))

	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if m.State() != StateReview {
		t.Fatalf("expected review, got %s", m.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 3 || ticks[0] != 3 || ticks[2] != 1 {
		t.Fatalf("expected ticks 3,2,1, got %v", ticks)
	}

	frame := m.Frame()
	if frame.Empty() {
		t.Fatal("expected capture frame")
	}
	if frame.Width != 970 || frame.Height != 651 {
		t.Fatalf("frame dims %dx%d, want configured canvas", frame.Width, frame.Height)
	}
	if !frame.Mirrored {
		t.Fatal("selfie convention requires the mirrored flag")
	}
	if frame.SourceAspect < 1.77 || frame.SourceAspect > 1.78 {
		t.Fatalf("source aspect %f, want 16:9", frame.SourceAspect)
	}
}

func TestTriggerSkipsCountdownWhenDisabled(t *testing.T) {
	stream := readyStream(t, 640, 360)
	cfg := testConfig()
	cfg.CountdownEnabled = false
	ticked := false
	m := NewMachine(stream, cfg, openAdmission(), zerolog.Nop(),
		WithTickObserver(func(int) { ticked = true }))
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if ticked {
		t.Fatal("countdown must be skipped when disabled")
	}
	if m.State() != StateReview {
		t.Fatalf("expected review, got %s", m.State())
	}
}

func TestTriggerBlockedWhenQuotaExhausted(t *testing.T) {
	stream := readyStream(t, 640, 360)
	admission := &stubAdmission{snap: domain.QuotaSnapshot{Allotted: 10, UsedSinceReset: 10, Remaining: 0}}
	m := NewMachine(stream, testConfig(), admission, zerolog.Nop())
	err := m.Trigger(context.Background())
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) || blocked.Message == "" {
		t.Fatal("quota refusal must surface a blocking message")
	}
	if m.State() != StateIdle {
		t.Fatalf("state should return to idle, got %s", m.State())
	}
}

type observingAdmission struct {
	snap    domain.QuotaSnapshot
	observe func()
}

func (a *observingAdmission) Check(context.Context, string) (domain.QuotaSnapshot, error) {
	if a.observe != nil {
		a.observe()
	}
	return a.snap, nil
}

func TestTriggerStaysIdleUntilAdmitted(t *testing.T) {
	stream := readyStream(t, 640, 360)
	admission := &observingAdmission{snap: domain.QuotaSnapshot{Allotted: 10, UsedSinceReset: 10}}
	m := NewMachine(stream, testConfig(), admission, zerolog.Nop())

	// The countdown transition is gated on the admission check: while the
	// check runs the machine must not have left idle.
	var stateAtCheck State
	admission.observe = func() { stateAtCheck = m.State() }

	err := m.Trigger(context.Background())
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if stateAtCheck != StateIdle {
		t.Fatalf("machine entered %s before admission admitted the cycle", stateAtCheck)
	}
	if m.State() != StateIdle {
		t.Fatalf("state should stay idle, got %s", m.State())
	}
}

func TestRetakeDiscardsFrame(t *testing.T) {
	stream := readyStream(t, 640, 360)
	cfg := testConfig()
	cfg.CountdownEnabled = false
	m := NewMachine(stream, cfg, openAdmission(), zerolog.Nop())
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	if err := m.Retake(); err != nil {
		t.Fatalf("Retake error: %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after retake, got %s", m.State())
	}
	if m.Frame() != nil {
		t.Fatal("retake must discard the frame")
	}
	// Retake outside review is refused.
	if err := m.Retake(); err == nil {
		t.Fatal("expected error retaking from idle")
	}
}

func TestConfirmGuardsReentry(t *testing.T) {
	stream := readyStream(t, 640, 360)
	cfg := testConfig()
	cfg.CountdownEnabled = false
	m := NewMachine(stream, cfg, openAdmission(), zerolog.Nop())
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Confirm(context.Background(), func(ctx context.Context, frame *domain.CaptureFrame) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// A new capture may not begin while the downstream run is outstanding.
	if err := m.Trigger(context.Background()); !errors.Is(err, domain.ErrRunOutstanding) {
		t.Fatalf("expected ErrRunOutstanding, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	// After the run terminates the machine is idle again, success or not.
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger after run error: %v", err)
	}
}

func TestConfirmWithoutFrame(t *testing.T) {
	stream := readyStream(t, 640, 360)
	m := NewMachine(stream, testConfig(), openAdmission(), zerolog.Nop())
	err := m.Confirm(context.Background(), func(context.Context, *domain.CaptureFrame) error { return nil })
	if !errors.Is(err, domain.ErrMissingFrame) {
		t.Fatalf("expected ErrMissingFrame, got %v", err)
	}
}
