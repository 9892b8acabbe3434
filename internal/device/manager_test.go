package device

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSource struct {
	frame  image.Image
	closed bool
}

func (f *fakeSource) Frame() (image.Image, error) { return f.frame, nil }
func (f *fakeSource) Dimensions() (int, int) {
	if f.frame == nil {
		return 0, 0
	}
	b := f.frame.Bounds()
	return b.Dx(), b.Dy()
}
func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeOpener struct {
	results []error
	source  *fakeSource
	calls   []Constraints
}

func (f *fakeOpener) Open(_ context.Context, c Constraints) (FrameSource, error) {
	f.calls = append(f.calls, c)
	idx := len(f.calls) - 1
	if idx < len(f.results) && f.results[idx] != nil {
		return nil, f.results[idx]
	}
	if f.source == nil {
		f.source = &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 640, 360))}
	}
	return f.source, nil
}

func TestAcquireFirstRungWins(t *testing.T) {
	opener := &fakeOpener{}
	m := NewManager(opener, zerolog.Nop())
	stream, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if stream == nil {
		t.Fatal("expected stream")
	}
	if len(opener.calls) != 1 {
		t.Fatalf("expected single attempt, got %d", len(opener.calls))
	}
	if opener.calls[0].IdealWidth != 1920 || opener.calls[0].IdealHeight != 1080 {
		t.Fatalf("first attempt should request 1920x1080, got %+v", opener.calls[0])
	}
}

func TestAcquireFallsThroughLadder(t *testing.T) {
	opener := &fakeOpener{results: []error{ErrBusy, ErrBusy, ErrBusy, nil}}
	m := NewManager(opener, zerolog.Nop())
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if len(opener.calls) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(opener.calls))
	}
	last := opener.calls[3]
	if !last.Unconstrained || !last.FacingFront {
		t.Fatalf("last rung should be front-facing, got %+v", last)
	}
}

func TestAcquireAllAttemptsFail(t *testing.T) {
	opener := &fakeOpener{results: []error{ErrNoDevice, ErrPermissionDenied, ErrNoDevice, ErrNoDevice}}
	m := NewManager(opener, zerolog.Nop())
	_, err := m.Acquire(context.Background())
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *DeviceError, got %v", err)
	}
	if devErr.Cause != CausePermissionDenied {
		t.Fatalf("permission denial should win classification, got %s", devErr.Cause)
	}
	if devErr.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", devErr.Attempts)
	}
	if devErr.Message("id") == "" || devErr.Message("en") == "" {
		t.Fatal("expected localized messages")
	}
}

func TestRetryRestartsFromFirstRung(t *testing.T) {
	opener := &fakeOpener{results: []error{ErrBusy, nil}}
	m := NewManager(opener, zerolog.Nop())
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	first := opener.source
	opener.results = nil
	opener.source = nil

	stream, err := m.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry error: %v", err)
	}
	if !first.closed {
		t.Fatal("retry must tear down the previous stream")
	}
	if got := opener.calls[len(opener.calls)-1]; got.IdealWidth != 1920 {
		t.Fatalf("retry must restart from the first rung, got %+v", got)
	}
	if stream == nil {
		t.Fatal("expected new stream")
	}
}

func TestStreamReadiness(t *testing.T) {
	src := &fakeSource{}
	stream := newStream(src)
	if stream.Ready() {
		t.Fatal("stream must not be ready before first decoded frame")
	}
	if _, err := stream.Frame(); err == nil {
		t.Fatal("Frame must fail before readiness")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := stream.WaitReady(ctx); err == nil {
		t.Fatal("WaitReady must time out when no frame decodes")
	}

	src.frame = image.NewRGBA(image.Rect(0, 0, 1280, 720))
	if err := stream.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady error: %v", err)
	}
	if !stream.Ready() {
		t.Fatal("stream should be ready after first frame")
	}
	if _, err := stream.Frame(); err != nil {
		t.Fatalf("Frame error: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !src.closed {
		t.Fatal("Close must stop the source tracks")
	}
	if stream.Ready() {
		t.Fatal("closed stream must not report ready")
	}
}
