package device

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"booth/internal/domain"
)

const defaultReadyPoll = 100 * time.Millisecond

// Stats reports the live state of a stream for the status surface.
type Stats struct {
	Ready       bool
	FramesRead  uint64
	LastFrameAt time.Time
	Width       int
	Height      int
}

// Stream wraps an opened FrameSource. It is exclusively owned by the
// Manager and handed to consumers as a read source only.
type Stream struct {
	source FrameSource

	mu          sync.Mutex
	ready       bool
	closed      bool
	framesRead  uint64
	lastFrameAt time.Time
}

func newStream(src FrameSource) *Stream {
	return &Stream{source: src}
}

// WaitReady polls the sink until at least one decoded frame is observed or
// the context expires. Readiness is never assumed from acquisition alone,
// since decode start is asynchronous.
func (s *Stream) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(defaultReadyPoll)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return errors.New("stream closed")
		}

		img, err := s.source.Frame()
		if err == nil && img != nil {
			s.mu.Lock()
			s.ready = true
			s.framesRead++
			s.lastFrameAt = time.Now()
			s.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return domain.ErrStreamNotReady
		case <-ticker.C:
		}
	}
}

// Ready reports whether the loaded signal has fired.
func (s *Stream) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.closed
}

// Frame returns the current decoded frame. It fails until WaitReady has
// observed the first frame.
func (s *Stream) Frame() (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("stream closed")
	}
	if !s.ready {
		s.mu.Unlock()
		return nil, domain.ErrStreamNotReady
	}
	s.mu.Unlock()

	img, err := s.source.Frame()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, domain.ErrStreamNotReady
	}
	s.mu.Lock()
	s.framesRead++
	s.lastFrameAt = time.Now()
	s.mu.Unlock()
	return img, nil
}

// Dimensions returns the source frame dimensions.
func (s *Stream) Dimensions() (int, int) {
	return s.source.Dimensions()
}

// Stats snapshots the stream state.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, h := s.source.Dimensions()
	return Stats{
		Ready:       s.ready && !s.closed,
		FramesRead:  s.framesRead,
		LastFrameAt: s.lastFrameAt,
		Width:       w,
		Height:      h,
	}
}

// Close stops the underlying media tracks and clears the sink reference.
// It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ready = false
	return s.source.Close()
}
