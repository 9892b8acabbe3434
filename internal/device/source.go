// Package device acquires the live camera stream the capture state machine
// reads from. Acquisition walks a ladder of capability constraints from
// highest quality to minimal; the first source that opens wins.
package device

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Sentinel causes an Opener reports so acquisition failures can be
// classified for the operator.
var (
	ErrNoDevice         = errors.New("no camera device")
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrBusy             = errors.New("camera hardware busy")
)

// Constraints describes a single acquisition attempt.
type Constraints struct {
	IdealWidth  int
	IdealHeight int
	MinWidth    int
	MinHeight   int
	AspectRatio float64
	// FacingFront restricts the attempt to a front-facing camera.
	FacingFront bool
	// Unconstrained requests any available video source.
	Unconstrained bool
}

func (c Constraints) String() string {
	switch {
	case c.Unconstrained && c.FacingFront:
		return "front-facing"
	case c.Unconstrained:
		return "unconstrained"
	case c.IdealWidth > 0:
		return fmt.Sprintf("ideal %dx%d", c.IdealWidth, c.IdealHeight)
	default:
		return fmt.Sprintf("min %dx%d", c.MinWidth, c.MinHeight)
	}
}

// fallbackLadder is the prioritized list of capability requests. Order
// matters: attempts degrade from full HD down to "any front camera".
func fallbackLadder() []Constraints {
	return []Constraints{
		{IdealWidth: 1920, IdealHeight: 1080, AspectRatio: 16.0 / 9.0},
		{MinWidth: 640, MinHeight: 360, AspectRatio: 16.0 / 9.0},
		{Unconstrained: true},
		{Unconstrained: true, FacingFront: true},
	}
}

// FrameSource is one opened camera source. Frame returns nil until the
// source has decoded its first frame; decode start is asynchronous and
// unreliable across devices, so callers poll rather than assume.
type FrameSource interface {
	Frame() (image.Image, error)
	Dimensions() (width, height int)
	Close() error
}

// Opener opens a FrameSource honoring the given constraints. Hardware
// backends and test fakes plug in through this interface.
type Opener interface {
	Open(ctx context.Context, c Constraints) (FrameSource, error)
}
