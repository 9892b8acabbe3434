package domain

import (
	"image"
	"time"
)

// CaptureFrame is the rasterized snapshot produced by the capture state
// machine. It is immutable once produced; a retake discards it.
type CaptureFrame struct {
	Image        image.Image
	Width        int
	Height       int
	SourceAspect float64
	Mirrored     bool
	CapturedAt   time.Time
}

// Empty reports whether the frame carries no usable raster.
func (f *CaptureFrame) Empty() bool {
	return f == nil || f.Image == nil || f.Width <= 0 || f.Height <= 0
}
