package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrMissingFrame      = errors.New("capture frame is empty")
	ErrMissingDirective  = errors.New("style directive is empty")
	ErrStreamNotReady    = errors.New("camera stream not ready")
	ErrCaptureInProgress = errors.New("capture already in progress")
	ErrRunOutstanding    = errors.New("generation run still outstanding")
)
