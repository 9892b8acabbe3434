package domain

import "image"

// WatermarkAsset is a project watermark raster plus the fixed output canvas
// it targets. Fetched once per generation and read-only for its duration.
type WatermarkAsset struct {
	Image        image.Image
	CanvasWidth  int
	CanvasHeight int
}

// CompositeResult is the outcome of merging a generated raster with a
// watermark. Derived deterministically; immutable.
type CompositeResult struct {
	Image        image.Image
	HasWatermark bool
}
