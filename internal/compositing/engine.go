// Package compositing merges generated rasters with project watermarks.
// Watermark assets are authored with true-black regions marking where the
// photo shows through; near-black pixels are chroma-keyed to transparent.
package compositing

import (
	"image"
	"image/draw"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"booth/internal/capture"
	"booth/internal/domain"
)

// Engine flattens a generated image and a watermark onto the output canvas.
// Compositing is an enhancement, never a blocking requirement: every
// failure degrades to the unmodified generated image.
type Engine struct {
	logger zerolog.Logger
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Composite merges generated with wm. A nil watermark is a passthrough.
// Otherwise the generated raster is aspect-fit-and-centered onto the
// watermark's canvas (never stretched), the watermark is chroma-keyed at
// threshold, drawn over it at exactly the canvas dimensions, and flattened.
func (e *Engine) Composite(generated image.Image, wm *domain.WatermarkAsset, threshold uint8) domain.CompositeResult {
	if generated == nil {
		e.logger.Error().Msg("compositing: no generated raster")
		return domain.CompositeResult{}
	}
	if wm == nil || wm.Image == nil {
		return domain.CompositeResult{Image: generated, HasWatermark: false}
	}
	if wm.CanvasWidth <= 0 || wm.CanvasHeight <= 0 {
		e.logger.Warn().Int("w", wm.CanvasWidth).Int("h", wm.CanvasHeight).Msg("compositing: invalid canvas, skipping watermark")
		return domain.CompositeResult{Image: generated, HasWatermark: false}
	}

	base := normalize(generated, wm.CanvasWidth, wm.CanvasHeight)
	keyed := chromaKey(wm.Image, threshold)

	// Scale the keyed watermark to exactly the canvas and flatten.
	overlay := image.NewRGBA(image.Rect(0, 0, wm.CanvasWidth, wm.CanvasHeight))
	xdraw.ApproxBiLinear.Scale(overlay, overlay.Bounds(), keyed, keyed.Bounds(), xdraw.Src, nil)
	draw.Draw(base, base.Bounds(), overlay, image.Point{}, draw.Over)

	return domain.CompositeResult{Image: base, HasWatermark: true}
}

// normalize returns generated as an RGBA raster of exactly canvasW x
// canvasH, aspect-fit-and-centered when the dimensions differ. The result
// is always a fresh buffer: the overlay is drawn into it later and the
// caller's image must stay untouched.
func normalize(generated image.Image, canvasW, canvasH int) *image.RGBA {
	b := generated.Bounds()
	if b.Dx() == canvasW && b.Dy() == canvasH {
		out := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
		draw.Draw(out, out.Bounds(), generated, b.Min, draw.Src)
		return out
	}
	return capture.Rasterize(generated, canvasW, canvasH, false)
}

// chromaKey copies the watermark at native resolution and zeroes the alpha
// of every pixel whose RGB channels are all below threshold.
func chromaKey(wm image.Image, threshold uint8) *image.RGBA {
	b := wm.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), wm, b.Min, draw.Src)

	limit := domain.DefaultChromaKeyThreshold
	if threshold > 0 {
		limit = threshold
	}
	px := out.Pix
	for i := 0; i < len(px); i += 4 {
		if px[i] < limit && px[i+1] < limit && px[i+2] < limit {
			// RGBA is alpha-premultiplied: clear color too so the residual
			// near-black does not bleed through draw.Over.
			px[i], px[i+1], px[i+2], px[i+3] = 0, 0, 0, 0
		}
	}
	return out
}
