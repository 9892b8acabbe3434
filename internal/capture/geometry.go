// Package capture implements the kiosk capture state machine and the
// geometry-correct rasterization of live frames into the output canvas.
package capture

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// FitRect computes the aspect-fit-and-center placement of a srcW x srcH
// raster within a dstW x dstH canvas. The source fills one canvas
// dimension with its aspect ratio preserved and is centered along the
// other axis, so overflow (or slack) is split symmetrically.
func FitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rect(0, 0, dstW, dstH)
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	var scaledW, scaledH int
	if srcAspect > dstAspect {
		// Source is wider than the target: match target height, center
		// horizontally.
		scaledH = dstH
		scaledW = int(float64(dstH)*srcAspect + 0.5)
	} else {
		// Source is taller (or equal): match target width, center
		// vertically.
		scaledW = dstW
		scaledH = int(float64(dstW)/srcAspect + 0.5)
	}
	offX := (dstW - scaledW) / 2
	offY := (dstH - scaledH) / 2
	return image.Rect(offX, offY, offX+scaledW, offY+scaledH)
}

// Rasterize draws src into a dstW x dstH canvas using aspect-fit-and-center
// scaling, optionally flipping the horizontal axis first (selfie mirror
// convention). The returned raster is always exactly dstW x dstH.
func Rasterize(src image.Image, dstW, dstH int, mirror bool) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	if src == nil {
		return dst
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return dst
	}
	if mirror {
		src = &hflip{src}
	}
	placement := FitRect(b.Dx(), b.Dy(), dstW, dstH)
	xdraw.ApproxBiLinear.Scale(dst, placement, src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// hflip presents src with its horizontal axis flipped.
type hflip struct {
	src image.Image
}

func (h *hflip) ColorModel() color.Model { return h.src.ColorModel() }
func (h *hflip) Bounds() image.Rectangle { return h.src.Bounds() }
func (h *hflip) At(x, y int) color.Color {
	b := h.src.Bounds()
	return h.src.At(b.Min.X+b.Max.X-1-x, y)
}
