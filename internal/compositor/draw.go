package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"cutroom/internal/timeline"
)

// place returns the destination rectangle for a source of srcW×srcH pixels.
// A zero transform size fits the source inside the canvas keeping its
// aspect ratio; a single zero dimension is derived from the other.
func place(canvas image.Rectangle, tr timeline.Transform, srcW, srcH int) image.Rectangle {
	cw, ch := float64(canvas.Dx()), float64(canvas.Dy())
	sw, sh := float64(srcW), float64(srcH)
	if sw <= 0 || sh <= 0 {
		return image.Rectangle{}
	}
	w, h := tr.Width, tr.Height
	switch {
	case w <= 0 && h <= 0:
		scale := math.Min(cw/sw, ch/sh)
		w, h = sw*scale, sh*scale
	case w <= 0:
		w = h * sw / sh
	case h <= 0:
		h = w * sh / sw
	}
	return centred(canvas, tr, w, h)
}

// centred positions a w×h box whose centre is offset from the canvas
// centre by the transform's X and Y.
func centred(canvas image.Rectangle, tr timeline.Transform, w, h float64) image.Rectangle {
	cx := float64(canvas.Min.X) + float64(canvas.Dx())/2 + tr.X
	cy := float64(canvas.Min.Y) + float64(canvas.Dy())/2 + tr.Y
	x0 := int(math.Round(cx - w/2))
	y0 := int(math.Round(cy - h/2))
	return image.Rect(x0, y0, x0+int(math.Round(w)), y0+int(math.Round(h)))
}

// opacityMask returns nil for fully opaque draws.
func opacityMask(opacity float64) image.Image {
	if opacity >= 1 {
		return nil
	}
	return image.NewUniform(color.Alpha{A: uint8(math.Round(clamp01(opacity) * 255))})
}

// drawScaled composites src over dst inside rect.
func drawScaled(dst *image.RGBA, rect image.Rectangle, src image.Image, opacity float64, scaler xdraw.Scaler) {
	if opacity <= 0 || rect.Empty() || !rect.Overlaps(dst.Bounds()) {
		return
	}
	var opts *xdraw.Options
	if mask := opacityMask(opacity); mask != nil {
		opts = &xdraw.Options{DstMask: mask}
	}
	sb := src.Bounds()
	if rect.Size() == sb.Size() {
		xdraw.Copy(dst, rect.Min, src, sb, xdraw.Over, opts)
		return
	}
	scaler.Scale(dst, rect, src, sb, xdraw.Over, opts)
}

// fill paints c over rect with the given opacity.
func fill(dst *image.RGBA, rect image.Rectangle, c color.Color, opacity float64) {
	if opacity <= 0 || rect.Empty() {
		return
	}
	mask := opacityMask(opacity)
	if mask == nil {
		draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Over)
		return
	}
	draw.DrawMask(dst, rect, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
