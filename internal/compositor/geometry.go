package compositor

import (
	"image"
	"math"
)

// Geometry is the contain-fit placement of a source inside an output box
type Geometry struct {
	DrawW, DrawH     float64
	OffsetX, OffsetY float64
}

// Fit letterboxes a srcW x srcH source inside dstW x dstH, centred
func Fit(srcW, srcH, dstW, dstH int) Geometry {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return Geometry{}
	}

	srcRatio := float64(srcW) / float64(srcH)
	dstRatio := float64(dstW) / float64(dstH)

	if srcRatio > dstRatio {
		drawH := float64(dstW) / srcRatio
		return Geometry{
			DrawW:   float64(dstW),
			DrawH:   drawH,
			OffsetY: (float64(dstH) - drawH) / 2,
		}
	}

	drawW := float64(dstH) * srcRatio
	return Geometry{
		DrawW:   drawW,
		DrawH:   float64(dstH),
		OffsetX: (float64(dstW) - drawW) / 2,
	}
}

// Scaled applies a zoom about the centre of a w x h canvas
func (g Geometry) Scaled(scale float64, w, h int) Geometry {
	cx, cy := float64(w)/2, float64(h)/2
	return Geometry{
		DrawW:   g.DrawW * scale,
		DrawH:   g.DrawH * scale,
		OffsetX: cx + (g.OffsetX-cx)*scale,
		OffsetY: cy + (g.OffsetY-cy)*scale,
	}
}

// Rect rounds the geometry to a pixel rectangle
func (g Geometry) Rect() image.Rectangle {
	x0 := int(math.Round(g.OffsetX))
	y0 := int(math.Round(g.OffsetY))
	x1 := int(math.Round(g.OffsetX + g.DrawW))
	y1 := int(math.Round(g.OffsetY + g.DrawH))
	return image.Rect(x0, y0, x1, y1)
}
