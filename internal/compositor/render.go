package compositor

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/kikiluvv/recapcannon/internal/captions"
	"github.com/kikiluvv/recapcannon/internal/effects"
)

// Mode selects which affordances are drawn
type Mode int

const (
	// Capture renders exactly what goes into the recorded file
	Capture Mode = iota
	// Preview adds interactive-only indicators such as the freeze badge
	Preview
)

func (m Mode) String() string {
	if m == Preview {
		return "preview"
	}
	return "capture"
}

const (
	blurScaleFactor = 0.1
	freezeBorderPx  = 12
	badgeW, badgeH  = 80, 24
	badgeMargin     = 15
	logoPadding     = 20
	logoSizeRatio   = 0.15
	logoAlpha       = 230
	captionBottom   = 50
)

var (
	freezeBorderColor = color.NRGBA{R: 99, G: 102, B: 241, A: 204}
	freezeBadgeColor  = color.NRGBA{R: 99, G: 102, B: 241, A: 230}
	bandVeilColor     = color.NRGBA{A: 102}
	bandGuideColor    = color.NRGBA{R: 255, G: 255, B: 255, A: 51}
)

// RenderFrame draws one composited frame into dst. It keeps no state
// between calls, so the preview and capture paths can share it safely.
// elapsed is the media time of frame and drives both the freeze cycle and
// caption lookup.
func RenderFrame(dst *image.RGBA, frame image.Image, elapsed time.Duration, p *effects.Parameters, mode Mode) {
	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.Black, image.Point{}, draw.Src)

	if frame == nil || frame.Bounds().Empty() || bounds.Empty() || p == nil {
		return
	}

	w, h := bounds.Dx(), bounds.Dy()
	src := frame.Bounds()

	scale, frozen := p.Freeze.At(elapsed)
	fit := Fit(src.Dx(), src.Dy(), w, h)

	target := fit.Scaled(scale, w, h).Rect().Add(bounds.Min)
	draw.ApproxBiLinear.Scale(dst, target, frame, src, draw.Src, nil)

	if frozen && mode == Preview {
		drawFreezeIndicator(dst)
	}

	if p.Blur.Enabled {
		drawBlurBand(dst, frame, fit, p.Blur)
	}

	if p.Logo.Image != nil {
		drawLogo(dst, p.Logo)
	}

	if cue, ok := captions.ActiveCueAt(p.Captions, elapsed); ok {
		drawCaption(dst, cue.Lines(), p.CaptionStyle)
	}
}

func drawFreezeIndicator(dst *image.RGBA) {
	b := dst.Bounds()
	border := image.NewUniform(freezeBorderColor)
	half := freezeBorderPx / 2

	// canvas strokes centre on the edge, so only half the width is visible
	for _, r := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+half),
		image.Rect(b.Min.X, b.Max.Y-half, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y+half, b.Min.X+half, b.Max.Y-half),
		image.Rect(b.Max.X-half, b.Min.Y+half, b.Max.X, b.Max.Y-half),
	} {
		draw.Draw(dst, r, border, image.Point{}, draw.Over)
	}

	badge := image.Rect(b.Max.X-badgeW-badgeMargin, b.Min.Y+badgeMargin, b.Max.X-badgeMargin, b.Min.Y+badgeMargin+badgeH)
	draw.Draw(dst, badge, image.NewUniform(freezeBadgeColor), image.Point{}, draw.Over)
	drawBadgeLabel(dst, badge, "FREEZE ACTIVE")
}

// drawBlurBand blurs a downsampled copy of the source rather than the
// composited canvas, then stretches it back under the band clip.
func drawBlurBand(dst *image.RGBA, frame image.Image, fit Geometry, band effects.BlurBand) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()

	clip := band.Band(w, h).Add(b.Min)
	if clip.Empty() {
		return
	}

	smallW := max(1, int(math.Floor(float64(w)*blurScaleFactor)))
	smallH := max(1, int(math.Floor(float64(h)*blurScaleFactor)))
	helper := image.NewRGBA(image.Rect(0, 0, smallW, smallH))
	draw.Draw(helper, helper.Rect, image.Black, image.Point{}, draw.Src)

	sw := max(1, int(math.Round(fit.DrawW*blurScaleFactor)))
	sh := max(1, int(math.Round(fit.DrawH*blurScaleFactor)))
	small := resize.Resize(uint(sw), uint(sh), frame, resize.Bilinear)
	at := image.Pt(int(math.Round(fit.OffsetX*blurScaleFactor)), int(math.Round(fit.OffsetY*blurScaleFactor)))
	draw.Draw(helper, small.Bounds().Sub(small.Bounds().Min).Add(at), small, small.Bounds().Min, draw.Src)

	var blurred image.Image = helper
	if sigma := band.IntensityPx * blurScaleFactor; sigma > 0 {
		blurred = imaging.Blur(helper, sigma)
	}

	sub := dst.SubImage(clip).(*image.RGBA)
	draw.BiLinear.Scale(sub, b, blurred, blurred.Bounds(), draw.Src, nil)

	draw.Draw(dst, clip, image.NewUniform(bandVeilColor), image.Point{}, draw.Over)

	guide := image.NewUniform(bandGuideColor)
	draw.Draw(dst, image.Rect(clip.Min.X, clip.Min.Y, clip.Max.X, clip.Min.Y+1), guide, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(clip.Min.X, clip.Max.Y-1, clip.Max.X, clip.Max.Y), guide, image.Point{}, draw.Over)
}

func drawLogo(dst *image.RGBA, logo effects.Logo) {
	b := dst.Bounds()
	size := int(math.Floor(float64(min(b.Dx(), b.Dy())) * logoSizeRatio))
	if size <= 0 || logo.Image.Bounds().Empty() {
		return
	}

	x, y := b.Min.X+logoPadding, b.Min.Y+logoPadding
	if logo.Corner.Right() {
		x = b.Max.X - size - logoPadding
	}
	if logo.Corner.Bottom() {
		y = b.Max.Y - size - logoPadding
	}

	scaled := resize.Resize(uint(size), uint(size), logo.Image, resize.Bilinear)
	r := image.Rect(x, y, x+size, y+size)
	draw.DrawMask(dst, r, scaled, scaled.Bounds().Min, image.NewUniform(color.Alpha{A: logoAlpha}), image.Point{}, draw.Over)
}
