package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"
	"time"

	"github.com/kikiluvv/recapcannon/internal/captions"
	"github.com/kikiluvv/recapcannon/internal/effects"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func plainParams(t *testing.T) *effects.Parameters {
	t.Helper()
	p := effects.Defaults()
	p.Freeze.Enabled = false
	p.Blur.Enabled = false
	params, err := effects.New(p)
	if err != nil {
		t.Fatalf("effects.New: %v", err)
	}
	return params
}

func TestFit(t *testing.T) {
	tests := []struct {
		name                 string
		srcW, srcH, dstW, dH int
		want                 Geometry
	}{
		{"wide into portrait", 1920, 1080, 480, 600, Geometry{DrawW: 480, DrawH: 270, OffsetY: 165}},
		{"tall into wide", 1080, 1920, 854, 480, Geometry{DrawW: 270, DrawH: 480, OffsetX: 292}},
		{"same ratio", 1708, 960, 854, 480, Geometry{DrawW: 854, DrawH: 480}},
		{"near ratio", 1280, 720, 854, 480, Geometry{DrawW: 853.33, DrawH: 480, OffsetX: 0.33}},
		{"zero source", 0, 720, 854, 480, Geometry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(tt.srcW, tt.srcH, tt.dstW, tt.dH)
			if math.Abs(got.DrawW-tt.want.DrawW) > 0.5 || math.Abs(got.DrawH-tt.want.DrawH) > 0.5 ||
				math.Abs(got.OffsetX-tt.want.OffsetX) > 0.5 || math.Abs(got.OffsetY-tt.want.OffsetY) > 0.5 {
				t.Errorf("Fit() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFitIsCenteredAndContained(t *testing.T) {
	sizes := [][2]int{{640, 360}, {360, 640}, {500, 500}, {1000, 1200}, {3, 1}}
	outs := [][2]int{{854, 480}, {480, 854}, {480, 480}, {480, 600}}

	for _, s := range sizes {
		for _, o := range outs {
			g := Fit(s[0], s[1], o[0], o[1])
			if g.DrawW > float64(o[0])+1e-9 || g.DrawH > float64(o[1])+1e-9 {
				t.Errorf("Fit(%v in %v) overflows: %+v", s, o, g)
			}
			if math.Abs(2*g.OffsetX+g.DrawW-float64(o[0])) > 1e-6 || math.Abs(2*g.OffsetY+g.DrawH-float64(o[1])) > 1e-6 {
				t.Errorf("Fit(%v in %v) not centred: %+v", s, o, g)
			}
			if math.Abs(g.DrawW/g.DrawH-float64(s[0])/float64(s[1])) > 1e-6 {
				t.Errorf("Fit(%v in %v) changed aspect: %+v", s, o, g)
			}
		}
	}
}

func TestScaledPivotsOnCentre(t *testing.T) {
	g := Fit(854, 480, 854, 480).Scaled(1.05, 854, 480)
	if math.Abs(g.OffsetX+g.DrawW/2-427) > 1e-9 || math.Abs(g.OffsetY+g.DrawH/2-240) > 1e-9 {
		t.Errorf("Scaled centre moved: %+v", g)
	}
}

func TestRenderFrameClearsWithoutFrame(t *testing.T) {
	dst := uniform(854, 480, color.White)
	RenderFrame(dst, nil, 0, plainParams(t), Capture)

	for _, pt := range []image.Point{{0, 0}, {427, 240}, {853, 479}} {
		if c := dst.RGBAAt(pt.X, pt.Y); c != (color.RGBA{A: 255}) {
			t.Errorf("pixel %v = %v, want opaque black", pt, c)
		}
	}

	RenderFrame(dst, image.NewRGBA(image.Rectangle{}), 0, plainParams(t), Capture)
	if c := dst.RGBAAt(10, 10); c != (color.RGBA{A: 255}) {
		t.Errorf("empty frame pixel = %v, want opaque black", c)
	}
}

func TestRenderFrameLetterboxes(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 480, 600))
	frame := uniform(1920, 1080, color.RGBA{R: 200, G: 200, B: 200, A: 255})

	RenderFrame(dst, frame, 0, plainParams(t), Capture)

	if c := dst.RGBAAt(240, 20); c != (color.RGBA{A: 255}) {
		t.Errorf("letterbox bar = %v, want black", c)
	}
	if c := dst.RGBAAt(240, 300); c.R < 195 {
		t.Errorf("picture area = %v, want source grey", c)
	}
}

func TestFreezeBadgeOnlyInPreview(t *testing.T) {
	p := effects.Defaults()
	p.Blur.Enabled = false
	params, err := effects.New(p)
	if err != nil {
		t.Fatal(err)
	}

	frame := uniform(854, 480, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	badge := image.Pt(854-55, 17)
	edge := image.Pt(2, 240)

	capture := image.NewRGBA(image.Rect(0, 0, 854, 480))
	RenderFrame(capture, frame, time.Second, params, Capture)
	for _, pt := range []image.Point{badge, edge} {
		if c := capture.RGBAAt(pt.X, pt.Y); c.R != c.B {
			t.Errorf("capture pixel %v = %v, indicator leaked into capture", pt, c)
		}
	}

	preview := image.NewRGBA(image.Rect(0, 0, 854, 480))
	RenderFrame(preview, frame, time.Second, params, Preview)
	for _, pt := range []image.Point{badge, edge} {
		if c := preview.RGBAAt(pt.X, pt.Y); c.B <= c.R {
			t.Errorf("preview pixel %v = %v, want indigo indicator", pt, c)
		}
	}

	// outside the freeze window the preview is clean too
	RenderFrame(preview, frame, 3*time.Second, params, Preview)
	if c := preview.RGBAAt(edge.X, edge.Y); c.R != c.B {
		t.Errorf("unfrozen preview edge = %v", c)
	}
}

func TestBlurBandVeil(t *testing.T) {
	p := effects.Defaults()
	p.Freeze.Enabled = false
	params, err := effects.New(p)
	if err != nil {
		t.Fatal(err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 854, 480))
	frame := uniform(854, 480, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	RenderFrame(dst, frame, 0, params, Capture)

	band := params.Blur.Band(854, 480)
	mid := dst.RGBAAt(427, (band.Min.Y+band.Max.Y)/2)
	if mid.R < 105 || mid.R > 135 {
		t.Errorf("band pixel = %v, want veiled grey near 120", mid)
	}
	if above := dst.RGBAAt(427, band.Min.Y-5); above.R < 195 {
		t.Errorf("pixel above band = %v, want untouched", above)
	}
}

func TestLogoCorners(t *testing.T) {
	logo := uniform(64, 64, color.RGBA{R: 255, A: 255})
	frame := uniform(854, 480, color.RGBA{A: 255})

	// logo is 72px at 854x480
	tests := []struct {
		corner effects.Corner
		at     image.Point
	}{
		{effects.TopLeft, image.Pt(56, 56)},
		{effects.TopRight, image.Pt(854-56, 56)},
		{effects.BottomLeft, image.Pt(56, 480-56)},
		{effects.BottomRight, image.Pt(854-56, 480-56)},
	}

	for _, tt := range tests {
		t.Run(string(tt.corner), func(t *testing.T) {
			p := effects.Defaults()
			p.Freeze.Enabled = false
			p.Blur.Enabled = false
			p.Logo = effects.Logo{Image: logo, Corner: tt.corner}
			params, err := effects.New(p)
			if err != nil {
				t.Fatal(err)
			}

			dst := image.NewRGBA(image.Rect(0, 0, 854, 480))
			RenderFrame(dst, frame, 0, params, Capture)

			c := dst.RGBAAt(tt.at.X, tt.at.Y)
			if c.R < 220 || c.R > 235 {
				t.Errorf("logo pixel = %v, want red at 90%% opacity", c)
			}
			if c := dst.RGBAAt(427, 240); c.R != 0 {
				t.Errorf("centre pixel = %v, logo drawn in wrong place", c)
			}
		})
	}
}

func TestCaptionBurnedOnlyWhileActive(t *testing.T) {
	p := effects.Defaults()
	p.Freeze.Enabled = false
	p.Blur.Enabled = false
	params, err := effects.New(p)
	if err != nil {
		t.Fatal(err)
	}
	params = params.WithCaptions([]captions.Cue{
		{Index: 1, Start: time.Second, End: 2 * time.Second, Text: "HELLO WORLD"},
	})

	frame := uniform(854, 480, color.RGBA{R: 40, G: 40, B: 40, A: 255})
	region := image.Rect(0, 480-50-40, 854, 480-40)

	dst := image.NewRGBA(image.Rect(0, 0, 854, 480))
	RenderFrame(dst, frame, 1500*time.Millisecond, params, Capture)
	if yellow, black := countCaptionPixels(dst, region); yellow == 0 || black == 0 {
		t.Errorf("active cue: yellow=%d black=%d, want stroke and fill", yellow, black)
	}

	RenderFrame(dst, frame, 3*time.Second, params, Capture)
	if yellow, _ := countCaptionPixels(dst, region); yellow != 0 {
		t.Errorf("inactive cue drew %d yellow pixels", yellow)
	}
}

func countCaptionPixels(img *image.RGBA, r image.Rectangle) (yellow, black int) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			switch {
			case c.R > 240 && c.G > 240 && c.B < 20:
				yellow++
			case c.R < 5 && c.G < 5 && c.B < 5:
				black++
			}
		}
	}
	return yellow, black
}

func TestRenderFrameIsDeterministic(t *testing.T) {
	params, err := effects.New(effects.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	frame := uniform(640, 360, color.RGBA{R: 90, G: 140, B: 10, A: 255})

	a := image.NewRGBA(image.Rect(0, 0, 854, 480))
	b := image.NewRGBA(image.Rect(0, 0, 854, 480))
	RenderFrame(a, frame, 1200*time.Millisecond, params, Capture)
	RenderFrame(b, frame, 1200*time.Millisecond, params, Capture)

	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("identical inputs produced different frames")
	}
}

func TestCanvasSnapshot(t *testing.T) {
	c := NewCanvas(4, 2)
	if w, h := c.Size(); w != 4 || h != 2 {
		t.Fatalf("Size() = %dx%d", w, h)
	}

	c.Draw(func(dst *image.RGBA) {
		dst.SetRGBA(1, 1, color.RGBA{R: 9, A: 255})
	})

	snap := c.Snapshot(nil)
	if got := snap.RGBAAt(1, 1); got.R != 9 {
		t.Errorf("snapshot pixel = %v", got)
	}

	c.Draw(func(dst *image.RGBA) {
		dst.SetRGBA(1, 1, color.RGBA{R: 1, A: 255})
	})
	if got := snap.RGBAAt(1, 1); got.R != 9 {
		t.Error("snapshot aliased canvas memory")
	}

	c.Resize(8, 8)
	if snap = c.Snapshot(snap); snap.Rect.Dx() != 8 {
		t.Errorf("snapshot not resized: %v", snap.Rect)
	}
}
