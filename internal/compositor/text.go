package compositor

import (
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kikiluvv/recapcannon/internal/effects"
)

const (
	captionSizeRatio = 0.05
	captionLineRatio = 0.06
)

var captionFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

func captionFace(px int) (font.Face, error) {
	f, err := captionFont()
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(px),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// drawCaption draws lines bottom-up, centred, with the last line's bottom
// edge 50px above the canvas bottom.
func drawCaption(dst *image.RGBA, lines []string, style effects.CaptionStyle) {
	b := dst.Bounds()
	h := b.Dy()

	size := int(math.Floor(float64(h) * captionSizeRatio))
	lineHeight := int(math.Floor(float64(h) * captionLineRatio))
	if size <= 0 || len(lines) == 0 {
		return
	}

	face, err := captionFace(size)
	if err != nil {
		return
	}
	defer face.Close()

	descent := face.Metrics().Descent.Ceil()
	fill := image.NewUniform(style.Fill())
	stroke := image.NewUniform(color.Black)
	radius := style.Stroke / 2

	n := len(lines)
	for i, line := range lines {
		bottom := b.Max.Y - captionBottom - (n-1-i)*lineHeight
		width := font.MeasureString(face, line).Ceil()
		x := b.Min.X + (b.Dx()-width)/2
		y := bottom - descent

		d := &font.Drawer{Dst: dst, Face: face, Src: stroke}
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx*dx+dy*dy > radius*radius || (dx == 0 && dy == 0) {
					continue
				}
				d.Dot = fixed.P(x+dx, y+dy)
				d.DrawString(line)
			}
		}

		d.Src = fill
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
}

func drawBadgeLabel(dst *image.RGBA, badge image.Rectangle, label string) {
	face := basicfont.Face7x13
	m := face.Metrics()
	x := badge.Min.X + (badge.Dx()-font.MeasureString(face, label).Ceil())/2
	y := badge.Min.Y + (badge.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2

	// clipped to the badge: the 7x13 face runs slightly wider than 80px
	d := &font.Drawer{
		Dst:  dst.SubImage(badge).(*image.RGBA),
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}
