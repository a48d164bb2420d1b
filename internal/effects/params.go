// Package effects defines the per-render effect parameter snapshot consumed
// by the compositor. Values are validated once, when the snapshot is built.
package effects

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/recapcannon/internal/captions"
)

// ErrInvalidParameters is wrapped by every validation failure
var ErrInvalidParameters = errors.New("invalid effect parameters")

// BlurBand describes the horizontal blurred strip used to hide burned-in
// source subtitles or watermarks.
type BlurBand struct {
	Enabled      bool    `yaml:"enabled"`
	PositionPct  float64 `yaml:"position_pct"`
	ThicknessPct float64 `yaml:"thickness_pct"`
	IntensityPx  float64 `yaml:"intensity_px"`
}

// Band returns the vertical extent of the band on a canvas of height h
func (b BlurBand) Band(w, h int) image.Rectangle {
	center := b.PositionPct / 100 * float64(h)
	half := b.ThicknessPct / 100 * float64(h) / 2
	return image.Rect(0, int(center-half), w, int(center+half)).Intersect(image.Rect(0, 0, w, h))
}

// Logo is a decoded still image pinned to one corner of the frame
type Logo struct {
	Image  image.Image `yaml:"-"`
	Corner Corner      `yaml:"corner"`
}

// CaptionStyle controls burned-in caption appearance
type CaptionStyle struct {
	Color  string `yaml:"color"`
	Stroke int    `yaml:"stroke"`
}

// Fill returns the parsed caption fill colour, yellow when unset
func (s CaptionStyle) Fill() color.RGBA {
	c, err := parseHexColor(s.Color)
	if err != nil {
		return color.RGBA{R: 255, G: 255, A: 255}
	}
	return c
}

// Parameters is an immutable snapshot of every effect applied to a frame
type Parameters struct {
	Aspect       Aspect         `yaml:"aspect"`
	Freeze       Freeze         `yaml:"freeze"`
	Blur         BlurBand       `yaml:"blur"`
	Logo         Logo           `yaml:"logo"`
	Captions     []captions.Cue `yaml:"-"`
	CaptionStyle CaptionStyle   `yaml:"caption_style"`
}

// Defaults mirrors the Movie Recap editor's initial control state
func Defaults() Parameters {
	return Parameters{
		Aspect: Aspect16x9,
		Freeze: Freeze{
			Enabled:  true,
			Interval: 5 * time.Second,
			Duration: 2 * time.Second,
			MaxZoom:  DefaultMaxZoom,
		},
		Blur: BlurBand{
			Enabled:      true,
			PositionPct:  80,
			ThicknessPct: 15,
			IntensityPx:  20,
		},
		Logo:         Logo{Corner: TopRight},
		CaptionStyle: CaptionStyle{Color: "#FFFF00", Stroke: 6},
	}
}

// New validates p and returns a normalised copy. A freeze duration longer
// than its interval is clamped to the interval.
func New(p Parameters) (*Parameters, error) {
	if _, _, err := p.Aspect.Resolution(); err != nil {
		return nil, err
	}

	if p.Freeze.Enabled {
		if p.Freeze.Interval <= 0 {
			return nil, fmt.Errorf("%w: freeze interval must be positive", ErrInvalidParameters)
		}
		if p.Freeze.Duration <= 0 {
			return nil, fmt.Errorf("%w: freeze duration must be positive", ErrInvalidParameters)
		}
	}
	if p.Freeze.Interval > 0 && p.Freeze.Interval < MinFreezeInterval {
		p.Freeze.Interval = MinFreezeInterval
	}
	if p.Freeze.Interval > 0 && p.Freeze.Duration > p.Freeze.Interval {
		p.Freeze.Duration = p.Freeze.Interval
	}
	if p.Freeze.MaxZoom == 0 {
		p.Freeze.MaxZoom = DefaultMaxZoom
	}
	if p.Freeze.MaxZoom < 1 {
		return nil, fmt.Errorf("%w: max zoom %.2f below 1", ErrInvalidParameters, p.Freeze.MaxZoom)
	}

	if p.Blur.Enabled {
		if err := inRange("blur position", p.Blur.PositionPct, 0, 100); err != nil {
			return nil, err
		}
		if err := inRange("blur thickness", p.Blur.ThicknessPct, 5, 50); err != nil {
			return nil, err
		}
		if err := inRange("blur intensity", p.Blur.IntensityPx, 0, 80); err != nil {
			return nil, err
		}
	}

	if p.Logo.Corner == "" {
		p.Logo.Corner = TopRight
	}
	corner, err := ParseCorner(string(p.Logo.Corner))
	if err != nil {
		return nil, err
	}
	p.Logo.Corner = corner

	if p.CaptionStyle.Color != "" {
		if _, err := parseHexColor(p.CaptionStyle.Color); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
	}
	if p.CaptionStyle.Stroke < 0 {
		return nil, fmt.Errorf("%w: negative caption stroke", ErrInvalidParameters)
	}

	p.Captions = append([]captions.Cue(nil), p.Captions...)
	return &p, nil
}

// Resolution is shorthand for p.Aspect.Resolution without the error
func (p *Parameters) Resolution() (int, int) {
	w, h, _ := p.Aspect.Resolution()
	return w, h
}

// WithCaptions returns a copy of p carrying cues
func (p *Parameters) WithCaptions(cues []captions.Cue) *Parameters {
	cp := *p
	cp.Captions = append([]captions.Cue(nil), cues...)
	return &cp
}

func inRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %.1f outside [%.0f, %.0f]", ErrInvalidParameters, name, v, lo, hi)
	}
	return nil
}

func parseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Validate reports whether p would be accepted by New
func (p Parameters) Validate() error {
	_, err := New(p)
	return err
}
