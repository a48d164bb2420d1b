package effects

import (
	"fmt"
	"strings"
)

// Aspect is an output aspect-ratio preset
type Aspect string

const (
	Aspect16x9 Aspect = "16:9"
	Aspect9x16 Aspect = "9:16"
	Aspect1x1  Aspect = "1:1"
	Aspect4x5  Aspect = "4:5"
)

// Aspects lists presets in editor order
var Aspects = []Aspect{Aspect16x9, Aspect9x16, Aspect1x1, Aspect4x5}

// Resolution returns the canonical output size. Sizes stay in the 480p
// class regardless of how large the editing surface is drawn.
func (a Aspect) Resolution() (int, int, error) {
	switch a {
	case Aspect16x9:
		return 854, 480, nil
	case Aspect9x16:
		return 480, 854, nil
	case Aspect1x1:
		return 480, 480, nil
	case Aspect4x5:
		return 480, 600, nil
	}
	return 0, 0, fmt.Errorf("%w: unknown aspect ratio %q", ErrInvalidParameters, string(a))
}

// ParseAspect accepts "16:9", "16x9" and friends
func ParseAspect(s string) (Aspect, error) {
	a := Aspect(strings.ReplaceAll(strings.TrimSpace(s), "x", ":"))
	if _, _, err := a.Resolution(); err != nil {
		return "", err
	}
	return a, nil
}

// Corner pins the logo to one corner of the frame
type Corner string

const (
	TopLeft     Corner = "top-left"
	TopRight    Corner = "top-right"
	BottomLeft  Corner = "bottom-left"
	BottomRight Corner = "bottom-right"
)

// ParseCorner accepts "Top Right", "top-right", "top_right" and "topright"
func ParseCorner(s string) (Corner, error) {
	key := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(s))
	switch key {
	case "topleft":
		return TopLeft, nil
	case "topright":
		return TopRight, nil
	case "bottomleft":
		return BottomLeft, nil
	case "bottomright":
		return BottomRight, nil
	}
	return "", fmt.Errorf("%w: unknown logo corner %q", ErrInvalidParameters, s)
}

// Right reports whether the corner is on the right edge
func (c Corner) Right() bool { return c == TopRight || c == BottomRight }

// Bottom reports whether the corner is on the bottom edge
func (c Corner) Bottom() bool { return c == BottomLeft || c == BottomRight }
