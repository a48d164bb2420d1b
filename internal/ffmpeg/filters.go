package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// atempo accepts factors in [0.5, 2] on every ffmpeg release
const (
	minTempo = 0.5
	maxTempo = 2.0
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, "fps="+formatFloat(fps))
	return fb
}

// Tempo changes audio speed without changing pitch. Factors outside the
// single-filter range are split into a chain of atempo filters.
func (fb *FilterBuilder) Tempo(rate float64) *FilterBuilder {
	if rate <= 0 || rate == 1 {
		return fb
	}
	for rate > maxTempo {
		fb.filters = append(fb.filters, "atempo="+formatFloat(maxTempo))
		rate /= maxTempo
	}
	for rate < minTempo {
		fb.filters = append(fb.filters, "atempo="+formatFloat(minTempo))
		rate /= minTempo
	}
	if rate != 1 {
		fb.filters = append(fb.filters, "atempo="+formatFloat(rate))
	}
	return fb
}

// Resample converts audio to a fixed rate and channel layout
func (fb *FilterBuilder) Resample(sampleRate, channels int) *FilterBuilder {
	if sampleRate <= 0 {
		return fb
	}
	layout := "stereo"
	if channels == 1 {
		layout = "mono"
	}
	fb.filters = append(fb.filters,
		"aresample="+strconv.Itoa(sampleRate),
		"aformat=sample_fmts=s16:channel_layouts="+layout)
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
