package effects

import "time"

const (
	// MinFreezeInterval floors the freeze cycle so the modulo never degenerates
	MinFreezeInterval = 100 * time.Millisecond
	// DefaultMaxZoom is the scale reached at the end of a freeze window
	DefaultMaxZoom = 1.05
)

// Freeze describes the periodic freeze-zoom effect. Every Interval, the
// frame zooms linearly from 1 to MaxZoom over Duration.
type Freeze struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Duration time.Duration `yaml:"duration"`
	MaxZoom  float64       `yaml:"max_zoom"`
}

// At returns the zoom scale at elapsed and whether the freeze window is active
func (f Freeze) At(elapsed time.Duration) (float64, bool) {
	if !f.Enabled || f.Duration <= 0 {
		return 1, false
	}
	interval := f.Interval
	if interval < MinFreezeInterval {
		interval = MinFreezeInterval
	}
	if elapsed < 0 {
		elapsed = 0
	}

	cycle := elapsed % interval
	if cycle >= f.Duration {
		return 1, false
	}

	zoom := f.MaxZoom
	if zoom == 0 {
		zoom = DefaultMaxZoom
	}
	progress := float64(cycle) / float64(f.Duration)
	return 1 + progress*(zoom-1), true
}

// Frozen reports whether the freeze window is active at elapsed
func (f Freeze) Frozen(elapsed time.Duration) bool {
	_, frozen := f.At(elapsed)
	return frozen
}
