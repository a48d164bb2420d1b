// Package mediatest provides in-memory media capabilities for tests. Media
// time is derived from the wall clock multiplied by an acceleration factor,
// so a ten second clip can play out in a few milliseconds.
package mediatest

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/kikiluvv/recapcannon/internal/media"
)

// Element is a fake media.VideoElement
type Element struct {
	mu       sync.Mutex
	duration time.Duration
	pos      time.Duration
	anchor   time.Time
	rate     float64
	accel    float64
	playing  bool
	ended    bool
	closed   bool
	loaded   chan struct{}
	frame    image.Image

	playErrs  []error
	seeks     []time.Duration
	playCalls int
}

var _ media.VideoElement = (*Element)(nil)

// NewElement returns a loaded element of the given duration. accel scales
// wall-clock progress; 0 freezes media time.
func NewElement(duration time.Duration, accel float64) *Element {
	e := &Element{
		rate:   1,
		accel:  accel,
		loaded: make(chan struct{}),
	}
	if duration > 0 {
		e.duration = duration
		close(e.loaded)
	}
	return e
}

// SetFrame sets the image returned by Frame
func (e *Element) SetFrame(img image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frame = img
}

// SetAccel changes the wall-clock acceleration, 0 stalls playback
func (e *Element) SetAccel(accel float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	e.accel = accel
}

// FailPlay makes the next len(errs) Play calls fail in order
func (e *Element) FailPlay(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playErrs = append(e.playErrs, errs...)
}

// Seeks returns every position passed to Seek
func (e *Element) Seeks() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.seeks...)
}

// PlayCalls counts Play invocations
func (e *Element) PlayCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playCalls
}

// Closed reports whether Close was called
func (e *Element) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Element) advanceLocked() {
	now := time.Now()
	if e.playing && !e.anchor.IsZero() {
		step := float64(now.Sub(e.anchor)) * e.rate * e.accel
		e.pos += time.Duration(step)
		if e.duration > 0 && e.pos >= e.duration {
			e.pos = e.duration
			e.ended = true
			e.playing = false
		}
	}
	e.anchor = now
}

func (e *Element) Loaded() <-chan struct{} { return e.loaded }

func (e *Element) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *Element) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	return e.pos
}

func (e *Element) Seek(t time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return media.ErrClosed
	}
	e.advanceLocked()
	if t < 0 {
		t = 0
	}
	if e.duration > 0 && t >= e.duration {
		t = e.duration
	}
	e.pos = t
	e.ended = e.duration > 0 && t >= e.duration
	e.seeks = append(e.seeks, t)
	return nil
}

func (e *Element) PlaybackRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *Element) SetPlaybackRate(rate float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	e.rate = rate
	return nil
}

func (e *Element) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.playCalls++
	if e.closed {
		return media.ErrClosed
	}
	if len(e.playErrs) > 0 {
		err := e.playErrs[0]
		e.playErrs = e.playErrs[1:]
		return err
	}

	e.advanceLocked()
	if e.ended {
		e.pos = 0
		e.ended = false
	}
	e.playing = true
	return nil
}

func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	e.playing = false
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	return !e.playing
}

func (e *Element) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	return e.ended
}

func (e *Element) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration > 0 && !e.closed
}

func (e *Element) Frame() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

func (e *Element) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.playing = false
	return nil
}
