package media

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock is an Element without picture or sound: media time advancing at
// the playback rate over a fixed duration. The editor uses it to keep a
// narration track's timeline aligned with the video preview.
type Clock struct {
	mu       sync.Mutex
	duration time.Duration
	pos      time.Duration
	anchor   time.Time
	rate     float64
	playing  bool
	closed   bool
	loaded   chan struct{}
	now      func() time.Time
}

var _ Element = (*Clock)(nil)

// NewClock returns a paused clock at zero
func NewClock(duration time.Duration) *Clock {
	c := &Clock{
		duration: duration,
		rate:     1,
		loaded:   make(chan struct{}),
		now:      time.Now,
	}
	if duration > 0 {
		close(c.loaded)
	}
	return c
}

// Loaded is closed when the duration is known
func (c *Clock) Loaded() <-chan struct{} {
	return c.loaded
}

// Duration returns the timeline length
func (c *Clock) Duration() time.Duration {
	return c.duration
}

func (c *Clock) timeLocked() time.Duration {
	if !c.playing {
		return c.pos
	}
	t := c.pos + time.Duration(float64(c.now().Sub(c.anchor))*c.rate)
	if t >= c.duration {
		c.pos, c.playing = c.duration, false
		return c.duration
	}
	return t
}

// CurrentTime returns the media time
func (c *Clock) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLocked()
}

// Seek clamps t into the timeline
func (c *Clock) Seek(t time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.pos = min(max(t, 0), c.duration)
	c.anchor = c.now()
	return nil
}

// PlaybackRate returns the rate multiplier
func (c *Clock) PlaybackRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetPlaybackRate changes speed without a jump in media time
func (c *Clock) SetPlaybackRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("playback rate must be positive, got %v", rate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos, c.anchor = c.timeLocked(), c.now()
	c.rate = rate
	return nil
}

// Play starts the clock, from zero when it already reached the end
func (c *Clock) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.duration <= 0 {
		return ErrNotReady
	}
	if c.timeLocked() >= c.duration {
		c.pos = 0
	}
	if !c.playing {
		c.playing, c.anchor = true, c.now()
	}
	return nil
}

// Pause freezes the clock
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = c.timeLocked()
	c.playing = false
}

// Paused reports whether the clock is stopped
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeLocked()
	return !c.playing
}

// Ended reports whether the clock reached the end
func (c *Clock) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration > 0 && c.timeLocked() >= c.duration
}

// Ready reports whether the clock has a duration and is open
func (c *Clock) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration > 0 && !c.closed
}

// Close stops the clock
func (c *Clock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed, c.playing = true, false
	return nil
}
