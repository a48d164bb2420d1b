// Package avsync keeps a narration audio element aligned with a video
// element when the two play at independent speed multipliers.
package avsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/media"
)

// Track names one of the two synchronised elements
type Track int

const (
	Video Track = iota
	Audio
)

func (t Track) String() string {
	if t == Audio {
		return "audio"
	}
	return "video"
}

const (
	// DefaultDriftThreshold is the audio drift tolerated before a hard seek
	DefaultDriftThreshold = 300 * time.Millisecond
	// DefaultWatchInterval matches the media timeupdate cadence
	DefaultWatchInterval = 250 * time.Millisecond
)

var (
	// ErrNoDuration is returned when a duration-dependent operation runs
	// before both elements have reported metadata
	ErrNoDuration = errors.New("track duration unknown")
	// ErrInvalidSpeed is returned for non-positive or non-finite multipliers
	ErrInvalidSpeed = errors.New("speed multiplier must be positive and finite")
	// ErrNoAudio is returned for audio operations without an audio element
	ErrNoAudio = errors.New("no audio track attached")
)

// Controller maps time between a video and an optional audio element:
// audioTime = (videoTime / videoSpeed) * audioSpeed.
type Controller struct {
	mu      sync.Mutex
	video   media.Element
	audio   media.Element
	speeds  [2]float64
	playing bool

	DriftThreshold time.Duration
	WatchInterval  time.Duration

	logger zerolog.Logger
}

// NewController creates a controller. audio may be nil.
func NewController(video, audio media.Element, logger zerolog.Logger) *Controller {
	return &Controller{
		video:          video,
		audio:          audio,
		speeds:         [2]float64{1, 1},
		DriftThreshold: DefaultDriftThreshold,
		WatchInterval:  DefaultWatchInterval,
		logger:         logger.With().Str("component", "avsync").Logger(),
	}
}

// SetAudio attaches or replaces the audio element
func (c *Controller) SetAudio(audio media.Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = audio
	if audio != nil {
		_ = audio.SetPlaybackRate(c.speeds[Audio])
	}
}

// Speed returns the multiplier of track
func (c *Controller) Speed(track Track) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speeds[track]
}

// SetSpeed changes the multiplier of track and applies it to the element
func (c *Controller) SetSpeed(track Track, m float64) error {
	if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.speeds[track] = m
	if el := c.element(track); el != nil {
		if err := el.SetPlaybackRate(m); err != nil {
			return fmt.Errorf("set %s rate: %w", track, err)
		}
	}
	return nil
}

// MapTime converts a position on track from into the matching position on
// track to, i.e. (t / speed(from)) * speed(to)
func (c *Controller) MapTime(t time.Duration, from, to Track) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mapTime(t, c.speeds[from], c.speeds[to])
}

func mapTime(t time.Duration, sFrom, sTo float64) time.Duration {
	if sFrom <= 0 {
		return t
	}
	return time.Duration(math.Round(float64(t) / sFrom * sTo))
}

// Seek moves the video to t and the audio to its synchronised position
func (c *Controller) Seek(t time.Duration) error {
	if t < 0 {
		t = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.video.Seek(t); err != nil {
		return fmt.Errorf("seek video: %w", err)
	}
	return c.syncAudioLocked(t)
}

func (c *Controller) syncAudioLocked(videoTime time.Duration) error {
	if c.audio == nil {
		return nil
	}
	at := mapTime(videoTime, c.speeds[Video], c.speeds[Audio])
	if d := c.audio.Duration(); d > 0 && at > d {
		at = d
	}
	if err := c.audio.Seek(at); err != nil {
		return fmt.Errorf("seek audio: %w", err)
	}
	return nil
}

// Play aligns the audio to the video and starts both
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.audio != nil {
		if err := c.syncAudioLocked(c.video.CurrentTime()); err != nil {
			return err
		}
		_ = c.audio.SetPlaybackRate(c.speeds[Audio])
		if err := c.audio.Play(ctx); err != nil {
			// narration failing to start must not block the picture
			c.logger.Warn().Err(err).Msg("audio play rejected")
		}
	}

	_ = c.video.SetPlaybackRate(c.speeds[Video])
	if err := c.video.Play(ctx); err != nil {
		if c.audio != nil {
			c.audio.Pause()
		}
		return fmt.Errorf("play video: %w", err)
	}

	c.playing = true
	return nil
}

// Pause stops both elements
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.video.Pause()
	if c.audio != nil {
		c.audio.Pause()
	}
	c.playing = false
}

// Playing reports whether Play was called more recently than Pause
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// OutputDuration is the track's duration after its speed multiplier
func (c *Controller) OutputDuration(track Track) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputDurationLocked(track)
}

func (c *Controller) outputDurationLocked(track Track) (time.Duration, error) {
	el := c.element(track)
	if el == nil {
		return 0, ErrNoAudio
	}
	d := el.Duration()
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoDuration, track)
	}
	return time.Duration(float64(d) / c.speeds[track]), nil
}

// AutoSync solves for the speed of track that makes its output duration
// equal the other track's current output duration, applies it and returns it
func (c *Controller) AutoSync(track Track) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.audio == nil {
		return 0, ErrNoAudio
	}

	other := Audio
	if track == Audio {
		other = Video
	}

	this := c.element(track).Duration()
	if this <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoDuration, track)
	}
	otherOut, err := c.outputDurationLocked(other)
	if err != nil {
		return 0, err
	}

	target := float64(this) / float64(otherOut)
	c.speeds[track] = target
	if err := c.element(track).SetPlaybackRate(target); err != nil {
		return 0, fmt.Errorf("set %s rate: %w", track, err)
	}

	c.logger.Debug().
		Str("track", track.String()).
		Float64("speed", target).
		Msg("auto-synced track duration")

	return target, nil
}

// Correct performs one drift check, hard-seeking the audio when it has
// wandered more than DriftThreshold from its expected position. It reports
// whether a correction was made.
func (c *Controller) Correct() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing || c.audio == nil {
		return false, nil
	}
	if c.video.Ended() {
		c.audio.Pause()
		c.playing = false
		return false, nil
	}

	expected := mapTime(c.video.CurrentTime(), c.speeds[Video], c.speeds[Audio])
	actual := c.audio.CurrentTime()

	drift := actual - expected
	if drift < 0 {
		drift = -drift
	}
	if drift <= c.DriftThreshold {
		return false, nil
	}

	if err := c.audio.Seek(expected); err != nil {
		return false, fmt.Errorf("correct audio drift: %w", err)
	}

	c.logger.Debug().
		Dur("expected", expected).
		Dur("actual", actual).
		Msg("corrected audio drift")

	return true, nil
}

// Watch runs Correct every WatchInterval until ctx is cancelled
func (c *Controller) Watch(ctx context.Context) error {
	ticker := time.NewTicker(c.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.Correct(); err != nil {
				c.logger.Warn().Err(err).Msg("drift correction failed")
			}
		}
	}
}

func (c *Controller) element(track Track) media.Element {
	if track == Audio {
		return c.audio
	}
	return c.video
}

// RoundSpeed rounds a multiplier to four decimals for display and entry
func RoundSpeed(m float64) float64 {
	return math.Round(m*1e4) / 1e4
}
