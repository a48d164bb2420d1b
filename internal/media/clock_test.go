package media

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeNow is a manually advanced wall clock
type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestClock(d time.Duration) (*Clock, *fakeNow) {
	wall := &fakeNow{t: time.Unix(1000, 0)}
	c := NewClock(d)
	c.now = wall.now
	return c, wall
}

func TestClockAdvancesAtRate(t *testing.T) {
	c, wall := newTestClock(10 * time.Second)
	ctx := context.Background()

	select {
	case <-c.Loaded():
	default:
		t.Fatal("clock with a duration should be loaded")
	}

	if err := c.SetPlaybackRate(2); err != nil {
		t.Fatal(err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatal(err)
	}
	wall.advance(time.Second)
	if got := c.CurrentTime(); got != 2*time.Second {
		t.Errorf("CurrentTime = %v, want 2s", got)
	}

	// changing rate keeps the position
	c.SetPlaybackRate(0.5)
	wall.advance(2 * time.Second)
	if got := c.CurrentTime(); got != 3*time.Second {
		t.Errorf("CurrentTime = %v, want 3s", got)
	}

	c.Pause()
	wall.advance(time.Hour)
	if got := c.CurrentTime(); got != 3*time.Second || !c.Paused() {
		t.Errorf("paused clock moved to %v", got)
	}
}

func TestClockEndsAndRestarts(t *testing.T) {
	c, wall := newTestClock(2 * time.Second)
	ctx := context.Background()

	c.Play(ctx)
	wall.advance(5 * time.Second)
	if !c.Ended() || !c.Paused() || c.CurrentTime() != 2*time.Second {
		t.Errorf("clock should stop at the end, at %v", c.CurrentTime())
	}

	c.Play(ctx)
	if got := c.CurrentTime(); got != 0 {
		t.Errorf("replay started at %v", got)
	}
}

func TestClockSeekClamps(t *testing.T) {
	c, _ := newTestClock(5 * time.Second)

	c.Seek(-time.Second)
	if got := c.CurrentTime(); got != 0 {
		t.Errorf("seek below zero = %v", got)
	}
	c.Seek(time.Minute)
	if got := c.CurrentTime(); got != 5*time.Second {
		t.Errorf("seek past end = %v", got)
	}
}

func TestClockErrors(t *testing.T) {
	empty, _ := newTestClock(0)
	if empty.Ready() {
		t.Error("clock without duration should not be ready")
	}
	if err := empty.Play(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Play = %v, want ErrNotReady", err)
	}

	c, _ := newTestClock(time.Second)
	if err := c.SetPlaybackRate(0); err == nil {
		t.Error("zero rate should be rejected")
	}
	c.Close()
	if err := c.Seek(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Seek after Close = %v", err)
	}
	if c.Ready() {
		t.Error("closed clock should not be ready")
	}
}
