// Package preview drives the on-screen preview: every display refresh it
// renders the live element's current frame at the preset's canonical
// resolution and hands it to a display that scales it to fit.
package preview

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/compositor"
	"github.com/kikiluvv/recapcannon/internal/effects"
	"github.com/kikiluvv/recapcannon/internal/media"
)

// DefaultInterval approximates one 60Hz display refresh
const DefaultInterval = 16 * time.Millisecond

// Display shows preview frames
type Display interface {
	// ContainerSize is the space available for the preview, in pixels
	ContainerSize() (w, h int)
	// Present shows img scaled to w x h. img stays valid until the second
	// following Present call.
	Present(img *image.RGBA, w, h int)
}

// Loop renders the preview. The pixel buffer always stays at the canonical
// resolution; only the on-screen size follows the container.
type Loop struct {
	Interval time.Duration

	mu      sync.Mutex
	video   media.VideoElement
	params  func() *effects.Parameters
	display Display
	canvas  *compositor.Canvas
	buffers [2]*image.RGBA
	next    int
	logger  zerolog.Logger
}

// NewLoop creates a preview loop. video may be nil until a file is loaded.
func NewLoop(video media.VideoElement, params func() *effects.Parameters, display Display, logger zerolog.Logger) *Loop {
	return &Loop{
		Interval: DefaultInterval,
		video:    video,
		params:   params,
		display:  display,
		canvas:   compositor.NewCanvas(0, 0),
		logger:   logger.With().Str("component", "preview").Logger(),
	}
}

// SetVideo swaps the live element
func (l *Loop) SetVideo(video media.VideoElement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.video = video
}

// Run ticks until ctx is cancelled. It renders whether or not the element
// is playing so that seeking while paused still updates the picture.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.logger.Debug().Dur("interval", l.Interval).Msg("preview loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug().Msg("preview loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick renders and presents one frame. It reports false, without error,
// when there is nothing to show yet.
func (l *Loop) Tick() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.video == nil || !l.video.Ready() {
		return false
	}
	frame := l.video.Frame()
	if frame == nil || frame.Bounds().Empty() {
		return false
	}
	p := l.params()
	if p == nil {
		return false
	}

	w, h := p.Resolution()
	l.canvas.Resize(w, h)
	at := l.video.CurrentTime()
	l.canvas.Draw(func(dst *image.RGBA) {
		compositor.RenderFrame(dst, frame, at, p, compositor.Preview)
	})

	buf := l.canvas.Snapshot(l.buffers[l.next])
	l.buffers[l.next] = buf
	l.next = 1 - l.next

	cw, ch := l.display.ContainerSize()
	dw, dh := FitDisplay(w, h, cw, ch)
	l.display.Present(buf, dw, dh)
	return true
}

// FitDisplay scales a w x h canvas to fit inside a cw x ch container,
// flooring to whole pixels
func FitDisplay(w, h, cw, ch int) (int, int) {
	if w <= 0 || h <= 0 || cw <= 0 || ch <= 0 {
		return 0, 0
	}
	if cw*h <= ch*w {
		return cw, h * cw / w
	}
	return w * ch / h, ch
}
