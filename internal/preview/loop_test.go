package preview

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/effects"
	"github.com/kikiluvv/recapcannon/internal/media/mediatest"
)

type recordingDisplay struct {
	mu     sync.Mutex
	cw, ch int
	frames []*image.RGBA
	sizes  [][2]int
}

func (d *recordingDisplay) ContainerSize() (int, int) { return d.cw, d.ch }

func (d *recordingDisplay) Present(img *image.RGBA, w, h int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, img)
	d.sizes = append(d.sizes, [2]int{w, h})
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func paramsFor(t *testing.T, aspect effects.Aspect, freeze bool) func() *effects.Parameters {
	t.Helper()
	p := effects.Defaults()
	p.Aspect = aspect
	p.Freeze.Enabled = freeze
	p.Blur.Enabled = false
	params, err := effects.New(p)
	if err != nil {
		t.Fatal(err)
	}
	return func() *effects.Parameters { return params }
}

func grey(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func TestFitDisplay(t *testing.T) {
	tests := []struct {
		w, h, cw, ch int
		dw, dh       int
	}{
		{854, 480, 1280, 720, 1280, 719},
		{480, 854, 400, 400, 224, 400},
		{480, 480, 300, 200, 200, 200},
		{480, 600, 0, 600, 0, 0},
	}
	for _, tt := range tests {
		dw, dh := FitDisplay(tt.w, tt.h, tt.cw, tt.ch)
		if dw != tt.dw || dh != tt.dh {
			t.Errorf("FitDisplay(%d,%d,%d,%d) = %d,%d; want %d,%d", tt.w, tt.h, tt.cw, tt.ch, dw, dh, tt.dw, tt.dh)
		}
		if dw > tt.cw || dh > tt.ch {
			t.Errorf("FitDisplay overflowed container")
		}
	}
}

func TestTickSkipsUntilReady(t *testing.T) {
	display := &recordingDisplay{cw: 800, ch: 600}
	loop := NewLoop(nil, paramsFor(t, effects.Aspect16x9, false), display, zerolog.Nop())

	if loop.Tick() {
		t.Error("ticked without a video")
	}

	pending := mediatest.NewElement(0, 0)
	loop.SetVideo(pending)
	if loop.Tick() {
		t.Error("ticked before metadata")
	}

	undecoded := mediatest.NewElement(time.Minute, 0)
	loop.SetVideo(undecoded)
	if loop.Tick() {
		t.Error("ticked before the first frame")
	}
	if display.count() != 0 {
		t.Error("presented frames while not ready")
	}
}

func TestTickRendersCanonicalResolution(t *testing.T) {
	display := &recordingDisplay{cw: 1000, ch: 1000}
	video := mediatest.NewElement(time.Minute, 0)
	video.SetFrame(grey(320, 180))

	loop := NewLoop(video, paramsFor(t, effects.Aspect9x16, false), display, zerolog.Nop())
	if !loop.Tick() {
		t.Fatal("Tick() = false")
	}

	img := display.frames[0]
	if img.Rect.Dx() != 480 || img.Rect.Dy() != 854 {
		t.Errorf("canvas = %v, want 480x854 regardless of container", img.Rect)
	}
	if got := display.sizes[0]; got != [2]int{562, 1000} {
		t.Errorf("display size = %v", got)
	}
}

func TestTickRendersWhilePaused(t *testing.T) {
	display := &recordingDisplay{cw: 854, ch: 480}
	video := mediatest.NewElement(time.Minute, 0)
	video.SetFrame(grey(854, 480))

	loop := NewLoop(video, paramsFor(t, effects.Aspect16x9, true), display, zerolog.Nop())

	// paused at 1s sits inside the first freeze window, so the preview badge shows
	_ = video.Seek(time.Second)
	if !loop.Tick() {
		t.Fatal("paused element not rendered")
	}
	if c := display.frames[0].RGBAAt(2, 240); c.B <= c.R {
		t.Errorf("edge pixel = %v, want preview freeze border", c)
	}

	_ = video.Seek(3 * time.Second)
	loop.Tick()
	if c := display.frames[1].RGBAAt(2, 240); c.B != c.R {
		t.Errorf("edge pixel after seek = %v, want plain frame", c)
	}
	if display.frames[0] == display.frames[1] {
		t.Error("consecutive frames share a buffer")
	}
	if c := display.frames[0].RGBAAt(2, 240); c.B <= c.R {
		t.Error("earlier frame overwritten by the next tick")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	display := &recordingDisplay{cw: 854, ch: 480}
	video := mediatest.NewElement(time.Minute, 0)
	video.SetFrame(grey(64, 36))

	loop := NewLoop(video, paramsFor(t, effects.Aspect16x9, false), display, zerolog.Nop())
	loop.Interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := loop.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v", err)
	}
	if display.count() == 0 {
		t.Error("no frames presented")
	}
}
