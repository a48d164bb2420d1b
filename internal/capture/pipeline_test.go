package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/blobstore"
	"github.com/kikiluvv/recapcannon/internal/clips"
	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/effects"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/internal/media/mediatest"
)

type fakeHost struct {
	mu      sync.Mutex
	video   *mediatest.Element
	graph   *mediatest.AudioGraph
	rec     *mediatest.Recorder
	support mediatest.Support
	opened  int
	format  container.Format
}

func (h *fakeHost) OpenVideo(ctx context.Context, src media.Source) (media.VideoElement, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened++
	return h.video, nil
}

func (h *fakeHost) NewAudioGraph(ctx context.Context, sampleRate int) (media.AudioGraph, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.graph, nil
}

func (h *fakeHost) Support() container.Support {
	return h.support
}

func (h *fakeHost) NewRecorder(stream media.Stream, format container.Format) (media.Recorder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.format = format
	return h.rec, nil
}

// reset swaps in fresh single-use media for another run
func (h *fakeHost) reset(duration time.Duration, accel float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.video = newVideo(duration, accel)
	h.graph = mediatest.NewAudioGraph()
	h.rec = mediatest.NewRecorder("video/webm")
}

func newVideo(duration time.Duration, accel float64) *mediatest.Element {
	v := mediatest.NewElement(duration, accel)
	frame := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for i := range frame.Pix {
		frame.Pix[i] = 0x80
	}
	v.SetFrame(frame)
	return v
}

func testConfig() config.CaptureConfig {
	cfg := config.Default().Capture
	cfg.Tick = time.Millisecond
	cfg.Timeslice = 5 * time.Millisecond
	cfg.Grace = 5 * time.Millisecond
	cfg.MetadataWait = 50 * time.Millisecond
	cfg.FPS = 500
	cfg.StallTicks = 3
	cfg.StallTimeout = time.Second
	return cfg
}

type fixture struct {
	host     *fakeHost
	store    *blobstore.Store
	pipeline *Pipeline

	mu       sync.Mutex
	states   []State
	progress []int
}

func newFixture(t *testing.T, cfg config.CaptureConfig, duration time.Duration, accel float64, sink media.Sink) *fixture {
	t.Helper()

	host := &fakeHost{support: mediatest.Support{"video/webm": true}}
	host.reset(duration, accel)

	store := blobstore.NewStore(zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		host:     host,
		store:    store,
		pipeline: New(host, store, sink, cfg, zerolog.Nop()),
	}
	f.pipeline.OnState(func(s State) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.states = append(f.states, s)
	})
	f.pipeline.OnProgress(func(p int) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.progress = append(f.progress, p)
	})
	return f
}

func plainParams(t *testing.T) *effects.Parameters {
	t.Helper()
	p := effects.Defaults()
	p.Freeze.Enabled = false
	p.Blur.Enabled = false
	params, err := effects.New(p)
	if err != nil {
		t.Fatal(err)
	}
	return params
}

func videoJob(t *testing.T, speed float64) Job {
	return Job{
		Video:      media.Source{Path: "in.mp4", Size: 1 << 20, MimeType: "video/mp4"},
		Params:     plainParams(t),
		VideoSpeed: speed,
	}
}

func requireKind(t *testing.T, err error, kind Kind, target error) {
	t.Helper()
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not *capture.Error", err)
	}
	if ce.Kind != kind {
		t.Errorf("Kind = %q, want %q (%v)", ce.Kind, kind, err)
	}
	if target != nil && !errors.Is(err, target) {
		t.Errorf("error %v does not wrap %v", err, target)
	}
}

func TestRunEndToEnd(t *testing.T) {
	for _, speed := range []float64{1, 2, 0.5} {
		t.Run("", func(t *testing.T) {
			f := newFixture(t, testConfig(), 10*time.Second, 200, nil)

			res, err := f.pipeline.Run(context.Background(), videoJob(t, speed))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			want := time.Duration(float64(10*time.Second) / speed)
			if res.Duration != want {
				t.Errorf("Duration = %v, want %v", res.Duration, want)
			}
			if res.MimeType != "video/webm" || f.host.format.MimeType != "video/webm" {
				t.Errorf("MimeType = %q", res.MimeType)
			}
			if res.Size == 0 || res.Frames == 0 {
				t.Errorf("empty output: size=%d frames=%d", res.Size, res.Frames)
			}
			if res.Truncated {
				t.Error("unexpected truncation")
			}
			if _, err := f.store.Resolve(res.URL); err != nil {
				t.Errorf("result URL not live: %v", err)
			}

			if got := f.pipeline.State(); got != Complete {
				t.Errorf("State = %v, want complete", got)
			}
			if !f.host.video.Closed() || !f.host.graph.Closed() || !f.host.rec.Stopped() {
				t.Error("resources not released")
			}
			if rate := f.host.video.PlaybackRate(); rate != speed {
				t.Errorf("playback rate = %v, want %v", rate, speed)
			}

			f.mu.Lock()
			defer f.mu.Unlock()
			wantStates := []State{Preparing, Recording, Finalizing, Complete}
			if len(f.states) != len(wantStates) {
				t.Fatalf("states = %v", f.states)
			}
			for i := range wantStates {
				if f.states[i] != wantStates[i] {
					t.Errorf("states = %v, want %v", f.states, wantStates)
					break
				}
			}
			if len(f.progress) == 0 || f.progress[0] != 1 || f.progress[len(f.progress)-1] != 100 {
				t.Errorf("progress = %v", f.progress)
			}
			for i := 1; i < len(f.progress); i++ {
				if f.progress[i] < f.progress[i-1] {
					t.Fatalf("progress not monotonic: %v", f.progress)
				}
			}
		})
	}
}

func TestRunEmptyRecording(t *testing.T) {
	f := newFixture(t, testConfig(), 2*time.Second, 200, nil)
	f.host.rec.Silent = true

	res, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	requireKind(t, err, KindEmpty, ErrEmptyRecording)

	if f.pipeline.State() != Failed {
		t.Errorf("State = %v", f.pipeline.State())
	}
	if f.store.Len() != 0 {
		t.Error("empty recording registered a URL")
	}
	if !errors.Is(f.pipeline.Err(), ErrEmptyRecording) {
		t.Errorf("Err() = %v", f.pipeline.Err())
	}
}

func TestRunStallTimeoutTruncates(t *testing.T) {
	cfg := testConfig()
	cfg.StallTicks = 1000
	cfg.StallTimeout = 30 * time.Millisecond

	f := newFixture(t, cfg, 10*time.Second, 0, nil)
	res, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Truncated {
		t.Error("expected truncated result")
	}
	if res.Duration != 0 {
		t.Errorf("Duration = %v, want 0 for playback that never moved", res.Duration)
	}
}

func TestRunStallTimeoutWithoutData(t *testing.T) {
	cfg := testConfig()
	cfg.StallTicks = 1000
	cfg.StallTimeout = 30 * time.Millisecond

	f := newFixture(t, cfg, 10*time.Second, 0, nil)
	f.host.rec.Silent = true

	_, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	requireKind(t, err, KindEmpty, ErrEmptyRecording)
	if !errors.Is(err, ErrStallTimeout) {
		t.Errorf("error %v does not wrap ErrStallTimeout", err)
	}
}

func TestRunNudgesStuckPlayback(t *testing.T) {
	cfg := testConfig()
	cfg.StallTicks = 2
	cfg.Nudge = time.Second
	cfg.StallTimeout = 0

	f := newFixture(t, cfg, 5*time.Second, 0, nil)
	res, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Truncated {
		t.Error("nudged playback should complete normally")
	}
	if seeks := f.host.video.Seeks(); len(seeks) < 5 {
		t.Errorf("seeks = %v, want a nudge per stalled second", seeks)
	}
	if f.host.video.PlayCalls() < 2 {
		t.Errorf("PlayCalls = %d, want re-plays while stuck", f.host.video.PlayCalls())
	}
}

func TestRunPlaybackRetry(t *testing.T) {
	blocked := errors.New("autoplay blocked")

	f := newFixture(t, testConfig(), 2*time.Second, 200, nil)
	f.host.video.FailPlay(blocked)
	if _, err := f.pipeline.Run(context.Background(), videoJob(t, 1)); err != nil {
		t.Fatalf("single rejection should be retried: %v", err)
	}

	f.host.reset(2*time.Second, 200)
	f.host.video.FailPlay(blocked, blocked)
	_, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	requireKind(t, err, KindPlayback, ErrPlaybackRejected)
	if !errors.Is(err, blocked) {
		t.Errorf("error %v does not carry the play failure", err)
	}
}

func TestRunRecorderStartRetry(t *testing.T) {
	f := newFixture(t, testConfig(), 2*time.Second, 200, nil)
	f.host.rec.FailStart(errors.New("timeslice unsupported"))

	if _, err := f.pipeline.Run(context.Background(), videoJob(t, 1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := f.host.rec.Timeslices()
	if len(got) != 2 || got[0] != 5*time.Millisecond || got[1] != 0 {
		t.Errorf("Timeslices = %v, want [5ms 0s]", got)
	}
}

func TestRunRejectsTooLarge(t *testing.T) {
	f := newFixture(t, testConfig(), 2*time.Second, 200, nil)

	job := videoJob(t, 1)
	job.Video.Size = 51 << 20

	_, err := f.pipeline.Run(context.Background(), job)
	requireKind(t, err, KindInput, ErrInputTooLarge)
	if f.host.opened != 0 {
		t.Error("oversized input was opened")
	}

	job = videoJob(t, 1)
	job.Audio = &media.Source{Path: "narration.mp3", Size: 60 << 20}
	_, err = f.pipeline.Run(context.Background(), job)
	requireKind(t, err, KindInput, ErrInputTooLarge)
}

func TestRunUnsupportedContainer(t *testing.T) {
	cfg := testConfig()
	cfg.Containers = []string{"video/mp4"}

	f := newFixture(t, cfg, 2*time.Second, 200, nil)
	_, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	requireKind(t, err, KindContainer, container.ErrUnsupportedContainer)

	if !f.host.video.Closed() || !f.host.graph.Closed() {
		t.Error("prepared resources leaked after failure")
	}
}

func TestRunBusyAndCancel(t *testing.T) {
	f := newFixture(t, testConfig(), 10*time.Second, 1, nil)

	job := videoJob(t, 1)
	errc := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Run(context.Background(), job)
		errc <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.pipeline.State() != Recording {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never reached recording")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	requireKind(t, err, KindBusy, ErrBusy)

	if !f.pipeline.Cancel() {
		t.Fatal("Cancel() found no session")
	}

	select {
	case err := <-errc:
		requireKind(t, err, KindCanceled, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}

	if f.pipeline.State() != Failed {
		t.Errorf("State = %v, want failed", f.pipeline.State())
	}
	if !f.host.video.Closed() || !f.host.rec.Stopped() {
		t.Error("cancel did not release resources")
	}
	if f.pipeline.Cancel() {
		t.Error("Cancel() reported a session after completion")
	}

	f.host.reset(time.Second, 200)
	if _, err := f.pipeline.Run(context.Background(), videoJob(t, 1)); err != nil {
		t.Errorf("pipeline not reusable after cancel: %v", err)
	}
}

func TestBeginAdmitsOneSession(t *testing.T) {
	f := newFixture(t, testConfig(), time.Second, 1, nil)

	if !f.pipeline.begin(func() {}) {
		t.Fatal("idle pipeline refused a session")
	}
	// the state flips in the same critical section as the check
	if got := f.pipeline.State(); got != Preparing {
		t.Fatalf("State after begin = %v, want preparing", got)
	}
	if f.pipeline.begin(func() {}) {
		t.Error("second session admitted while preparing")
	}

	f.pipeline.setState(Idle)

	const racers = 32
	var admitted sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		admitted.Add(1)
		go func() {
			defer admitted.Done()
			<-start
			if f.pipeline.begin(func() {}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	admitted.Wait()

	if wins != 1 {
		t.Errorf("%d concurrent sessions admitted, want 1", wins)
	}
}

func TestRunContextDeadline(t *testing.T) {
	f := newFixture(t, testConfig(), 10*time.Second, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.pipeline.Run(ctx, videoJob(t, 1))
	requireKind(t, err, KindCanceled, ErrCanceled)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v does not carry the deadline", err)
	}
}

func TestRunRevokesPreviousURL(t *testing.T) {
	f := newFixture(t, testConfig(), time.Second, 200, nil)

	first, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	if err != nil {
		t.Fatal(err)
	}

	f.host.reset(time.Second, 200)
	second, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.store.Resolve(first.URL); !errors.Is(err, blobstore.ErrRevoked) {
		t.Errorf("first URL still live: %v", err)
	}
	if _, err := f.store.Resolve(second.URL); err != nil {
		t.Errorf("second URL revoked: %v", err)
	}

	_ = f.pipeline.Close()
	if f.store.Len() != 0 {
		t.Error("Close left URLs live")
	}
}

func TestRunRangeAndAudio(t *testing.T) {
	f := newFixture(t, testConfig(), 10*time.Second, 200, nil)

	job := videoJob(t, 2)
	job.Range = &clips.Clip{Start: 2 * time.Second, End: 6 * time.Second}
	job.Audio = &media.Source{Path: "narration.mp3", Size: 1024}
	job.AudioSpeed = 1.5

	res, err := f.pipeline.Run(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if res.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", res.Duration)
	}
	if seeks := f.host.video.Seeks(); len(seeks) == 0 || seeks[0] != 2*time.Second {
		t.Errorf("seeks = %v, want trim start first", seeks)
	}

	conns := f.host.graph.Connections()
	if len(conns) != 1 || conns[0].Source.Path != "narration.mp3" || conns[0].Rate != 1.5 || conns[0].Offset != 0 {
		t.Errorf("connections = %+v", conns)
	}
	if !f.host.graph.Started() && !f.host.graph.Closed() {
		t.Error("audio graph never started")
	}
}

func TestRunKeepSourceAudio(t *testing.T) {
	f := newFixture(t, testConfig(), 10*time.Second, 200, nil)

	job := videoJob(t, 1)
	job.KeepSourceAudio = true
	job.Range = &clips.Clip{Start: 3 * time.Second}

	if _, err := f.pipeline.Run(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	conns := f.host.graph.Connections()
	if len(conns) != 1 || conns[0].Source.Path != "in.mp4" || conns[0].Offset != 3*time.Second {
		t.Errorf("connections = %+v", conns)
	}
}

func TestRunMetadataFallback(t *testing.T) {
	f := newFixture(t, testConfig(), 0, 200, nil)

	job := videoJob(t, 1)
	job.DurationHint = 3 * time.Second

	res, err := f.pipeline.Run(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if res.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want hint 3s", res.Duration)
	}
}

func TestRunDeliversToSink(t *testing.T) {
	var got *media.Output
	sink := media.SinkFunc(func(ctx context.Context, out *media.Output) error {
		got = out
		return nil
	})

	f := newFixture(t, testConfig(), time.Second, 200, sink)
	res, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.URL != res.URL || len(got.Data) == 0 || got.MimeType != "video/webm" {
		t.Errorf("sink received %+v", got)
	}
}

func TestRunSinkFailure(t *testing.T) {
	sink := media.SinkFunc(func(ctx context.Context, out *media.Output) error {
		return errors.New("disk full")
	})

	f := newFixture(t, testConfig(), time.Second, 200, sink)
	_, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	requireKind(t, err, KindSink, nil)
	if f.store.Len() != 0 {
		t.Error("failed delivery left its URL live")
	}
}

type explodingImage struct{}

func (explodingImage) ColorModel() color.Model { return color.RGBAModel }
func (explodingImage) Bounds() image.Rectangle { return image.Rect(0, 0, 16, 9) }
func (explodingImage) At(x, y int) color.Color { panic("corrupt frame") }

func TestRunRecoversCompositingPanic(t *testing.T) {
	f := newFixture(t, testConfig(), 2*time.Second, 200, nil)
	f.host.video.SetFrame(explodingImage{})

	_, err := f.pipeline.Run(context.Background(), videoJob(t, 1))
	requireKind(t, err, KindCompositing, nil)

	if f.pipeline.State() != Failed {
		t.Errorf("State = %v", f.pipeline.State())
	}
	if !f.host.video.Closed() || !f.host.rec.Stopped() {
		t.Error("resources not released after panic")
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total time.Duration
		want        int
	}{
		{0, 10 * time.Second, 1},
		{5 * time.Second, 10 * time.Second, 50},
		{9999 * time.Millisecond, 10 * time.Second, 99},
		{12 * time.Second, 10 * time.Second, 100},
		{time.Second, 0, 1},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%v, %v) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}
