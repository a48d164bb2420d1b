package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/recapcannon/internal/compositor"
	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/effects"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

// session owns every resource of one Run. release tears all of them down
// and is safe to call at any point.
type session struct {
	id     string
	job    Job
	cfg    config.CaptureConfig
	logger zerolog.Logger

	params     *effects.Parameters
	videoSpeed float64
	audioSpeed float64

	canvas *compositor.Canvas
	graph  media.AudioGraph
	video  media.VideoElement
	rec    media.Recorder
	format container.Format

	start, end time.Duration
	truncated  bool
	// reached is the media time recording stopped at when truncated
	reached time.Duration

	streamCancel context.CancelFunc
	stream       *errgroup.Group

	mu       sync.Mutex
	chunks   [][]byte
	written  int
	released bool
}

func (s *session) prepare(ctx context.Context, host Host) error {
	job := s.job

	if limit := s.cfg.MaxInputBytes; limit > 0 {
		for _, src := range []*media.Source{&job.Video, job.Audio} {
			if src != nil && src.Size > limit {
				return newError(KindInput, ErrInputTooLarge,
					"Video is too large (Max %s). Please compress or trim it first", util.HumanBytes(limit))
			}
		}
	}

	s.params = job.Params
	if s.params == nil {
		p, err := effects.New(effects.Defaults())
		if err != nil {
			return newError(KindPrepare, err, "Invalid effect settings")
		}
		s.params = p
	}

	s.videoSpeed, s.audioSpeed = orOne(job.VideoSpeed), orOne(job.AudioSpeed)
	if s.videoSpeed <= 0 || s.audioSpeed <= 0 {
		return newError(KindPrepare, fmt.Errorf("speeds %v/%v", s.videoSpeed, s.audioSpeed), "Speed multipliers must be positive")
	}

	w, h := s.params.Resolution()
	s.canvas = compositor.NewCanvas(w, h)

	graph, err := host.NewAudioGraph(ctx, s.cfg.SampleRate)
	if err != nil {
		return newError(KindPrepare, err, "Could not create the audio graph")
	}
	s.graph = graph

	video, err := host.OpenVideo(ctx, job.Video)
	if err != nil {
		return newError(KindPrepare, err, "Could not open the video")
	}
	s.video = video

	total, err := s.waitMetadata(ctx)
	if err != nil {
		return err
	}
	s.start, s.end = job.Range.Resolve(total)
	if s.end <= s.start {
		return newError(KindInput, fmt.Errorf("range %v-%v", s.start, s.end), "The selected range is empty")
	}

	switch {
	case job.Audio != nil:
		// narration starts with the recording, like the editor preview
		err = graph.Connect(ctx, *job.Audio, s.audioSpeed, 0)
	case job.KeepSourceAudio:
		err = graph.Connect(ctx, job.Video, s.videoSpeed, s.start)
	}
	if err != nil {
		return newError(KindPrepare, err, "Could not load the audio track")
	}

	format, err := container.Select(host.Support(), s.cfg.Containers)
	if err != nil {
		return newError(KindContainer, err, "No supported output format")
	}
	s.format = format

	stream := media.Stream{Canvas: s.canvas, FPS: s.cfg.FPS, Audio: graph.Destination()}
	rec, err := host.NewRecorder(stream, format)
	if err != nil {
		return newError(KindRecorder, err, "Could not create the recorder")
	}
	rec.OnData(s.addChunk)
	s.rec = rec

	s.logger.Info().
		Int("width", w).
		Int("height", h).
		Str("mime", format.MimeType).
		Dur("start", s.start).
		Dur("end", s.end).
		Float64("video_speed", s.videoSpeed).
		Bool("audio", stream.Audio != nil).
		Msg("capture prepared")

	return nil
}

// waitMetadata waits a bounded time for the element's duration. Without it
// the job hint is used, then one second.
func (s *session) waitMetadata(ctx context.Context) (time.Duration, error) {
	timer := time.NewTimer(s.cfg.MetadataWait)
	defer timer.Stop()

	select {
	case <-s.video.Loaded():
	case <-timer.C:
		s.logger.Warn().Dur("waited", s.cfg.MetadataWait).Msg("metadata wait timed out")
	case <-ctx.Done():
		return 0, canceled(ctx)
	}

	if d := s.video.Duration(); d > 0 {
		return d, nil
	}
	if s.job.DurationHint > 0 {
		return s.job.DurationHint, nil
	}
	return time.Second, nil
}

func (s *session) record(ctx context.Context, progress func(int)) error {
	if err := s.rec.Start(s.cfg.Timeslice); err != nil {
		s.logger.Warn().Err(err).Msg("recorder start failed, retrying without timeslice")
		if err := s.rec.Start(0); err != nil {
			return newError(KindRecorder, err, "Could not start the recorder")
		}
	}

	if err := s.video.SetPlaybackRate(s.videoSpeed); err != nil {
		return newError(KindPlayback, err, "Could not set the playback speed")
	}
	if s.start > 0 {
		if err := s.video.Seek(s.start); err != nil {
			return newError(KindPlayback, err, "Could not seek to the trim start")
		}
	}

	if err := s.video.Play(ctx); err != nil {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		s.logger.Warn().Err(err).Msg("playback rejected, retrying")
		if err := s.video.Play(ctx); err != nil {
			if ctx.Err() != nil {
				return canceled(ctx)
			}
			return newError(KindPlayback, fmt.Errorf("%w: %w", ErrPlaybackRejected, err), "Generation Failed: playback was blocked")
		}
	}

	if s.graph.Destination() != nil {
		if err := s.graph.Start(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("audio playback blocked")
		}
	}

	s.startStream(ctx)

	if err := s.drive(ctx, progress); err != nil {
		return err
	}

	s.stopStream()
	s.graph.Pause()
	if err := s.rec.Stop(); err != nil {
		return newError(KindRecorder, err, "Could not stop the recorder")
	}
	return nil
}

// drive is the per-tick loop: keep playback moving, render, report progress
func (s *session) drive(ctx context.Context, progress func(int)) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	lastTime := -time.Second
	lastAdvance := time.Now()
	stuck := 0
	reported := 1
	span := s.end - s.start

	for {
		select {
		case <-ctx.Done():
			return canceled(ctx)
		case <-ticker.C:
		}

		ended := s.video.Ended()
		if s.video.Paused() && !ended && s.video.Ready() {
			_ = s.video.Play(ctx)
		}

		cur := s.video.CurrentTime()
		if delta := cur - lastTime; delta < time.Millisecond && delta > -time.Millisecond && !ended {
			stuck++
			if stuck > s.cfg.StallTicks {
				s.logger.Debug().Dur("at", cur).Msg("video stuck, nudging")
				_ = s.video.Play(ctx)
				if s.video.Ready() {
					cur = min(cur+s.cfg.Nudge, s.end)
					_ = s.video.Seek(cur)
				}
				stuck = 0
			}
			if s.cfg.StallTimeout > 0 && time.Since(lastAdvance) > s.cfg.StallTimeout {
				s.logger.Warn().Dur("at", cur).Msg("playback stalled, ending recording early")
				s.truncated = true
				s.reached = max(cur, s.start)
				return nil
			}
		} else {
			stuck = 0
			lastAdvance = time.Now()
		}
		lastTime = cur

		if ended || cur >= s.end {
			return s.grace(ctx)
		}

		frame := s.video.Frame()
		s.canvas.Draw(func(dst *image.RGBA) {
			compositor.RenderFrame(dst, frame, cur, s.params, compositor.Capture)
		})

		if pct := percent(cur-s.start, span); pct > reported {
			reported = pct
			progress(pct)
		}
	}
}

// grace lets the recorder pick up the last frames before stopping
func (s *session) grace(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.Grace)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return canceled(ctx)
	case <-timer.C:
		return nil
	}
}

// startStream samples the canvas at the stream frame rate into the recorder
func (s *session) startStream(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	s.streamCancel = cancel
	s.stream = g

	fps := max(1, s.cfg.FPS)
	g.Go(func() error {
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()

		var buf *image.RGBA
		warned := false
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			buf = s.canvas.Snapshot(buf)
			if err := s.rec.WriteFrame(buf); err != nil {
				if !warned {
					s.logger.Warn().Err(err).Msg("dropping captured frame")
					warned = true
				}
				continue
			}

			s.mu.Lock()
			s.written++
			s.mu.Unlock()
		}
	})
}

func (s *session) stopStream() {
	if s.streamCancel == nil {
		return
	}
	s.streamCancel()
	_ = s.stream.Wait()
	s.streamCancel = nil
}

func (s *session) finalize(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(finalizeTimeout)
	defer timer.Stop()

	select {
	case err := <-s.rec.Done():
		if err != nil {
			return nil, newError(KindRecorder, err, "Recording failed while finalizing")
		}
	case <-timer.C:
		return nil, newError(KindRecorder, errors.New("stop callback never fired"), "Recording failed while finalizing")
	case <-ctx.Done():
		return nil, canceled(ctx)
	}

	s.mu.Lock()
	chunks := s.chunks
	s.chunks = nil
	s.mu.Unlock()

	if len(chunks) == 0 {
		cause := ErrEmptyRecording
		if s.truncated {
			cause = fmt.Errorf("%w: %w", ErrEmptyRecording, ErrStallTimeout)
		}
		return nil, newError(KindEmpty, cause,
			"Generation Stalled: No data recorded. The recording process may be blocked")
	}

	return bytes.Join(chunks, nil), nil
}

func (s *session) addChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.released {
		s.chunks = append(s.chunks, chunk)
	}
}

func (s *session) frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *session) outputDuration() time.Duration {
	end := s.end
	if s.truncated {
		end = s.reached
	}
	return time.Duration(float64(end-s.start) / s.videoSpeed)
}

// release runs on every exit path
func (s *session) release() {
	s.stopStream()

	if s.rec != nil {
		if err := s.rec.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("recorder stop during cleanup")
		}
	}
	if s.video != nil {
		if err := s.video.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("video close during cleanup")
		}
	}
	if s.graph != nil {
		if err := s.graph.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("audio graph close during cleanup")
		}
	}

	s.mu.Lock()
	s.released = true
	s.chunks = nil
	s.mu.Unlock()
}

func percent(done, total time.Duration) int {
	if total <= 0 {
		return 1
	}
	pct := int(float64(done) / float64(total) * 100)
	return max(1, min(100, pct))
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
