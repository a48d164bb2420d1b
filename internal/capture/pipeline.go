// Package capture records a composited video (plus optional narration) into
// an output container in real time. It drives a hidden playback element,
// renders every tick into an offscreen canvas and feeds the canvas to a
// recorder, recovering from playback stalls along the way.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/blobstore"
	"github.com/kikiluvv/recapcannon/internal/clips"
	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/effects"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

// finalizeTimeout bounds the wait for the recorder's stop callback
const finalizeTimeout = 30 * time.Second

// Host provides the media capabilities a session runs against
type Host interface {
	OpenVideo(ctx context.Context, src media.Source) (media.VideoElement, error)
	NewAudioGraph(ctx context.Context, sampleRate int) (media.AudioGraph, error)
	Support() container.Support
	NewRecorder(stream media.Stream, format container.Format) (media.Recorder, error)
}

// Job describes one recording
type Job struct {
	Video media.Source
	// Audio is an optional narration track mixed in at AudioSpeed
	Audio *media.Source
	// KeepSourceAudio records the video's own soundtrack when no narration
	// is given
	KeepSourceAudio bool

	Params     *effects.Parameters
	VideoSpeed float64
	AudioSpeed float64
	// Range limits recording to a trim range of the source
	Range *clips.Clip
	// DurationHint is used when the element never reports a duration
	DurationHint time.Duration
}

// Result describes a finished recording
type Result struct {
	SessionID string
	URL       string
	MimeType  string
	Size      int64
	Duration  time.Duration
	Frames    int
	// Truncated is set when a stall ended the recording early
	Truncated bool
}

// Pipeline runs one capture session at a time
type Pipeline struct {
	host   Host
	sink   media.Sink
	store  *blobstore.Store
	cfg    config.CaptureConfig
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	lastURL    string
	lastErr    error
	onState    func(State)
	onProgress func(int)
}

// New creates a pipeline. sink may be nil.
func New(host Host, store *blobstore.Store, sink media.Sink, cfg config.CaptureConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		host:   host,
		sink:   sink,
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "capture").Logger(),
	}
}

// OnState registers a state-change callback
func (p *Pipeline) OnState(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

// OnProgress registers a progress callback receiving whole percentages
func (p *Pipeline) OnProgress(fn func(int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onProgress = fn
}

// State returns the current lifecycle state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the failure of the last session, if it failed
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Cancel aborts the running session and reports whether there was one
func (p *Pipeline) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return false
	}
	p.cancel()
	return true
}

// Close revokes the last result URL
func (p *Pipeline) Close() error {
	p.mu.Lock()
	url := p.lastURL
	p.lastURL = ""
	p.mu.Unlock()

	if url != "" {
		p.store.Revoke(url)
	}
	return nil
}

func (p *Pipeline) begin(cancel context.CancelFunc) bool {
	p.mu.Lock()
	if p.state.Active() {
		p.mu.Unlock()
		return false
	}
	p.cancel = cancel
	p.lastErr = nil
	p.state = Preparing
	fn := p.onState
	p.mu.Unlock()

	if fn != nil {
		fn(Preparing)
	}
	return true
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	fn := p.onState
	p.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

func (p *Pipeline) progress(pct int) {
	p.mu.Lock()
	fn := p.onProgress
	p.mu.Unlock()

	if fn != nil {
		fn(pct)
	}
}

// Run records job and blocks until the session completes or fails. Every
// failure is returned as *Error.
func (p *Pipeline) Run(ctx context.Context, job Job) (res *Result, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !p.begin(cancel) {
		return nil, newError(KindBusy, ErrBusy, "A recording is already in progress")
	}

	s := &session{
		id:     uuid.NewString(),
		job:    job,
		cfg:    p.cfg,
		logger: p.logger,
	}
	s.logger = p.logger.With().Str("session", s.id).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = newError(KindCompositing, fmt.Errorf("%v", r), "Generation Failed: rendering crashed")
			res = nil
		}
		s.release()

		p.mu.Lock()
		p.cancel = nil
		p.lastErr = err
		p.mu.Unlock()

		if err != nil {
			s.logger.Error().Err(err).Msg("capture failed")
			p.setState(Failed)
			return
		}
		p.setState(Complete)
	}()

	if err := s.prepare(ctx, p.host); err != nil {
		return nil, err
	}

	p.setState(Recording)
	p.progress(1)
	if err := s.record(ctx, p.progress); err != nil {
		return nil, err
	}

	p.setState(Finalizing)
	data, err := s.finalize(ctx)
	if err != nil {
		return nil, err
	}

	return p.complete(ctx, s, data)
}

func (p *Pipeline) complete(ctx context.Context, s *session, data []byte) (*Result, error) {
	blob := p.store.Create(data, s.format.MimeType)

	out := &media.Output{
		URL:      blob.URL,
		MimeType: blob.MimeType,
		Data:     blob.Data,
		Duration: s.outputDuration(),
	}
	if p.sink != nil {
		if err := p.sink.Accept(ctx, out); err != nil {
			p.store.Revoke(blob.URL)
			if ctx.Err() != nil {
				return nil, canceled(ctx)
			}
			return nil, newError(KindSink, err, "Could not save the output")
		}
	}

	p.mu.Lock()
	previous := p.lastURL
	p.lastURL = blob.URL
	p.mu.Unlock()
	if previous != "" {
		p.store.Revoke(previous)
	}

	p.progress(100)

	res := &Result{
		SessionID: s.id,
		URL:       blob.URL,
		MimeType:  blob.MimeType,
		Size:      blob.Size(),
		Duration:  out.Duration,
		Frames:    s.frames(),
		Truncated: s.truncated,
	}

	s.logger.Info().
		Str("mime", res.MimeType).
		Str("size", util.HumanBytes(res.Size)).
		Dur("duration", res.Duration).
		Bool("truncated", res.Truncated).
		Msg("capture complete")

	return res, nil
}

func canceled(ctx context.Context) *Error {
	err := error(ErrCanceled)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrCanceled, cause)
	}
	return newError(KindCanceled, err, "Generation canceled")
}
