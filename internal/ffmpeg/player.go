package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/media"
)

type decodedFrame struct {
	img *image.RGBA
	pts time.Duration
}

// decoder is one ffmpeg process emitting raw RGBA frames from a start
// position. Seeking replaces the decoder.
type decoder struct {
	frames chan decodedFrame
	cancel context.CancelFunc
	done   chan struct{}

	// decoded is the end of the newest queued frame in nanoseconds
	decoded atomic.Int64
	eof     atomic.Bool
}

func (d *decoder) end() time.Duration {
	return time.Duration(d.decoded.Load())
}

func (d *decoder) stop() {
	d.cancel()
	// unblock a producer waiting on a full queue
	for {
		select {
		case <-d.frames:
		case <-d.done:
			return
		}
	}
}

// Player is a media.VideoElement backed by an ffmpeg decode process. Media
// time follows the wall clock scaled by the playback rate and never runs
// ahead of the decoded frames.
type Player struct {
	exec   *Executor
	src    media.Source
	logger zerolog.Logger

	loaded    chan struct{}
	probeDone chan struct{}

	mu       sync.Mutex
	info     *Info
	width    int
	height   int
	fps      float64
	dec      *decoder
	pending  *decodedFrame
	current  *decodedFrame
	pos      time.Duration
	anchor   time.Time
	rate     float64
	playing  bool
	closed   bool
	closeCtx context.CancelFunc
}

var _ media.VideoElement = (*Player)(nil)

// OpenPlayer starts probing src in the background and returns immediately.
// Loaded is closed once the duration is known.
func (e *Executor) OpenPlayer(ctx context.Context, src media.Source) *Player {
	ctx, cancel := context.WithCancel(ctx)
	p := &Player{
		exec:      e,
		src:       src,
		logger:    e.logger.With().Str("component", "player").Str("file", src.Path).Logger(),
		loaded:    make(chan struct{}),
		probeDone: make(chan struct{}),
		rate:      1,
		closeCtx:  cancel,
	}

	go p.probe(ctx)
	return p
}

func (p *Player) probe(ctx context.Context) {
	defer close(p.probeDone)

	info, err := p.exec.Probe(ctx, p.src.Path)
	if err != nil {
		p.logger.Warn().Err(err).Msg("probe failed")
		return
	}
	if !info.HasVideo {
		p.logger.Warn().Msg("source has no video stream")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.info = info
	p.width, p.height = decodeSize(info.Width, info.Height)
	p.fps = decodeRate(info.FPS)
	p.startDecoderLocked(p.pos)

	p.logger.Debug().
		Dur("duration", info.Duration).
		Int("width", p.width).
		Int("height", p.height).
		Float64("fps", p.fps).
		Msg("player ready")

	if info.Duration > 0 {
		close(p.loaded)
	}
}

func (p *Player) startDecoderLocked(from time.Duration) {
	if p.dec != nil {
		p.dec.stop()
	}
	p.pending, p.current = nil, nil

	ctx, cancel := context.WithCancel(context.Background())
	d := &decoder{
		frames: make(chan decodedFrame, frameQueueSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	d.decoded.Store(int64(from))
	p.dec = d

	go p.decode(ctx, d, from)
}

func (p *Player) decode(ctx context.Context, d *decoder, from time.Duration) {
	defer close(d.done)

	filters := NewFilterBuilder().FPS(p.fps).Scale(p.width, p.height).Build()
	args := []string{
		"-ss", strconv.FormatFloat(from.Seconds(), 'f', 3, 64),
		"-i", p.src.Path,
		"-an", "-sn",
		"-vf", filters,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	cmd := p.exec.command(ctx, false, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.finishDecode(d, fmt.Errorf("failed to create stdout pipe: %w", err))
		return
	}
	if err := cmd.Start(); err != nil {
		p.finishDecode(d, fmt.Errorf("failed to start decoder: %w", err))
		return
	}

	frameSize := p.width * p.height * 4
	interval := time.Duration(float64(time.Second) / p.fps)

	var readErr error
	for n := 0; ; n++ {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				readErr = err
			}
			break
		}

		f := decodedFrame{
			img: &image.RGBA{Pix: buf, Stride: p.width * 4, Rect: image.Rect(0, 0, p.width, p.height)},
			pts: from + time.Duration(n)*interval,
		}
		select {
		case d.frames <- f:
		case <-ctx.Done():
			_ = cmd.Wait()
			return
		}
		d.decoded.Store(int64(f.pts + interval))
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return
	}
	if readErr == nil && waitErr != nil {
		readErr = fmt.Errorf("decoder exited: %w", waitErr)
	}
	p.finishDecode(d, readErr)
}

func (p *Player) finishDecode(d *decoder, err error) {
	if err != nil {
		p.logger.Error().Err(err).Msg("decode failed")
	}
	d.eof.Store(true)
}

// Loaded is closed once duration metadata is known
func (p *Player) Loaded() <-chan struct{} {
	return p.loaded
}

// Info returns probed metadata, nil until probing finished
func (p *Player) Info() *Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// Duration returns the probed duration, zero if unknown
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info == nil {
		return 0
	}
	return p.info.Duration
}

// CurrentTime returns the current media time
func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeLocked(time.Now())
}

func (p *Player) timeLocked(now time.Time) time.Duration {
	if !p.playing || p.dec == nil {
		return p.pos
	}

	t := p.pos + time.Duration(float64(now.Sub(p.anchor))*p.rate)
	// media time never passes the decoded frames
	if limit := p.dec.end(); t >= limit {
		t = max(limit, p.pos)
		p.pos, p.anchor = t, now
		if p.dec.eof.Load() {
			p.playing = false
		}
	}
	return t
}

// Seek moves to t, restarting the decoder there
func (p *Player) Seek(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return media.ErrClosed
	}
	if p.info == nil {
		return media.ErrNotReady
	}

	t = max(t, 0)
	if p.info.Duration > 0 {
		t = min(t, p.info.Duration)
	}
	p.pos, p.anchor = t, time.Now()
	p.startDecoderLocked(t)
	return nil
}

// PlaybackRate returns the rate multiplier
func (p *Player) PlaybackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// SetPlaybackRate changes the rate without a jump in media time
func (p *Player) SetPlaybackRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("playback rate must be positive, got %v", rate)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.pos, p.anchor = p.timeLocked(now), now
	p.rate = rate
	return nil
}

// Play starts playback, restarting from zero when ended
func (p *Player) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return media.ErrClosed
	}
	if p.info == nil {
		return media.ErrNotReady
	}
	if p.endedLocked(time.Now()) {
		p.pos = 0
		p.startDecoderLocked(0)
	}
	if !p.playing {
		p.playing = true
		p.anchor = time.Now()
	}
	return nil
}

// Pause freezes media time
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.pos = p.timeLocked(now)
	p.playing = false
}

// Paused reports whether media time is frozen
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeLocked(time.Now())
	return !p.playing
}

// Ended reports whether playback reached the last decoded frame
func (p *Player) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endedLocked(time.Now())
}

func (p *Player) endedLocked(now time.Time) bool {
	if p.dec == nil || !p.dec.eof.Load() {
		return false
	}
	return p.timeLocked(now) >= p.dec.end()
}

// Ready reports whether a frame is available at the current time
func (p *Player) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.info == nil {
		return false
	}
	p.advanceLocked(p.timeLocked(time.Now()))
	return p.current != nil
}

// Frame returns the newest decoded frame at or before the current time
func (p *Player) Frame() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	p.advanceLocked(p.timeLocked(time.Now()))
	if p.current == nil {
		return nil
	}
	return p.current.img
}

// advanceLocked pops queued frames up to t
func (p *Player) advanceLocked(t time.Duration) {
	if p.dec == nil {
		return
	}
	for {
		if p.pending == nil {
			select {
			case f := <-p.dec.frames:
				p.pending = &f
			default:
				return
			}
		}
		if p.pending.pts > t {
			return
		}
		p.current, p.pending = p.pending, nil
	}
}

// Close stops decoding and releases the element
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	dec := p.dec
	p.dec = nil
	p.pending, p.current = nil, nil
	p.mu.Unlock()

	p.closeCtx()
	if dec != nil {
		dec.stop()
	}
	<-p.probeDone
	return nil
}
