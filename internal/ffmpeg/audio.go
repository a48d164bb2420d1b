package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

type audioInput struct {
	src    media.Source
	rate   float64
	offset time.Duration
}

// AudioGraph mixes connected sources through a single ffmpeg process into
// interleaved s16le PCM
type AudioGraph struct {
	exec   *Executor
	format media.AudioFormat
	logger zerolog.Logger

	mu      sync.Mutex
	inputs  []audioInput
	track   *pcmTrack
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool
}

var _ media.AudioGraph = (*AudioGraph)(nil)

// NewAudioGraph creates an empty graph producing sampleRate stereo PCM
func (e *Executor) NewAudioGraph(sampleRate int) *AudioGraph {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &AudioGraph{
		exec:   e,
		format: media.AudioFormat{SampleRate: sampleRate, Channels: AudioChannels},
		logger: e.logger.With().Str("component", "audio").Logger(),
	}
}

// Connect adds src played at rate from offset. Sources must be connected
// before Start.
func (g *AudioGraph) Connect(ctx context.Context, src media.Source, rate float64, offset time.Duration) error {
	if rate <= 0 {
		return fmt.Errorf("audio rate must be positive, got %v", rate)
	}
	if !util.FileExists(src.Path) {
		return fmt.Errorf("audio source not found: %s", src.Path)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return media.ErrClosed
	}
	if g.started {
		return fmt.Errorf("audio graph already started")
	}

	g.inputs = append(g.inputs, audioInput{src: src, rate: rate, offset: max(offset, 0)})
	if g.track == nil {
		g.track = newPCMTrack(g.format)
	}

	g.logger.Debug().
		Str("file", src.Path).
		Float64("rate", rate).
		Dur("offset", offset).
		Msg("audio source connected")
	return nil
}

// Destination returns the mixed track, nil when nothing is connected
func (g *AudioGraph) Destination() media.AudioTrack {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.track == nil {
		return nil
	}
	return g.track
}

// Start launches the mix, or resumes a paused one
func (g *AudioGraph) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return media.ErrClosed
	}
	if g.track == nil {
		return nil
	}
	if g.started {
		g.track.setPaused(false)
		return nil
	}

	args := g.args()
	pctx, cancel := context.WithCancel(context.Background())
	cmd := g.exec.command(pctx, false, args...)
	cmd.Stdout = g.track.w

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start audio mix: %w", err)
	}

	g.cancel = cancel
	g.done = make(chan struct{})
	g.started = true

	go func() {
		defer close(g.done)
		err := cmd.Wait()
		if err != nil && pctx.Err() == nil {
			g.logger.Error().Err(err).Msg("audio mix failed")
		}
		g.track.w.CloseWithError(io.EOF)
	}()

	return nil
}

// args builds the mix invocation: one input per source, each tempo
// adjusted and resampled, then mixed when there is more than one. The
// output never ends on its own.
func (g *AudioGraph) args() []string {
	var args []string
	for _, in := range g.inputs {
		if in.offset > 0 {
			args = append(args, "-ss", strconv.FormatFloat(in.offset.Seconds(), 'f', 3, 64))
		}
		args = append(args, "-i", in.src.Path)
	}

	var graph string
	for i, in := range g.inputs {
		chain := NewFilterBuilder().
			Tempo(in.rate).
			Resample(g.format.SampleRate, g.format.Channels).
			Build()
		graph += fmt.Sprintf("[%d:a:0]%s[a%d];", i, chain, i)
	}
	out := NewFilterBuilder()
	if len(g.inputs) > 1 {
		for i := range g.inputs {
			graph += fmt.Sprintf("[a%d]", i)
		}
		out.Custom(fmt.Sprintf("amix=inputs=%d:normalize=0", len(g.inputs)))
	} else {
		graph += "[a0]"
	}
	// silence after the last source so the video decides where the
	// recording ends
	graph += out.Custom("apad").Build() + "[out]"

	return append(args,
		"-filter_complex", graph,
		"-map", "[out]",
		"-f", "s16le",
		"-ar", strconv.Itoa(g.format.SampleRate),
		"-ac", strconv.Itoa(g.format.Channels),
		"pipe:1",
	)
}

// Pause holds the destination track
func (g *AudioGraph) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.track != nil {
		g.track.setPaused(true)
	}
}

// Close stops the mix and ends the destination track
func (g *AudioGraph) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	cancel, done, track := g.cancel, g.done, g.track
	g.mu.Unlock()

	if track != nil {
		track.close()
	}
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// pcmTrack is the readable end of the mix. Reads block while paused.
type pcmTrack struct {
	format media.AudioFormat
	r      *io.PipeReader
	w      *io.PipeWriter

	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	closed bool
}

func newPCMTrack(format media.AudioFormat) *pcmTrack {
	r, w := io.Pipe()
	t := &pcmTrack{format: format, r: r, w: w}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *pcmTrack) Format() media.AudioFormat {
	return t.format
}

func (t *pcmTrack) Read(p []byte) (int, error) {
	t.mu.Lock()
	for t.paused && !t.closed {
		t.cond.Wait()
	}
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return 0, io.EOF
	}
	return t.r.Read(p)
}

func (t *pcmTrack) setPaused(paused bool) {
	t.mu.Lock()
	t.paused = paused
	t.mu.Unlock()
	t.cond.Broadcast()
}

func (t *pcmTrack) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cond.Broadcast()
	t.r.CloseWithError(io.EOF)
}
