// Package media declares the host capabilities the compositor pipeline runs
// against: seekable playback elements, an audio graph, a canvas capture
// stream and a chunked recorder. internal/ffmpeg provides the production
// implementations.
package media

import (
	"context"
	"errors"
	"image"
	"io"
	"time"

	"github.com/kikiluvv/recapcannon/internal/compositor"
)

var (
	// ErrNotReady is returned when an element has no metadata yet
	ErrNotReady = errors.New("media element not ready")
	// ErrClosed is returned by operations on a closed element or recorder
	ErrClosed = errors.New("media closed")
)

// Element is a seekable, rate-adjustable playback element. CurrentTime is
// media time and advances at PlaybackRate times wall clock while playing.
type Element interface {
	// Loaded is closed once duration metadata is known
	Loaded() <-chan struct{}
	Duration() time.Duration
	CurrentTime() time.Duration
	Seek(t time.Duration) error
	PlaybackRate() float64
	SetPlaybackRate(rate float64) error
	Play(ctx context.Context) error
	Pause()
	Paused() bool
	Ended() bool
	// Ready reports whether the element can present data at CurrentTime
	Ready() bool
	Close() error
}

// VideoElement is an Element that also exposes decoded frames
type VideoElement interface {
	Element
	// Frame returns the latest decoded frame at or before CurrentTime, or
	// nil before the first frame is decoded. It never returns a future frame.
	Frame() image.Image
}

// AudioFormat describes interleaved signed 16-bit PCM
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond is the PCM byte rate
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// AudioTrack is a live PCM track produced by an AudioGraph destination
type AudioTrack interface {
	io.Reader
	Format() AudioFormat
}

// AudioGraph mixes connected sources into a single destination track
type AudioGraph interface {
	// Connect attaches src played back at rate, starting offset into src
	Connect(ctx context.Context, src Source, rate float64, offset time.Duration) error
	// Destination returns the mixed track, nil when nothing is connected
	Destination() AudioTrack
	Start(ctx context.Context) error
	Pause()
	Close() error
}

// Stream is the canvas capture stream handed to a recorder
type Stream struct {
	Canvas *compositor.Canvas
	FPS    int
	Audio  AudioTrack
}

// Recorder encodes a Stream into container chunks
type Recorder interface {
	// Start begins recording. A positive timeslice asks for a data callback
	// roughly every timeslice; zero delivers data only at Stop.
	Start(timeslice time.Duration) error
	// WriteFrame appends one sampled canvas frame. The recorder must not
	// keep frame after returning.
	WriteFrame(frame *image.RGBA) error
	// OnData registers the chunk callback. Chunks are never empty.
	OnData(fn func(chunk []byte))
	// Stop finalises the container and flushes remaining data. Calling it
	// again is a no-op.
	Stop() error
	// Done delivers the terminal error (nil on clean stop) once
	Done() <-chan error
	MimeType() string
}

// Output is a finished recording
type Output struct {
	URL      string
	MimeType string
	Data     []byte
	Duration time.Duration
}

// Sink accepts finished outputs (download, upload, file write)
type Sink interface {
	Accept(ctx context.Context, out *Output) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, out *Output) error

// Accept calls f
func (f SinkFunc) Accept(ctx context.Context, out *Output) error {
	return f(ctx, out)
}
