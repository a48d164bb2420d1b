package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/media"
)

// Recorder encodes raw canvas frames, plus an optional PCM track, through
// ffmpeg into a streamable container. Output is delivered in chunks every
// timeslice.
type Recorder struct {
	exec   *Executor
	stream media.Stream
	format container.Format
	width  int
	height int
	logger zerolog.Logger

	mu      sync.Mutex
	onData  func([]byte)
	stdin   io.WriteCloser
	audioW  *os.File
	buf     bytes.Buffer
	started bool
	stopped bool
	frames  int

	done     chan error
	stopOnce sync.Once
}

var _ media.Recorder = (*Recorder)(nil)

// NewRecorder prepares a recorder for the canvas at its current size
func (e *Executor) NewRecorder(stream media.Stream, format container.Format) (*Recorder, error) {
	if format.Native() {
		return nil, fmt.Errorf("%s is not produced by ffmpeg", format.MimeType)
	}
	if stream.Canvas == nil {
		return nil, fmt.Errorf("recorder needs a canvas")
	}

	w, h := stream.Canvas.Size()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("canvas has no size")
	}
	if stream.FPS <= 0 {
		stream.FPS = 30
	}

	return &Recorder{
		exec:   e,
		stream: stream,
		format: format,
		width:  w,
		height: h,
		logger: e.logger.With().Str("component", "recorder").Str("mime", format.MimeType).Logger(),
		done:   make(chan error, 1),
	}, nil
}

// MimeType returns the container MIME type
func (r *Recorder) MimeType() string {
	return r.format.MimeType
}

// OnData registers the chunk callback
func (r *Recorder) OnData(fn func(chunk []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

// Done delivers the encoder's exit status once
func (r *Recorder) Done() <-chan error {
	return r.done
}

func (r *Recorder) args() []string {
	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", r.width, r.height),
		"-framerate", strconv.Itoa(r.stream.FPS),
		"-i", "pipe:0",
	}

	audio := r.stream.Audio != nil && r.format.AudioCodec != ""
	if audio {
		af := r.stream.Audio.Format()
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(af.SampleRate),
			"-ac", strconv.Itoa(af.Channels),
			// ExtraFiles[0] is fd 3 in the child
			"-i", "pipe:3",
		)
	}

	args = append(args, "-map", "0:v:0")
	if audio {
		args = append(args, "-map", "1:a:0")
	}

	args = append(args, "-c:v", r.format.VideoCodec, "-pix_fmt", "yuv420p")
	if r.format.VideoCodec == "libx264" {
		preset, crf := r.exec.cfg.Preset, r.exec.cfg.CRF
		if preset == "" {
			preset = DefaultPreset
		}
		if crf <= 0 {
			crf = DefaultCRF
		}
		args = append(args, "-preset", preset, "-crf", strconv.Itoa(crf), "-tune", "zerolatency")
	}

	if audio {
		args = append(args, "-c:a", r.format.AudioCodec)
		if r.exec.cfg.AudioBitrate != "" {
			args = append(args, "-b:a", r.exec.cfg.AudioBitrate)
		}
		args = append(args, "-shortest")
	}

	args = append(args, r.format.MuxerFlags...)
	return append(args, "-f", r.format.Muxer, "pipe:1")
}

// Start launches the encoder
func (r *Recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return media.ErrClosed
	}
	if r.started {
		return fmt.Errorf("recorder already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := r.exec.command(ctx, true, r.args()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	var audioR *os.File
	if r.stream.Audio != nil && r.format.AudioCodec != "" {
		audioR, r.audioW, err = os.Pipe()
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create audio pipe: %w", err)
		}
		cmd.ExtraFiles = []*os.File{audioR}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		if audioR != nil {
			audioR.Close()
			r.audioW.Close()
		}
		return fmt.Errorf("failed to start encoder: %w", err)
	}
	if audioR != nil {
		// the child holds its own copy
		audioR.Close()
		go r.pumpAudio(r.audioW)
	}

	r.stdin = stdin
	r.started = true

	r.logger.Info().
		Int("width", r.width).
		Int("height", r.height).
		Int("fps", r.stream.FPS).
		Dur("timeslice", timeslice).
		Msg("recorder started")

	var g errgroup.Group
	g.Go(func() error {
		return r.collect(stdout, timeslice)
	})
	g.Go(func() error {
		streamOutput(stderr, func(p *Progress) {
			r.logger.Debug().
				Int("frame", p.Frame).
				Int64("size", p.Size).
				Str("time", p.Time).
				Msg("encoding")
		}, func(line string) {
			r.logger.Warn().Str("ffmpeg", line).Msg("encoder output")
		})
		return nil
	})

	go func() {
		err := g.Wait()
		if werr := cmd.Wait(); err == nil && werr != nil {
			err = fmt.Errorf("encoder exited: %w", werr)
		}
		cancel()
		r.flush()
		r.logger.Debug().Err(err).Msg("recorder finished")
		r.done <- err
		close(r.done)
	}()

	return nil
}

// pumpAudio copies the PCM track into the encoder until either side ends
func (r *Recorder) pumpAudio(w *os.File) {
	_, err := io.Copy(w, r.stream.Audio)
	if err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		r.logger.Debug().Err(err).Msg("audio pump stopped")
	}
	w.Close()
}

// collect buffers encoder output and hands it out every timeslice
func (r *Recorder) collect(stdout io.Reader, timeslice time.Duration) error {
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 64<<10)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				r.mu.Lock()
				r.buf.Write(buf[:n])
				r.mu.Unlock()
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

	if timeslice <= 0 {
		return <-readErr
	}

	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case err := <-readErr:
			return err
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Recorder) flush() {
	r.mu.Lock()
	if r.buf.Len() == 0 {
		r.mu.Unlock()
		return
	}
	chunk := bytes.Clone(r.buf.Bytes())
	r.buf.Reset()
	fn := r.onData
	r.mu.Unlock()

	if fn != nil {
		fn(chunk)
	}
}

// WriteFrame sends one RGBA frame to the encoder
func (r *Recorder) WriteFrame(frame *image.RGBA) error {
	r.mu.Lock()
	stdin, started, stopped := r.stdin, r.started, r.stopped
	r.mu.Unlock()

	if stopped {
		return media.ErrClosed
	}
	if !started {
		return fmt.Errorf("recorder not started")
	}

	b := frame.Bounds()
	if b.Dx() != r.width || b.Dy() != r.height {
		return fmt.Errorf("frame is %dx%d, recorder expects %dx%d", b.Dx(), b.Dy(), r.width, r.height)
	}

	rowLen := r.width * 4
	if frame.Stride == rowLen {
		off := frame.PixOffset(b.Min.X, b.Min.Y)
		if _, err := stdin.Write(frame.Pix[off : off+rowLen*r.height]); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := frame.PixOffset(b.Min.X, y)
			if _, err := stdin.Write(frame.Pix[off : off+rowLen]); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}

	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
	return nil
}

// Frames counts frames written so far
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Stop closes the inputs so the encoder can finalise the container
func (r *Recorder) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		started := r.started
		stdin, audioW := r.stdin, r.audioW
		r.mu.Unlock()

		if !started {
			r.done <- nil
			close(r.done)
			return
		}

		r.logger.Info().Int("frames", r.Frames()).Msg("stopping recorder")
		if audioW != nil {
			audioW.Close()
		}
		if stdin != nil {
			stdin.Close()
		}
	})
	return nil
}
