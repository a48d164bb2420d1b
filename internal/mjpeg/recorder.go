// Package mjpeg records canvas frames into a Motion-JPEG AVI without any
// external tools. It is the container every host can produce.
package mjpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sync"
	"time"

	"github.com/icza/mjpeg"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

// DefaultQuality is the JPEG quality of every frame
const DefaultQuality = 85

// Recorder writes frames to a temporary AVI. The AVI index is only complete
// once the file is closed, so the whole recording is delivered as a single
// chunk at Stop.
type Recorder struct {
	width   int
	height  int
	fps     int
	dir     string
	Quality int
	logger  zerolog.Logger

	mu      sync.Mutex
	writer  mjpeg.AviWriter
	path    string
	onData  func([]byte)
	enc     bytes.Buffer
	started bool
	stopped bool
	frames  int

	done     chan error
	stopOnce sync.Once
}

var _ media.Recorder = (*Recorder)(nil)

// New prepares a recorder for the canvas at its current size. Temporary
// files go to dir, or the system temp dir when empty.
func New(stream media.Stream, dir string, logger zerolog.Logger) (*Recorder, error) {
	if stream.Canvas == nil {
		return nil, fmt.Errorf("recorder needs a canvas")
	}
	w, h := stream.Canvas.Size()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("canvas has no size")
	}
	fps := stream.FPS
	if fps <= 0 {
		fps = 30
	}

	logger = logger.With().Str("component", "mjpeg").Logger()
	if stream.Audio != nil {
		logger.Warn().Msg("motion-jpeg output has no audio track, audio is dropped")
	}

	return &Recorder{
		width:   w,
		height:  h,
		fps:     fps,
		dir:     dir,
		Quality: DefaultQuality,
		logger:  logger,
		done:    make(chan error, 1),
	}, nil
}

// MimeType returns the Motion-JPEG MIME type
func (r *Recorder) MimeType() string {
	return container.MotionJPEG
}

// OnData registers the chunk callback
func (r *Recorder) OnData(fn func(chunk []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

// Done delivers the terminal error once
func (r *Recorder) Done() <-chan error {
	return r.done
}

// Start opens the AVI. The timeslice is ignored.
func (r *Recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return media.ErrClosed
	}
	if r.started {
		return fmt.Errorf("recorder already started")
	}

	if r.dir != "" {
		if err := util.EnsureDir(r.dir); err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
	}
	f, err := util.TempFile(r.dir, "recap_", ".avi")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	writer, err := mjpeg.New(path, int32(r.width), int32(r.height), int32(r.fps))
	if err != nil {
		util.CleanupFiles(path)
		return fmt.Errorf("failed to create video writer: %w", err)
	}

	r.writer = writer
	r.path = path
	r.started = true

	r.logger.Info().
		Int("width", r.width).
		Int("height", r.height).
		Int("fps", r.fps).
		Str("file", path).
		Msg("recorder started")
	return nil
}

// WriteFrame encodes frame as JPEG and appends it
func (r *Recorder) WriteFrame(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return media.ErrClosed
	}
	if !r.started {
		return fmt.Errorf("recorder not started")
	}

	b := frame.Bounds()
	if b.Dx() != r.width || b.Dy() != r.height {
		return fmt.Errorf("frame is %dx%d, recorder expects %dx%d", b.Dx(), b.Dy(), r.width, r.height)
	}

	r.enc.Reset()
	if err := jpeg.Encode(&r.enc, frame, &jpeg.Options{Quality: r.Quality}); err != nil {
		return fmt.Errorf("failed to encode frame %d as JPEG: %w", r.frames, err)
	}
	if err := r.writer.AddFrame(r.enc.Bytes()); err != nil {
		return fmt.Errorf("failed to add frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

// Frames counts frames written so far
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Stop closes the AVI and delivers it as one chunk
func (r *Recorder) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		writer, path, frames, fn := r.writer, r.path, r.frames, r.onData
		r.mu.Unlock()

		err := r.finish(writer, path, frames, fn)
		if err != nil {
			r.logger.Error().Err(err).Msg("finalize failed")
		}
		r.done <- err
		close(r.done)
	})
	return nil
}

func (r *Recorder) finish(writer mjpeg.AviWriter, path string, frames int, fn func([]byte)) error {
	if writer == nil {
		return nil
	}
	defer util.CleanupFiles(path)

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close avi: %w", err)
	}
	if frames == 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read avi: %w", err)
	}

	r.logger.Info().
		Int("frames", frames).
		Str("size", util.HumanBytes(int64(len(data)))).
		Msg("motion-jpeg recording finished")

	if fn != nil && len(data) > 0 {
		fn(data)
	}
	return nil
}
