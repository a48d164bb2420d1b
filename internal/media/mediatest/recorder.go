package mediatest

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/kikiluvv/recapcannon/internal/media"
)

// Recorder is a fake media.Recorder. Every written frame contributes one
// byte of output; Silent recorders never produce data.
type Recorder struct {
	mu         sync.Mutex
	mime       string
	onData     func([]byte)
	pending    []byte
	frames     int
	started    bool
	stopped    bool
	startErrs  []error
	timeslices []time.Duration
	done       chan error
	quit       chan struct{}

	Silent bool
}

var _ media.Recorder = (*Recorder)(nil)

// NewRecorder returns a recorder tagged with mime
func NewRecorder(mime string) *Recorder {
	return &Recorder{
		mime: mime,
		done: make(chan error, 1),
		quit: make(chan struct{}),
	}
}

// FailStart makes the next len(errs) Start calls fail in order
func (r *Recorder) FailStart(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErrs = append(r.startErrs, errs...)
}

// Timeslices returns the timeslice of every Start call
func (r *Recorder) Timeslices() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.timeslices...)
}

// Frames counts frames accepted by WriteFrame
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Stopped reports whether Stop was called
func (r *Recorder) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Recorder) MimeType() string { return r.mime }

func (r *Recorder) OnData(fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

func (r *Recorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timeslices = append(r.timeslices, timeslice)
	if len(r.startErrs) > 0 {
		err := r.startErrs[0]
		r.startErrs = r.startErrs[1:]
		return err
	}
	if r.started {
		return errors.New("recorder already started")
	}
	r.started = true

	if timeslice > 0 {
		go r.flushLoop(timeslice)
	}
	return nil
}

func (r *Recorder) flushLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Recorder) flush() {
	r.mu.Lock()
	chunk := r.pending
	r.pending = nil
	fn := r.onData
	r.mu.Unlock()

	if len(chunk) > 0 && fn != nil {
		fn(chunk)
	}
}

func (r *Recorder) WriteFrame(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.stopped {
		return media.ErrClosed
	}
	r.frames++
	if !r.Silent {
		r.pending = append(r.pending, byte(r.frames))
	}
	return nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	wasStarted := r.started
	r.mu.Unlock()

	if wasStarted {
		close(r.quit)
		r.flush()
	}
	r.done <- nil
	close(r.done)
	return nil
}

func (r *Recorder) Done() <-chan error { return r.done }
