package mediatest

import (
	"context"
	"sync"
	"time"

	"github.com/kikiluvv/recapcannon/internal/media"
)

// AudioGraph is a fake media.AudioGraph producing silence
type AudioGraph struct {
	mu          sync.Mutex
	connections []Connection
	started     bool
	closed      bool
	connectErr  error

	Format media.AudioFormat
}

// Connection records one Connect call
type Connection struct {
	Source media.Source
	Rate   float64
	Offset time.Duration
}

var _ media.AudioGraph = (*AudioGraph)(nil)

// NewAudioGraph returns a 44.1kHz stereo graph
func NewAudioGraph() *AudioGraph {
	return &AudioGraph{Format: media.AudioFormat{SampleRate: 44100, Channels: 2}}
}

// FailConnect makes Connect return err
func (g *AudioGraph) FailConnect(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectErr = err
}

// Connections returns every connected source
func (g *AudioGraph) Connections() []Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Connection(nil), g.connections...)
}

// Closed reports whether Close was called
func (g *AudioGraph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Started reports whether Start was called
func (g *AudioGraph) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

func (g *AudioGraph) Connect(ctx context.Context, src media.Source, rate float64, offset time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connectErr != nil {
		return g.connectErr
	}
	g.connections = append(g.connections, Connection{Source: src, Rate: rate, Offset: offset})
	return nil
}

func (g *AudioGraph) Destination() media.AudioTrack {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.connections) == 0 {
		return nil
	}
	return silence{format: g.Format}
}

func (g *AudioGraph) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = true
	return nil
}

func (g *AudioGraph) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = false
}

func (g *AudioGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

type silence struct {
	format media.AudioFormat
}

func (s silence) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func (s silence) Format() media.AudioFormat { return s.format }

// Support answers container support queries from a fixed set
type Support map[string]bool

// IsTypeSupported reports whether mime is in the set
func (s Support) IsTypeSupported(mime string) bool { return s[mime] }
