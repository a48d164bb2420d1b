package clips

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/recapcannon/pkg/util"
)

// ErrInvalidRange is returned for empty or inverted trim ranges
var ErrInvalidRange = errors.New("invalid clip range")

// Clip is a trim range over a source video. A zero End means "until the
// end of the source".
type Clip struct {
	ID     string
	Start  time.Duration
	End    time.Duration
	Source string
	Label  string
}

// New creates a clip over [start, end)
func New(start, end time.Duration) (*Clip, error) {
	if start < 0 {
		return nil, fmt.Errorf("%w: negative start %v", ErrInvalidRange, start)
	}
	if end != 0 && end <= start {
		return nil, fmt.Errorf("%w: end %v not after start %v", ErrInvalidRange, end, start)
	}
	return &Clip{ID: uuid.NewString(), Start: start, End: end}, nil
}

// ParseRange parses "START-END" where either side is a timestamp accepted by
// util.ParseTimestamp. An empty END runs to the end of the source.
func ParseRange(s string) (*Clip, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("%w: %q, want START-END", ErrInvalidRange, s)
	}

	start, err := util.ParseTimestamp(startStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	var end time.Duration
	if strings.TrimSpace(endStr) != "" {
		if end, err = util.ParseTimestamp(endStr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
	}

	return New(start, end)
}

// Resolve clamps the clip to a source of the given total duration
func (c *Clip) Resolve(total time.Duration) (start, end time.Duration) {
	if c == nil {
		return 0, total
	}

	start, end = c.Start, c.End
	if end == 0 || (total > 0 && end > total) {
		end = total
	}
	if start > end {
		start = end
	}
	return start, end
}

// Duration is the clip length within a source of the given total duration
func (c *Clip) Duration(total time.Duration) time.Duration {
	start, end := c.Resolve(total)
	return end - start
}

func (c *Clip) String() string {
	if c.End == 0 {
		return util.FormatClock(c.Start) + "-end"
	}
	return util.FormatClock(c.Start) + "-" + util.FormatClock(c.End)
}

// Manager holds the trim ranges marked in an editing session
type Manager struct {
	mu    sync.Mutex
	clips []*Clip
}

// NewManager creates a new clip manager
func NewManager() *Manager {
	return &Manager{
		clips: make([]*Clip, 0),
	}
}

// Add adds a clip to the manager
func (m *Manager) Add(clip *Clip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips = append(m.clips, clip)
}

// Get retrieves a clip by ID
func (m *Manager) Get(id string) *Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, clip := range m.clips {
		if clip.ID == id {
			return clip
		}
	}
	return nil
}

// Find returns the clip covering exactly start to end
func (m *Manager) Find(start, end time.Duration) *Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, clip := range m.clips {
		if clip.Start == start && clip.End == end {
			return clip
		}
	}
	return nil
}

// Remove deletes a clip by ID and reports whether it existed
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, clip := range m.clips {
		if clip.ID == id {
			m.clips = append(m.clips[:i], m.clips[i+1:]...)
			return true
		}
	}
	return false
}

// All returns all clips
func (m *Manager) All() []*Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Clip(nil), m.clips...)
}
