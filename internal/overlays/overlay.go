// Package overlays manages the logo images that can be pinned to a corner
// of the composited frame.
package overlays

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sort"
	"sync"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// MaxLogoEdge bounds decoded logos; they are drawn at a fraction of a 480p
// frame, so anything larger only costs scaling time per frame
const MaxLogoEdge = 512

// ErrUnknownLogo is returned for names missing from the registry
var ErrUnknownLogo = errors.New("unknown logo")

// LoadLogo decodes a still image and bounds it to MaxLogoEdge
func LoadLogo(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open logo: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode logo %s: %w", path, err)
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode logo %s: empty %s image", path, format)
	}
	if b.Dx() > MaxLogoEdge || b.Dy() > MaxLogoEdge {
		img = resize.Thumbnail(MaxLogoEdge, MaxLogoEdge, img, resize.Lanczos3)
	}
	return img, nil
}

// Registry maps logo names to image files and caches decoded images
type Registry struct {
	mu      sync.Mutex
	paths   map[string]string
	decoded map[string]image.Image
}

// NewRegistry creates a new logo registry
func NewRegistry() *Registry {
	return &Registry{
		paths:   make(map[string]string),
		decoded: make(map[string]image.Image),
	}
}

// Register adds a logo to the registry
func (r *Registry) Register(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[name] = path
	delete(r.decoded, name)
}

// Get retrieves a logo path by name
func (r *Registry) Get(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.paths[name]
	return path, ok
}

// Image returns the decoded logo registered under name
func (r *Registry) Image(name string) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if img, ok := r.decoded[name]; ok {
		return img, nil
	}
	path, ok := r.paths[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLogo, name)
	}

	img, err := LoadLogo(path)
	if err != nil {
		return nil, err
	}
	r.decoded[name] = img
	return img, nil
}

// List returns all registered logo names, sorted
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.paths))
	for name := range r.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
