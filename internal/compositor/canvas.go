// Package compositor draws fully composited frames: the scaled source video
// plus freeze zoom, blur band, logo and burned-in captions.
package compositor

import (
	"image"
	"image/draw"
	"sync"
)

// Canvas is a pixel buffer shared between a renderer and a reader (the
// capture stream or the preview display). All access goes through the lock.
type Canvas struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewCanvas allocates an opaque black canvas of the given size
func NewCanvas(w, h int) *Canvas {
	c := &Canvas{}
	c.Resize(w, h)
	return c
}

// Resize reallocates the buffer when the size changes
func (c *Canvas) Resize(w, h int) {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.img != nil && c.img.Rect.Dx() == w && c.img.Rect.Dy() == h {
		return
	}
	c.img = image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(c.img, c.img.Rect, image.Black, image.Point{}, draw.Src)
}

// Size returns the current canvas dimensions
func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img.Rect.Dx(), c.img.Rect.Dy()
}

// Draw runs fn with exclusive access to the pixel buffer
func (c *Canvas) Draw(fn func(dst *image.RGBA)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.img)
}

// Snapshot copies the canvas into dst, reallocating it when the size differs.
// The returned image is owned by the caller.
func (c *Canvas) Snapshot(dst *image.RGBA) *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dst == nil || dst.Rect != c.img.Rect {
		dst = image.NewRGBA(c.img.Rect)
	}
	copy(dst.Pix, c.img.Pix)
	return dst
}
