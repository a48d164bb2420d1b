package gui

import (
	"image"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"github.com/kikiluvv/recapcannon/internal/preview"
)

// previewDisplay shows preview frames centred in a black area. Sizes are
// fyne units.
type previewDisplay struct {
	image      *canvas.Image
	background *canvas.Rectangle
	content    *fyne.Container

	mu     sync.Mutex
	width  int
	height int
}

var _ preview.Display = (*previewDisplay)(nil)

func newPreviewDisplay() *previewDisplay {
	d := &previewDisplay{
		background: canvas.NewRectangle(color.Black),
	}
	d.image = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	d.image.FillMode = canvas.ImageFillStretch
	d.image.ScaleMode = canvas.ImageScaleFastest
	d.content = container.New(&previewLayout{display: d}, d.background, d.image)
	return d
}

// ContainerSize is the last laid out size of the preview area
func (d *previewDisplay) ContainerSize() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// Present swaps the shown frame. It is called from the preview loop, so the
// update is handed to the fyne goroutine.
func (d *previewDisplay) Present(img *image.RGBA, w, h int) {
	cw, ch := d.ContainerSize()
	size := fyne.NewSize(float32(w), float32(h))
	pos := fyne.NewPos(float32(cw-w)/2, float32(ch-h)/2)

	fyne.Do(func() {
		d.image.Image = img
		d.image.Resize(size)
		d.image.Move(pos)
		d.image.Refresh()
	})
}

func (d *previewDisplay) setContainer(size fyne.Size) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = int(size.Width), int(size.Height)
}

// previewLayout fills the background and records the available space. The
// image itself is placed by Present.
type previewLayout struct {
	display *previewDisplay
}

func (l *previewLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	l.display.setContainer(size)
	l.display.background.Resize(size)
	l.display.background.Move(fyne.NewPos(0, 0))
}

func (l *previewLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(360, 240)
}
