package display

import (
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// EbitenDisplay shows presented frames in an Ebitengine window. Present may be
// called from any goroutine; the pixels are staged and uploaded on the next Draw.
type EbitenDisplay struct {
	mu sync.Mutex

	title    string
	size     image.Point
	onResize func()
	closed   bool
	quit     bool

	staged      []byte
	stagedSize  image.Point
	dirty       bool
	ebitenImage *ebiten.Image
}

// NewEbitenDisplay creates a display with the given initial window size.
// onResize, if set, is called whenever the drawable area changes size.
func NewEbitenDisplay(width, height int, title string, onResize func()) *EbitenDisplay {
	return &EbitenDisplay{
		title:    title,
		size:     image.Pt(width, height),
		onResize: onResize,
	}
}

// Size returns the current drawable area in pixels.
func (d *EbitenDisplay) Size() (image.Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return image.Point{}, ErrClosed
	}
	return d.size, nil
}

// Present stages a copy of img for the next Draw.
func (d *EbitenDisplay) Present(img *image.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	size := img.Rect.Size()
	rowLen := size.X * 4
	if img.Stride == rowLen {
		d.staged = append(d.staged[:0], img.Pix[:rowLen*size.Y]...)
	} else {
		d.staged = d.staged[:0]
		for y := 0; y < size.Y; y++ {
			off := y * img.Stride
			d.staged = append(d.staged, img.Pix[off:off+rowLen]...)
		}
	}
	d.stagedSize = size
	d.dirty = true
	return nil
}

// Run opens the window and blocks until it is closed. Must be called from the
// main goroutine (macOS requirement).
func (d *EbitenDisplay) Run() error {
	d.mu.Lock()
	size := d.size
	d.mu.Unlock()

	ebiten.SetWindowSize(size.X, size.Y)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	defer func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
	}()
	return ebiten.RunGame(d)
}

// Close asks the window to shut down; Run returns after the next update.
func (d *EbitenDisplay) Close() {
	d.mu.Lock()
	d.quit = true
	d.mu.Unlock()
}

// --- ebiten.Game interface ---

func (d *EbitenDisplay) Update() error {
	d.mu.Lock()
	quit := d.quit
	d.mu.Unlock()
	if quit {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	if d.dirty {
		if d.ebitenImage == nil ||
			d.ebitenImage.Bounds().Dx() != d.stagedSize.X ||
			d.ebitenImage.Bounds().Dy() != d.stagedSize.Y {
			if d.ebitenImage != nil {
				d.ebitenImage.Deallocate()
			}
			d.ebitenImage = ebiten.NewImage(d.stagedSize.X, d.stagedSize.Y)
		}
		d.ebitenImage.WritePixels(d.staged)
		d.dirty = false
	}
	img := d.ebitenImage
	d.mu.Unlock()

	if img == nil {
		return
	}
	screen.DrawImage(img, &ebiten.DrawImageOptions{})
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	size := image.Pt(outsideWidth, outsideHeight)

	d.mu.Lock()
	changed := size != d.size
	d.size = size
	d.mu.Unlock()

	if changed && d.onResize != nil {
		d.onResize()
	}
	return outsideWidth, outsideHeight
}
