// Package render copies the latest shared frame onto a display surface.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/junsooki/ppmview/internal/frame"
)

// Surface is the on-screen target. Size may change between calls when the
// window is resized. Present must not keep img after it returns.
type Surface interface {
	Size() (image.Point, error)
	Present(img *image.RGBA) error
}

// ErrSurfaceClosed is returned by a Surface whose window has gone away. The
// renderer treats it as a normal stop.
var ErrSurfaceClosed = errors.New("surface closed")

// Waiter blocks until a new frame may be available.
type Waiter interface {
	Wait(ctx context.Context) error
}

// ColorMode selects how the three samples of a pixel become a screen color.
type ColorMode int

const (
	// ColorRGB maps the samples to red, green and blue.
	ColorRGB ColorMode = iota
	// ColorGray replicates the first sample into all three channels.
	ColorGray
)

func (m ColorMode) String() string {
	switch m {
	case ColorRGB:
		return "rgb"
	case ColorGray:
		return "gray"
	default:
		return fmt.Sprintf("ColorMode(%d)", int(m))
	}
}

// ParseColorMode parses "rgb" or "gray".
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "rgb":
		return ColorRGB, nil
	case "gray", "grey":
		return ColorGray, nil
	}
	return 0, errors.Errorf("unknown color mode %q", s)
}

// DefaultBackground fills the part of the surface the frame does not cover.
var DefaultBackground = color.RGBA{A: 0xff}

// ParseBackground parses a hex RRGGBB color, with or without a leading '#'.
func ParseBackground(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, errors.Errorf("background %q is not RRGGBB", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, errors.Wrapf(err, "parse background %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Options tune a Renderer.
type Options struct {
	Color ColorMode
	// Background is used when the zero value is given.
	Background color.RGBA
	// FPSInterval is how often the render rate is logged. Zero disables it.
	FPSInterval time.Duration
}

// Renderer owns the surface canvas and repaints it from the shared frame.
type Renderer struct {
	shared  *frame.SharedFrame
	surface Surface
	wake    Waiter
	opts    Options
	logger  golog.Logger

	canvas *image.RGBA
	fps    *fpsCounter
}

// NewRenderer creates a renderer for surface.
func NewRenderer(
	shared *frame.SharedFrame,
	surface Surface,
	wake Waiter,
	opts Options,
	logger golog.Logger,
) *Renderer {
	if opts.Background == (color.RGBA{}) {
		opts.Background = DefaultBackground
	}
	r := &Renderer{
		shared:  shared,
		surface: surface,
		wake:    wake,
		opts:    opts,
		logger:  logger,
	}
	if opts.FPSInterval > 0 {
		r.fps = newFPSCounter(opts.FPSInterval, time.Now())
	}
	return r
}

// Run renders once per wake-up until ctx is done or the surface closes. Any
// other surface error stops it and is returned; the renderer does not retry.
func (r *Renderer) Run(ctx context.Context) error {
	for {
		if err := r.wake.Wait(ctx); err != nil {
			return nil
		}

		presented, err := r.Render()
		if errors.Is(err, ErrSurfaceClosed) {
			r.logger.Debugw("surface closed, rendering stopped")
			return nil
		}
		if err != nil {
			return err
		}
		if presented && r.fps != nil {
			if rate, ok := r.fps.tick(time.Now()); ok {
				r.logger.Infow("render rate", "fps", fmt.Sprintf("%.1f", rate))
			}
		}
	}
}

// Render paints the current frame and presents it. Pixels outside the frame
// are filled with the background. Nothing is presented, and false is returned,
// when no frame is available or the surface has no area.
func (r *Renderer) Render() (bool, error) {
	size, err := r.surface.Size()
	if err != nil {
		return false, errors.Wrap(err, "query surface size")
	}
	if size.X <= 0 || size.Y <= 0 {
		return false, nil
	}
	r.ensureCanvas(size)

	if !r.shared.View(r.paint) {
		return false, nil
	}

	if err := r.surface.Present(r.canvas); err != nil {
		return false, errors.Wrap(err, "present surface")
	}
	return true, nil
}

func (r *Renderer) ensureCanvas(size image.Point) {
	if r.canvas != nil && r.canvas.Rect.Size() == size {
		return
	}
	r.canvas = image.NewRGBA(image.Rectangle{Max: size})
	r.logger.Debugw("canvas resized", "width", size.X, "height", size.Y)
}

// paint runs under the shared frame lock.
func (r *Renderer) paint(f frame.Frame) {
	dst := r.canvas
	cw, ch := dst.Rect.Dx(), dst.Rect.Dy()

	w, h := int(f.Width), int(f.Height)
	if stride := f.Stride(); stride > 0 && len(f.Pix)/stride < h {
		h = len(f.Pix) / stride
	}
	w = min(w, cw)
	h = min(h, ch)

	bg := r.opts.Background
	gray := r.opts.Color == ColorGray

	for y := 0; y < ch; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+cw*4]
		x := 0
		if y < h {
			src := f.Pix[f.Offset(0, y):]
			for ; x < w; x++ {
				s := src[x*frame.BytesPerPixel : x*frame.BytesPerPixel+frame.BytesPerPixel]
				d := row[x*4 : x*4+4]
				if gray {
					d[0], d[1], d[2] = s[0], s[0], s[0]
				} else {
					d[0], d[1], d[2] = s[0], s[1], s[2]
				}
				d[3] = 0xff
			}
		}
		for ; x < cw; x++ {
			d := row[x*4 : x*4+4]
			d[0], d[1], d[2], d[3] = bg.R, bg.G, bg.B, bg.A
		}
	}
}
