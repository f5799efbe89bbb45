// Package display puts rendered frames in a desktop window.
package display

import (
	"github.com/junsooki/ppmview/internal/render"
)

// ErrClosed is returned by surface calls once the window has gone away.
var ErrClosed = render.ErrSurfaceClosed

// Display runs a window until it is closed by the user or by Close.
type Display interface {
	render.Surface
	Run() error
	Close()
}

var _ Display = (*EbitenDisplay)(nil)
