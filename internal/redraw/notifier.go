// Package redraw wakes the renderer when a new frame may be available.
package redraw

import "context"

// Notifier is a one-slot, payload-free wake-up. Notify never blocks; any number
// of calls made before the receiver wakes collapse into one.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier returns an idle notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify marks the notifier pending. It is safe from any goroutine.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives one value per pending wake-up.
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}

// Wait blocks until the notifier is pending or ctx is done, and clears it.
func (n *Notifier) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.ch:
		return nil
	}
}
