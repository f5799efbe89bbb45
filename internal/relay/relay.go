// Package relay forwards the latest decoded frame to a remote viewer. It is the
// sender-side counterpart of the renderer: it wakes on the same kind of
// notification and drops frames the link cannot keep up with.
package relay

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/junsooki/ppmview/internal/decoder"
	"github.com/junsooki/ppmview/internal/frame"
)

// relayMaxVal is written as the bit depth of every relayed frame. The value is
// not stored by the shared frame and viewers do not interpret it.
const relayMaxVal = 255

// Wakeup is both ends of a coalescing notification.
type Wakeup interface {
	Notify()
	Wait(ctx context.Context) error
}

// Relay writes re-encoded frames to the current sink.
type Relay struct {
	shared *frame.SharedFrame
	wake   Wakeup
	logger golog.Logger

	mu      sync.Mutex
	sink    io.WriteCloser
	lastSeq uint64

	out  bytes.Buffer
	sent uint64
}

// New creates a relay reading from shared.
func New(shared *frame.SharedFrame, wake Wakeup, logger golog.Logger) *Relay {
	return &Relay{
		shared: shared,
		wake:   wake,
		logger: logger,
	}
}

// SetSink replaces the destination and closes the previous one. The current
// frame is sent to the new sink straight away, so a viewer that joins late
// starts on a frame boundary.
func (r *Relay) SetSink(w io.WriteCloser) {
	r.mu.Lock()
	old := r.sink
	r.sink = w
	r.lastSeq = 0
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Debugw("close previous sink", "error", err)
		}
	}
	r.wake.Notify()
}

// ClearSink removes w if it is still the current sink.
func (r *Relay) ClearSink(w io.WriteCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == w {
		r.sink = nil
	}
}

// Sent returns how many frames were written.
func (r *Relay) Sent() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Run forwards frames until ctx is done. A failing sink is dropped and the
// relay waits for a new one.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if err := r.wake.Wait(ctx); err != nil {
			return nil
		}

		sink, err := r.sendLatest()
		if err != nil {
			r.logger.Warnw("relay write failed, dropping viewer", "error", err)
			r.ClearSink(sink)
			if cerr := sink.Close(); cerr != nil {
				r.logger.Debugw("close failed sink", "error", cerr)
			}
		}
	}
}

// sendLatest writes the current frame if the sink has not seen it yet. It
// returns the sink it used so a failure drops the right one.
func (r *Relay) sendLatest() (io.WriteCloser, error) {
	r.mu.Lock()
	sink := r.sink
	lastSeq := r.lastSeq
	r.mu.Unlock()
	if sink == nil {
		return nil, nil
	}

	var seq uint64
	r.out.Reset()
	r.shared.View(func(f frame.Frame) {
		if f.Seq == lastSeq {
			return
		}
		seq = f.Seq
		hdr := decoder.Header{Width: f.Width, Height: f.Height, MaxVal: relayMaxVal}
		// writes to a bytes.Buffer do not fail
		_, _ = hdr.WriteTo(&r.out)
		r.out.WriteByte('\n')
		r.out.Write(f.Pix)
	})
	if seq == 0 {
		return sink, nil
	}

	if _, err := sink.Write(r.out.Bytes()); err != nil {
		return sink, errors.Wrapf(err, "write frame %d", seq)
	}

	// a sink swapped out during the write does not count
	r.mu.Lock()
	if r.sink == sink {
		r.lastSeq = seq
		r.sent++
	}
	r.mu.Unlock()
	return sink, nil
}
