// Package decoder reads a stream of binary PPM (P6) frames into a shared frame
// slot and signals when each one is complete.
package decoder

import (
	"bufio"
	"context"
	"io"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/junsooki/ppmview/internal/frame"
)

// DefaultMaxFrameBytes caps a single payload. A header asking for more is
// treated like a failed allocation.
const DefaultMaxFrameBytes = 256 << 20

const readBufferSize = 65535

// Notifier is told once per decoded frame.
type Notifier interface {
	Notify()
}

// Options tune a StreamDecoder.
type Options struct {
	// MaxFrameBytes is the largest payload accepted. Zero means DefaultMaxFrameBytes.
	MaxFrameBytes int64
}

// StreamDecoder decodes frames from a byte stream into a SharedFrame.
type StreamDecoder struct {
	r        *bufio.Reader
	shared   *frame.SharedFrame
	notifier Notifier
	logger   golog.Logger

	maxFrameBytes int64
	frames        uint64
}

// NewStreamDecoder creates a decoder reading from r.
func NewStreamDecoder(
	r io.Reader,
	shared *frame.SharedFrame,
	notifier Notifier,
	opts Options,
	logger golog.Logger,
) *StreamDecoder {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	return &StreamDecoder{
		r:             bufio.NewReaderSize(r, readBufferSize),
		shared:        shared,
		notifier:      notifier,
		logger:        logger,
		maxFrameBytes: opts.MaxFrameBytes,
	}
}

// Frames returns how many frames have been decoded.
func (d *StreamDecoder) Frames() uint64 {
	return d.frames
}

// Next decodes one frame and notifies. The header is parsed before the shared
// slot is touched, so a bad header leaves the previous frame in place. It
// returns io.EOF when the stream ends between frames.
func (d *StreamDecoder) Next() error {
	hdr, err := ReadHeader(d.r)
	if err != nil {
		return err
	}

	n, err := hdr.PayloadLen(d.maxFrameBytes)
	if err != nil {
		return err
	}

	reallocated, err := d.shared.Fill(hdr.Width, hdr.Height, n, func(buf []byte) error {
		read, err := io.ReadFull(d.r, buf)
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			return errors.Wrapf(ErrShortRead, "read %d instead of %d", read, n)
		case err != nil:
			return errors.Wrap(err, "read payload")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if reallocated {
		d.logger.Debugw("frame buffer resized", "bytes", n, "width", hdr.Width, "height", hdr.Height)
	}

	d.frames++
	d.notifier.Notify()
	return nil
}

// Run decodes frames until the stream ends or a frame fails to decode. A clean
// end of stream, or ctx being done, returns nil. Any other error is returned and
// the shared slot keeps its last complete frame, unless the failure happened
// halfway through a payload.
func (d *StreamDecoder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := d.Next()
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == io.EOF {
			d.logger.Infow("end of stream", "frames", d.frames)
			return nil
		}
		return errors.Wrapf(err, "decode frame %d", d.frames+1)
	}
}
