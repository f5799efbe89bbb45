package transport

import (
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	bufferedHighWater = 1 << 20
	bufferedLowWater  = 256 << 10
)

// outgoingChannel is the part of *webrtc.DataChannel the writer needs.
type outgoingChannel interface {
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
}

// incomingChannel is the part of *webrtc.DataChannel the reader needs.
type incomingChannel interface {
	OnMessage(f func(msg webrtc.DataChannelMessage))
	OnClose(f func())
}

// DataChannelWriter writes a byte stream over a DataChannel in chunks of at
// most MaxMessageSize. It waits while too much data is queued on the channel.
type DataChannelWriter struct {
	dc   outgoingChannel
	low  chan struct{}
	done chan struct{}
	once sync.Once
}

var _ StreamWriter = (*DataChannelWriter)(nil)

// NewDataChannelWriter wraps an open DataChannel.
func NewDataChannelWriter(dc outgoingChannel) *DataChannelWriter {
	w := &DataChannelWriter{
		dc:   dc,
		low:  make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	dc.SetBufferedAmountLowThreshold(bufferedLowWater)
	dc.OnBufferedAmountLow(func() {
		select {
		case w.low <- struct{}{}:
		default:
		}
	})
	return w
}

func (w *DataChannelWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		select {
		case <-w.done:
			return written, ErrClosed
		default:
		}

		if w.dc.BufferedAmount() > bufferedHighWater {
			select {
			case <-w.low:
			case <-w.done:
				return written, ErrClosed
			}
			continue
		}

		n := min(len(p), MaxMessageSize)
		if err := w.dc.Send(p[:n]); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Close stops pending and future writes. It does not close the channel.
func (w *DataChannelWriter) Close() error {
	w.once.Do(func() { close(w.done) })
	return nil
}

// DataChannelReader exposes the messages of a DataChannel as one byte stream.
// A message handler blocks until the stream reader has taken its bytes, so a
// slow reader slows the channel down instead of buffering without bound.
type DataChannelReader struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

var _ StreamReader = (*DataChannelReader)(nil)

// NewDataChannelReader returns a reader with no channel attached yet. Reads
// block until a channel is attached and delivers data.
func NewDataChannelReader() *DataChannelReader {
	pr, pw := io.Pipe()
	return &DataChannelReader{pr: pr, pw: pw}
}

// Attach starts delivering messages from dc. The stream ends with io.EOF when
// dc closes.
func (r *DataChannelReader) Attach(dc incomingChannel) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		// fails only once the reader side is closed
		_, _ = r.pw.Write(msg.Data)
	})
	dc.OnClose(func() {
		r.pw.Close()
	})
}

// Fail ends the stream with err.
func (r *DataChannelReader) Fail(err error) {
	r.pw.CloseWithError(err)
}

func (r *DataChannelReader) Read(p []byte) (int, error) {
	return r.pr.Read(p)
}

// Close unblocks pending reads and drops further messages.
func (r *DataChannelReader) Close() error {
	return r.pr.Close()
}
