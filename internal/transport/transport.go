// Package transport turns message-oriented connections into the plain byte
// stream the frame decoder reads, and back.
package transport

import (
	"io"

	"github.com/pkg/errors"
)

// MaxMessageSize is the largest chunk written as one message. Larger writes are
// split; receivers reassemble by concatenation.
const MaxMessageSize = 16 << 10

// ErrClosed is returned by writers after Close.
var ErrClosed = errors.New("transport closed")

// StreamReader is a byte stream assembled from incoming messages.
type StreamReader interface {
	io.ReadCloser
}

// StreamWriter splits a byte stream into outgoing messages.
type StreamWriter interface {
	io.WriteCloser
}
