package transport

import (
	"context"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const closeTimeout = time.Second

// WebSocketReader concatenates the text and binary messages of a WebSocket
// connection into one byte stream. A normal close from the peer reads as io.EOF.
type WebSocketReader struct {
	conn *websocket.Conn
	cur  io.Reader
}

var _ StreamReader = (*WebSocketReader)(nil)

// DialWebSocket connects to url and returns its message stream.
func DialWebSocket(ctx context.Context, url string) (*WebSocketReader, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewWebSocketReader(conn), nil
}

// NewWebSocketReader wraps an established connection.
func NewWebSocketReader(conn *websocket.Conn) *WebSocketReader {
	return &WebSocketReader{conn: conn}
}

func (r *WebSocketReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			_, rd, err := r.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			r.cur = rd
		}

		n, err := r.cur.Read(p)
		if err == io.EOF {
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Close says goodbye to the peer and closes the connection.
func (r *WebSocketReader) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	return multierr.Combine(err, r.conn.Close())
}
