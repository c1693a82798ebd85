package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of a WebSocket connection the bridge uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens WebSocket connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// Dial opens a connection to url.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // Handshake body is unused
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// side names one of the bridge's two sockets.
type side string

const (
	sideDevice side = "device"
	sideRemote side = "remote"
)

// socket tracks one side's current connection. gen increases on every
// dial so events from superseded connections can be ignored.
type socket struct {
	side side
	gen  uint64
	conn Conn
}

func (s *socket) open() bool {
	return s.conn != nil
}

// closeConn closes the current connection, if any.
func (s *socket) closeConn() {
	if s.conn != nil {
		s.conn.Close() //nolint:errcheck // Socket is being discarded
		s.conn = nil
	}
}

// closeCode extracts the WebSocket close code from a read error.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
