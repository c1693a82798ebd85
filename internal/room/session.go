package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SendBufferSize is the per-session outbound queue length.
const SendBufferSize = 256

// SocketConfig holds the keepalive settings used by Session.Serve.
type SocketConfig struct {
	MaxMessageSize int64
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	return c
}

// Session is one viewer connection to a room.
//
// Send never blocks and never fails: a full queue drops the message and a
// closed session ignores it.
type Session struct {
	id   string
	send chan []byte

	mu     sync.Mutex
	closed bool

	// Diagnostics recorded from the viewer's own envelopes.
	pluginUUID    string
	locations     json.RawMessage
	locationsSeen time.Time
}

// NewSession creates a session with a fresh random id.
func NewSession() *Session {
	return &Session{
		id:   uuid.NewString(),
		send: make(chan []byte, SendBufferSize),
	}
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string {
	return s.id
}

// Send queues msg for the viewer.
func (s *Session) Send(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
		// Slow viewer, drop.
	}
}

// Close stops the session. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PluginUUID returns the identity the viewer announced in its init
// envelope, if any.
func (s *Session) PluginUUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pluginUUID
}

// Locations returns the last buttonLocationsUpdated snapshot the viewer
// sent and when it arrived.
func (s *Session) Locations() (json.RawMessage, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locations, s.locationsSeen
}

func (s *Session) notePluginUUID(id string) {
	s.mu.Lock()
	s.pluginUUID = id
	s.mu.Unlock()
}

func (s *Session) noteLocations(raw json.RawMessage) {
	s.mu.Lock()
	s.locations = append(json.RawMessage(nil), raw...)
	s.locationsSeen = time.Now()
	s.mu.Unlock()
}

// Serve pumps conn until it closes. Inbound messages go to onMessage in
// arrival order; outbound messages come from Send. Serve closes both the
// session and conn before returning.
func (s *Session) Serve(conn *websocket.Conn, cfg SocketConfig, onMessage func([]byte)) {
	cfg = cfg.withDefaults()
	done := make(chan struct{})
	go func() {
		s.writePump(conn, cfg)
		close(done)
	}()

	s.readPump(conn, cfg, onMessage)
	s.Close()
	<-done
}

func (s *Session) readPump(conn *websocket.Conn, cfg SocketConfig, onMessage func([]byte)) {
	defer conn.Close()

	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	deadline := cfg.PingInterval + cfg.PongTimeout
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		//nolint:errcheck // Any viewer traffic counts as liveness
		conn.SetReadDeadline(time.Now().Add(deadline))
		onMessage(msg)
	}
}

func (s *Session) writePump(conn *websocket.Conn, cfg SocketConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Write error caught below
			conn.SetWriteDeadline(time.Now().Add(cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Ping error caught below
			conn.SetWriteDeadline(time.Now().Add(cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
