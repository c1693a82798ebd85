package room

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSession_SendAfterCloseIsNoop(t *testing.T) {
	s := NewSession()
	s.Close()
	s.Close()

	s.Send([]byte("late"))

	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestSession_FullQueueDrops(t *testing.T) {
	s := NewSession()
	for i := 0; i < SendBufferSize+10; i++ {
		s.Send([]byte("x"))
	}
	if got := len(s.send); got != SendBufferSize {
		t.Errorf("queued %d messages, want %d", got, SendBufferSize)
	}
}

func TestSession_UniqueIDs(t *testing.T) {
	a, b := NewSession(), NewSession()
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs %q and %q should be distinct and non-empty", a.ID(), b.ID())
	}
}

func TestSession_ServeRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	s := NewSession()
	received := make(chan string, 4)
	served := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		s.Serve(conn, SocketConfig{MaxMessageSize: 1024}, func(msg []byte) {
			received <- string(msg)
		})
		close(served)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-received:
		if got != "hello" {
			t.Errorf("received %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message not delivered")
	}

	s.Send([]byte("world"))
	client.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(msg) != "world" {
		t.Errorf("outbound = %q, want world", msg)
	}

	client.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the peer closed")
	}
	if !s.Closed() {
		t.Error("session not closed after Serve returned")
	}
}
