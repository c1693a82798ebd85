package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testWait = 2 * time.Second

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// MockConn implements Conn. Tests push inbound frames with Deliver and
// read what the bridge wrote with Next.
type MockConn struct {
	url     string
	in      chan []byte
	wrote   chan []byte
	closed  chan struct{}
	closeMu sync.Once
}

func newMockConn(url string) *MockConn {
	return &MockConn{
		url:    url,
		in:     make(chan []byte, 16),
		wrote:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *MockConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.in:
		return websocket.TextMessage, msg, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *MockConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("mock: write on closed conn")
	default:
	}
	select {
	case c.wrote <- append([]byte(nil), data...):
	default:
	}
	return nil
}

func (c *MockConn) SetWriteDeadline(time.Time) error { return nil }

func (c *MockConn) Close() error {
	c.closeMu.Do(func() { close(c.closed) })
	return nil
}

func (c *MockConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Deliver queues msg as if the peer had sent it.
func (c *MockConn) Deliver(msg string) {
	c.in <- []byte(msg)
}

// Next returns the next frame the bridge wrote, decoded.
func (c *MockConn) Next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case raw := <-c.wrote:
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("bridge wrote invalid JSON %q: %v", raw, err)
		}
		return m
	case <-time.After(testWait):
		t.Fatalf("timed out waiting for a write to %s", c.url)
		return nil
	}
}

// ExpectNone fails if the bridge writes anything within a short window.
func (c *MockConn) ExpectNone(t *testing.T) {
	t.Helper()
	select {
	case raw := <-c.wrote:
		t.Fatalf("unexpected write to %s: %s", c.url, raw)
	case <-time.After(50 * time.Millisecond):
	}
}

// MockDialer implements Dialer.
type MockDialer struct {
	mu    sync.Mutex
	urls  []string
	fail  func(url string) error
	hold  map[int]chan struct{}
	conns chan *MockConn
}

func NewMockDialer() *MockDialer {
	return &MockDialer{
		hold:  make(map[int]chan struct{}),
		conns: make(chan *MockConn, 16),
	}
}

// Hold makes the n-th dial (1-based) wait until the returned channel is
// closed.
func (d *MockDialer) Hold(n int) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.hold[n] = ch
	return ch
}

func (d *MockDialer) SetFail(fail func(url string) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *MockDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	n := len(d.urls)
	hold := d.hold[n]
	fail := d.fail
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(url); err != nil {
			return nil, err
		}
	}
	conn := newMockConn(url)
	d.conns <- conn
	return conn, nil
}

func (d *MockDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Next returns the next successfully dialled connection.
func (d *MockDialer) Next(t *testing.T) *MockConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(testWait):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

// MockClock replaces time.AfterFunc. Timers only fire through Fire.
type MockClock struct {
	mu         sync.Mutex
	timers     []*mockTimer
	maxPending int
}

type mockTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *MockClock) after(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	if p := c.pendingLocked(); p > c.maxPending {
		c.maxPending = p
	}
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		active := !t.stopped && !t.fired
		t.stopped = true
		return active
	}
}

func (c *MockClock) pendingLocked() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Pending returns the number of armed timers.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// Created returns how many timers have been armed in total.
func (c *MockClock) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// MaxPending returns the most timers ever armed at once.
func (c *MockClock) MaxPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPending
}

// LastDelay returns the delay of the most recent timer.
func (c *MockClock) LastDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return 0
	}
	return c.timers[len(c.timers)-1].delay
}

// Fire runs every armed timer.
func (c *MockClock) Fire() {
	c.mu.Lock()
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
