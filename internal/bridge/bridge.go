package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Bridge defaults.
const (
	defaultWriteTimeout = 10 * time.Second
	eventQueueSize      = 64
)

// Logger is the logging interface used by the bridge.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Bridge. Port, PluginUUID and RegisterEvent are
// the values the device software passes on launch.
type Options struct {
	// Port is the device software's local WebSocket port. Required.
	Port int

	// PluginUUID identifies this plugin instance to the device software
	// and the room. Required.
	PluginUUID string

	// RegisterEvent is the event name used to register with the device
	// software. Required.
	RegisterEvent string

	// Logger for bridge events. Required.
	Logger Logger

	// Dialer opens both sockets. Defaults to WebSocketDialer{}.
	Dialer Dialer

	// ReconnectDelay is the wait before redialling the room after its
	// socket closes. Defaults to 5s.
	ReconnectDelay time.Duration

	// WriteTimeout bounds each socket write. Defaults to 10s.
	WriteTimeout time.Duration

	// after replaces time.AfterFunc in tests.
	after afterFunc
}

// Bridge relays between the device software and a room.
//
// The bridge keeps two sockets: one to the device software on
// 127.0.0.1, one to the room named by the global settings. It mirrors
// button placement in a Locations store, forwards device traffic to the
// room, and relays room messages back to the device, resolving
// position-addressed messages to a button context.
//
// Thread Safety: the exported methods are safe for concurrent use. All
// socket writes and state changes happen on a single event loop
// goroutine; readers, dials and timers only post events to it.
//
// The room socket is redialled a fixed delay after it closes, without
// limit. The device socket is not redialled: when it closes the bridge
// clears its button store and DeviceDisconnected is closed.
type Bridge struct {
	opts   Options
	dialer Dialer
	logger Logger

	events chan any

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	started   atomic.Bool
	stopOnce  sync.Once

	deviceGone chan struct{}

	// Event loop state.
	locations  *Locations
	settings   GlobalSettings
	device     socket
	remote     socket
	reconnect  reconnectTimer
	deviceDown bool
}

// Events posted to the loop.
type (
	dialedEvent struct {
		side side
		gen  uint64
		conn Conn
		err  error
	}
	messageEvent struct {
		side side
		gen  uint64
		data []byte
	}
	closedEvent struct {
		side side
		gen  uint64
		err  error
	}
	reconnectEvent struct {
		seq uint64
	}
	callEvent struct {
		fn   func()
		done chan struct{}
	}
)

// New creates a bridge. Call Start to connect to the device software.
func New(opts Options) (*Bridge, error) {
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", opts.Port)
	}
	if opts.PluginUUID == "" {
		return nil, fmt.Errorf("plugin uuid is required")
	}
	if opts.RegisterEvent == "" {
		return nil, fmt.Errorf("register event is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.after == nil {
		opts.after = timeAfterFunc
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		opts:       opts,
		dialer:     opts.Dialer,
		logger:     opts.Logger,
		events:     make(chan any, eventQueueSize),
		ctx:        ctx,
		ctxCancel:  cancel,
		deviceGone: make(chan struct{}),
		locations:  NewLocations(),
		device:     socket{side: sideDevice},
		remote:     socket{side: sideRemote},
		reconnect:  reconnectTimer{after: opts.after, delay: opts.ReconnectDelay},
	}, nil
}

// Start runs the event loop and connects to the device software. The
// bridge stops when ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if b.ctx.Err() != nil {
		return ErrStopped
	}

	b.wg.Add(1)
	go b.loop(ctx)

	b.logger.Info("deck bridge started", "port", b.opts.Port, "plugin_uuid", b.opts.PluginUUID)
	return nil
}

// Stop closes both sockets and waits for every goroutine to exit.
// Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.wg.Wait()
		b.drain()
		b.logger.Info("deck bridge stopped")
	})
}

// DeviceDisconnected is closed once the device socket has closed or
// could not be opened.
func (b *Bridge) DeviceDisconnected() <-chan struct{} {
	return b.deviceGone
}

// Settings returns the current global settings.
func (b *Bridge) Settings() (GlobalSettings, error) {
	var s GlobalSettings
	err := b.call(func() { s = b.settings })
	return s, err
}

// Locations returns the button store as JSON.
func (b *Bridge) Locations() (json.RawMessage, error) {
	var (
		raw    json.RawMessage
		encErr error
	)
	if err := b.call(func() { raw, encErr = json.Marshal(b.locations) }); err != nil {
		return nil, err
	}
	return raw, encErr
}

// ConnectToRemote switches the room socket to url and key, applying the
// defaults for empty values, and persists the new settings.
func (b *Bridge) ConnectToRemote(url, key string) error {
	return b.call(func() {
		var p globalSettingsPayload
		p.Settings.URL, p.Settings.Key = url, key
		b.applySettings(settingsFrom(p))
	})
}

// call runs fn on the event loop and waits for it.
func (b *Bridge) call(fn func()) error {
	if !b.started.Load() {
		return ErrNotStarted
	}
	ev := callEvent{fn: fn, done: make(chan struct{})}
	if !b.post(ev) {
		return ErrStopped
	}
	select {
	case <-ev.done:
		return nil
	case <-b.ctx.Done():
		return ErrStopped
	}
}

// post hands ev to the loop. It reports false once the bridge is stopping.
func (b *Bridge) post(ev any) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.ctx.Done():
		return false
	}
}

// drain closes connections from dials that completed after the loop
// exited.
func (b *Bridge) drain() {
	for {
		select {
		case ev := <-b.events:
			if d, ok := ev.(dialedEvent); ok && d.conn != nil {
				d.conn.Close() //nolint:errcheck // Bridge is stopped
			}
		default:
			return
		}
	}
}

func (b *Bridge) loop(parent context.Context) {
	defer b.wg.Done()
	defer b.shutdown()

	b.connectDevice()

	for {
		select {
		case <-parent.Done():
			return
		case <-b.ctx.Done():
			return
		case ev := <-b.events:
			b.handle(ev)
		}
	}
}

func (b *Bridge) shutdown() {
	b.ctxCancel()
	b.reconnect.cancel()
	b.remote.closeConn()
	b.device.closeConn()
	b.locations.Reset()
	b.markDeviceGone()
}

func (b *Bridge) handle(ev any) {
	switch ev := ev.(type) {
	case dialedEvent:
		b.handleDialed(ev)
	case messageEvent:
		s := b.socketFor(ev.side)
		if ev.gen != s.gen || !s.open() {
			return
		}
		if ev.side == sideDevice {
			b.handleDeviceMessage(ev.data)
		} else {
			b.handleRemoteMessage(ev.data)
		}
	case closedEvent:
		s := b.socketFor(ev.side)
		if ev.gen != s.gen || !s.open() {
			return
		}
		s.closeConn()
		b.handleClosed(s, ev.err)
	case reconnectEvent:
		if b.reconnect.due(ev.seq) {
			b.connectRemote()
		}
	case callEvent:
		ev.fn()
		close(ev.done)
	}
}

func (b *Bridge) socketFor(sd side) *socket {
	if sd == sideDevice {
		return &b.device
	}
	return &b.remote
}

// dial starts a new connection attempt for s, superseding any earlier one.
func (b *Bridge) dial(s *socket, url string) {
	s.gen++
	sd, gen := s.side, s.gen

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		conn, err := b.dialer.Dial(b.ctx, url)
		if !b.post(dialedEvent{side: sd, gen: gen, conn: conn, err: err}) && conn != nil {
			conn.Close() //nolint:errcheck // Bridge is stopping
		}
	}()
}

func (b *Bridge) handleDialed(ev dialedEvent) {
	s := b.socketFor(ev.side)
	if ev.gen != s.gen {
		if ev.conn != nil {
			ev.conn.Close() //nolint:errcheck // Superseded dial
		}
		return
	}
	if ev.err != nil {
		b.logger.Warn("socket dial failed", "socket", string(ev.side), "error", ev.err)
		b.handleClosed(s, ev.err)
		return
	}

	s.conn = ev.conn
	b.wg.Add(1)
	go b.read(s.side, s.gen, ev.conn)

	if s.side == sideDevice {
		b.deviceOpened()
	} else {
		b.remoteOpened()
	}
}

// read pumps conn into the loop until it fails.
func (b *Bridge) read(sd side, gen uint64, conn Conn) {
	defer b.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.post(closedEvent{side: sd, gen: gen, err: err})
			return
		}
		if !b.post(messageEvent{side: sd, gen: gen, data: data}) {
			return
		}
	}
}

func (b *Bridge) handleClosed(s *socket, err error) {
	if s.side == sideDevice {
		b.logger.Warn("device connection closed", "code", closeCode(err))
		b.locations.Reset()
		b.markDeviceGone()
		return
	}

	b.logger.Warn("room connection closed", "code", closeCode(err), "retry_in", b.opts.ReconnectDelay)
	b.setConnected(false)
	b.reconnect.schedule(func(seq uint64) {
		b.post(reconnectEvent{seq: seq})
	})
}

func (b *Bridge) markDeviceGone() {
	if !b.deviceDown {
		b.deviceDown = true
		close(b.deviceGone)
	}
}

// Device side.

func (b *Bridge) connectDevice() {
	url := "ws://127.0.0.1:" + strconv.Itoa(b.opts.Port)
	b.logger.Info("connecting to device software", "url", url)
	b.dial(&b.device, url)
}

func (b *Bridge) deviceOpened() {
	b.logger.Info("connected to device software")
	b.locations.Reset()

	register, err := registerMessage(b.opts.RegisterEvent, b.opts.PluginUUID)
	if err != nil {
		b.logger.Error("encoding register message", "error", err)
		return
	}
	b.sendDevice(register)

	get, err := getGlobalSettingsMessage(b.opts.PluginUUID)
	if err != nil {
		b.logger.Error("encoding settings request", "error", err)
		return
	}
	b.sendDevice(get)
}

func (b *Bridge) handleDeviceMessage(data []byte) {
	msg, err := parseDeviceMessage(data)
	if err != nil {
		b.logger.Warn("ignoring device message", "error", err)
		return
	}

	if msg.Device != "" && msg.DeviceInfo != nil {
		size := msg.DeviceInfo.Size
		if b.locations.AddDevice(msg.Device, size.Rows, size.Columns) {
			b.logger.Debug("device added", "device", msg.Device, "rows", size.Rows, "columns", size.Columns)
		}
	}

	if err := b.applyButtonEvent(msg); err != nil {
		b.logger.Debug("button locations not updated", "event", msg.Event, "error", err)
	}
	if changesLocations(msg.Event) {
		b.sendLocations()
	}

	if msg.Event == EventDidReceiveGlobalSettings {
		b.applySettings(settingsFrom(msg.globalSettings()))
	}

	b.sendRemote(TypeRawSD, json.RawMessage(data))
}

func (b *Bridge) applyButtonEvent(msg deviceMessage) error {
	if !changesLocations(msg.Event) {
		return nil
	}
	p, err := msg.buttonPayload()
	if err != nil {
		return err
	}
	c := *p.Coordinates

	switch msg.Event {
	case EventWillAppear:
		if msg.Context == "" {
			return fmt.Errorf("%w: willAppear without context", ErrInvalidMessage)
		}
		return b.locations.Place(msg.Device, c, ButtonHandle{
			Context:         msg.Context,
			Action:          msg.Action,
			IsInMultiAction: p.IsInMultiAction,
		})
	case EventWillDisappear:
		return b.locations.Remove(msg.Device, c)
	default:
		return b.locations.UpdateTitle(msg.Device, c, p.Title, p.TitleParameters, p.State)
	}
}

// applySettings stores s with connected=false, persists it to the device
// software and redials the room.
func (b *Bridge) applySettings(s GlobalSettings) {
	s.Connected = false
	b.settings = s
	b.persistSettings()
	b.connectRemote()
}

func (b *Bridge) setConnected(connected bool) {
	b.settings.Connected = connected
	b.persistSettings()
}

func (b *Bridge) persistSettings() {
	msg, err := setGlobalSettingsMessage(b.opts.PluginUUID, b.settings)
	if err != nil {
		b.logger.Error("encoding global settings", "error", err)
		return
	}
	b.sendDevice(msg)
}

// sendDevice writes msg to the device socket if it is open.
func (b *Bridge) sendDevice(msg []byte) {
	b.write(&b.device, msg)
}

// Room side.

func (b *Bridge) connectRemote() {
	b.reconnect.cancel()
	b.remote.closeConn()
	if b.settings.URL == "" {
		return
	}
	b.logger.Info("connecting to room", "url", b.settings.URL, "key", b.settings.Key)
	b.dial(&b.remote, b.settings.RemoteURL())
}

func (b *Bridge) remoteOpened() {
	b.logger.Info("connected to room", "url", b.settings.URL)
	b.sendRemote(TypeInit, map[string]string{"pluginUUID": b.opts.PluginUUID})
	b.sendLocations()
	b.setConnected(true)
}

func (b *Bridge) handleRemoteMessage(data []byte) {
	out, ok, err := resolveTarget(data, b.locations)
	if err != nil {
		b.logger.Warn("ignoring room message", "error", err)
		return
	}
	if !ok {
		b.logger.Debug("no button at target, room message dropped")
		return
	}
	b.sendDevice(out)
}

func (b *Bridge) sendLocations() {
	b.sendRemote(TypeButtonLocationsUpdated, map[string]any{"buttonLocations": b.locations})
}

// sendRemote writes a {type, data} envelope to the room socket if it is
// open.
func (b *Bridge) sendRemote(typ string, data any) {
	if !b.remote.open() {
		return
	}
	msg, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		b.logger.Error("encoding room message", "type", typ, "error", err)
		return
	}
	b.write(&b.remote, msg)
}

func (b *Bridge) write(s *socket, msg []byte) {
	if !s.open() {
		b.logger.Debug("socket not open, message dropped", "socket", string(s.side))
		return
	}
	//nolint:errcheck // Write error caught below
	s.conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		// The reader sees the failure and reports the close.
		b.logger.Warn("socket write failed", "socket", string(s.side), "error", err)
	}
}
