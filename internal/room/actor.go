package room

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/deckrelay/internal/button"
)

// Envelope types sent by the bridge.
const (
	TypeInit                   = "init"
	TypeButtonLocationsUpdated = "buttonLocationsUpdated"
	TypeRawSD                  = "rawSD"
	TypeSetButton              = "setButton"
)

// Device events the room reacts to inside a rawSD envelope.
const (
	eventWillAppear = "willAppear"
	eventKeyUp      = "keyUp"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// deviceEvent is the part of a raw device event the room reads.
type deviceEvent struct {
	Event   string `json:"event"`
	Context string `json:"context"`
	Device  string `json:"device"`
	Payload struct {
		Coordinates *button.Coordinate `json:"coordinates"`
	} `json:"payload"`
}

// Commands processed on the actor goroutine.
type (
	updateCmd struct {
		ctx    context.Context
		update button.Update
		reply  chan error
	}

	joinCmd struct {
		session *Session
		reply   chan error
	}

	leaveCmd struct {
		session *Session
	}

	messageCmd struct {
		session *Session
		data    []byte
	}

	// fetchDoneCmd carries the result of a fetch or fetchEvents call
	// back onto the actor goroutine.
	fetchDoneCmd struct {
		origin  *Session
		coord   button.Coordinate
		kind    button.Kind
		events  []button.EventSpec
		err     error
		refresh *refresher
	}

	refreshCmd struct {
		coord button.Coordinate
		r     *refresher
	}

	evictCmd struct {
		now   time.Time
		idle  time.Duration
		reply chan bool
	}
)

// actorDeps is shared by every actor of a registry.
type actorDeps struct {
	repo         button.Repository
	fetcher      Fetcher
	observer     Observer
	logger       Logger
	fetchTimeout time.Duration
	now          func() time.Time
}

// Actor serialises all work for one identity.
//
// Thread Safety: exported methods are safe for concurrent use. Everything
// else runs on the actor goroutine.
type Actor struct {
	identity string
	deps     actorDeps
	logger   Logger

	cmds   chan any
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	pending int // submitted but not yet dequeued

	// Owned by the actor goroutine.
	sessions   map[string]*Session
	lastActive time.Time
	inflight   int
	refreshers map[button.Coordinate]*refresher
}

func newActor(parent context.Context, identity string, deps actorDeps, queueSize int) *Actor {
	ctx, cancel := context.WithCancel(parent)
	a := &Actor{
		identity:   identity,
		deps:       deps,
		logger:     identityLogger{l: deps.logger, identity: identity},
		cmds:       make(chan any, queueSize),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*Session),
		lastActive: deps.now(),
		refreshers: make(map[button.Coordinate]*refresher),
	}
	go a.run()
	return a
}

// Identity returns the device-group identity this actor serves.
func (a *Actor) Identity() string {
	return a.identity
}

// Done is closed once the actor has stopped.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Update applies a validated POST or PATCH and waits for it to be
// persisted.
func (a *Actor) Update(ctx context.Context, u button.Update) error {
	reply := make(chan error, 1)
	if err := a.submit(updateCmd{ctx: ctx, update: u, reply: reply}); err != nil {
		return err
	}
	return a.await(ctx, reply)
}

// Join adds s to the room. While s is joined the actor is not evicted.
func (a *Actor) Join(ctx context.Context, s *Session) error {
	reply := make(chan error, 1)
	if err := a.submit(joinCmd{session: s, reply: reply}); err != nil {
		return err
	}
	return a.await(ctx, reply)
}

// Leave removes s from the room.
func (a *Actor) Leave(s *Session) {
	_ = a.submit(leaveCmd{session: s}) //nolint:errcheck // A stopped actor has no sessions to remove
}

// Deliver queues a message received from s.
func (a *Actor) Deliver(s *Session, data []byte) {
	_ = a.submit(messageCmd{session: s, data: data}) //nolint:errcheck // Dropped if the actor is stopping
}

func (a *Actor) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-a.done:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit enqueues c. Once the actor has stopped, or decided to stop,
// submit fails with ErrActorStopped and c is never seen.
func (a *Actor) submit(c any) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrActorStopped
	}
	a.pending++
	a.mu.Unlock()

	select {
	case a.cmds <- c:
		return nil
	case <-a.ctx.Done():
		a.mu.Lock()
		a.pending--
		a.mu.Unlock()
		return ErrActorStopped
	}
}

// tryEvict asks the actor to stop if it has been idle for idle at now.
func (a *Actor) tryEvict(now time.Time, idle time.Duration) bool {
	reply := make(chan bool, 1)
	if err := a.submit(evictCmd{now: now, idle: idle, reply: reply}); err != nil {
		return true
	}
	select {
	case evicted := <-reply:
		return evicted
	case <-a.done:
		return true
	}
}

func (a *Actor) run() {
	defer a.shutdown()

	for {
		select {
		case <-a.ctx.Done():
			return
		case c := <-a.cmds:
			a.mu.Lock()
			a.pending--
			a.mu.Unlock()

			if a.handle(c) {
				return
			}
		}
	}
}

func (a *Actor) shutdown() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	a.cancel()
	for c, r := range a.refreshers {
		r.halt()
		delete(a.refreshers, c)
	}
	for id, s := range a.sessions {
		s.Close()
		delete(a.sessions, id)
	}
	close(a.done)
	a.logger.Debug("room actor stopped")
}

// handle runs one command and reports whether the actor should stop.
func (a *Actor) handle(c any) bool {
	switch c := c.(type) {
	case updateCmd:
		a.touch()
		c.reply <- a.handleUpdate(c.ctx, c.update)
	case joinCmd:
		a.touch()
		a.sessions[c.session.ID()] = c.session
		a.logger.Debug("viewer joined", "session", c.session.ID(), "sessions", len(a.sessions))
		c.reply <- nil
	case leaveCmd:
		a.touch()
		delete(a.sessions, c.session.ID())
		a.logger.Debug("viewer left", "session", c.session.ID(), "sessions", len(a.sessions))
	case messageCmd:
		a.touch()
		a.handleMessage(c.session, c.data)
	case fetchDoneCmd:
		a.touch()
		a.handleFetchDone(c)
	case refreshCmd:
		a.handleRefresh(c)
	case evictCmd:
		evict := a.shouldEvict(c.now, c.idle)
		c.reply <- evict
		return evict
	}
	return false
}

func (a *Actor) touch() {
	a.lastActive = a.deps.now()
}

func (a *Actor) shouldEvict(now time.Time, idle time.Duration) bool {
	if len(a.sessions) > 0 || a.inflight > 0 || now.Sub(a.lastActive) < idle {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending > 0 {
		return false
	}
	a.stopped = true
	return true
}

func (a *Actor) handleUpdate(ctx context.Context, u button.Update) error {
	existing := button.Default(u.Coordinate())
	if u.Method == http.MethodPatch {
		var err error
		if existing, err = button.Load(ctx, a.deps.repo, a.identity, u.Coordinate()); err != nil {
			return err
		}
	}

	merged, err := button.Merge(existing, u)
	if err != nil {
		return err
	}

	a.pushConfig(nil, u.Config)
	return a.save(ctx, merged)
}

func (a *Actor) handleMessage(s *Session, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.logger.Debug("ignoring malformed viewer message", "session", s.ID(), "error", err)
		return
	}

	switch env.Type {
	case TypeRawSD:
		a.handleDeviceEvent(s, env.Data)
	case TypeSetButton:
		u, err := button.DecodeUpdate(http.MethodPost, env.Data)
		if err != nil {
			a.logger.Warn("rejecting setButton", "session", s.ID(), "error", err)
			return
		}
		if err := a.handleUpdate(a.ctx, u); err != nil {
			a.logger.Error("setButton failed", "session", s.ID(), "error", err)
		}
	case TypeInit:
		var hello struct {
			PluginUUID string `json:"pluginUUID"`
		}
		if err := json.Unmarshal(env.Data, &hello); err == nil {
			s.notePluginUUID(hello.PluginUUID)
		}
	case TypeButtonLocationsUpdated:
		var snap struct {
			ButtonLocations json.RawMessage `json:"buttonLocations"`
		}
		if err := json.Unmarshal(env.Data, &snap); err == nil {
			s.noteLocations(snap.ButtonLocations)
		}
	}
}

func (a *Actor) handleDeviceEvent(s *Session, data json.RawMessage) {
	var ev deviceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		a.logger.Debug("ignoring malformed device event", "session", s.ID(), "error", err)
		return
	}
	if ev.Event != eventWillAppear && ev.Event != eventKeyUp {
		return
	}
	if ev.Payload.Coordinates == nil {
		a.logger.Debug("device event without coordinates", "event", ev.Event, "context", ev.Context)
		return
	}
	coord := *ev.Payload.Coordinates

	cfg, err := button.Load(a.ctx, a.deps.repo, a.identity, coord)
	if err != nil {
		a.logger.Error("loading button config", "coordinates", coord.String(), "error", err)
		return
	}
	a.syncRefresh(cfg)

	switch ev.Event {
	case eventWillAppear:
		a.pushConfig(s, cfg)
	case eventKeyUp:
		a.deps.observer.KeyPressed(a.identity, coord, len(cfg.Events))
		a.execute(s, PlanLocal(true, cfg), nil)
	}
}

func (a *Actor) handleFetchDone(c fetchDoneCmd) {
	a.inflight--
	if c.refresh != nil {
		c.refresh.busy = false
	}

	if c.err != nil {
		a.logger.Debug("fetch failed", "kind", c.kind.String(), "coordinates", c.coord.String(), "error", c.err)
		a.deps.observer.FetchFailed(a.identity, c.kind, c.err)
		return
	}
	if c.kind != button.KindFetchEvents || len(c.events) == 0 {
		return
	}

	// Read again: the config may have changed while the call was out.
	cfg, err := button.Load(a.ctx, a.deps.repo, a.identity, c.coord)
	if err != nil {
		a.logger.Error("loading button config", "coordinates", c.coord.String(), "error", err)
		return
	}
	a.execute(c.origin, PlanRemote(c.origin != nil, cfg, c.events), nil)
}

// execute carries out p. Unicast deliveries go to origin; a nil origin
// turns them into broadcasts.
func (a *Actor) execute(origin *Session, p Plan, refresh *refresher) {
	coord := p.Config.Coordinates

	for _, d := range p.Deliveries {
		msg, err := encodeEvent(d.Event, coord)
		if err != nil {
			a.logger.Error("encoding event", "event", d.Event.Name(), "error", err)
			continue
		}
		if d.Broadcast || origin == nil {
			a.broadcast(msg)
		} else {
			origin.Send(msg)
		}
	}

	for _, f := range p.Fetches {
		a.startFetch(origin, coord, f, refresh)
	}

	if p.Dirty {
		if err := a.save(a.ctx, p.Config); err != nil {
			a.logger.Error("saving button config", "coordinates", coord.String(), "error", err)
		}
	}
}

// startFetch runs f off the actor goroutine and posts the result back.
func (a *Actor) startFetch(origin *Session, coord button.Coordinate, f Fetch, refresh *refresher) {
	kind := button.KindFetch
	if f.WantEvents {
		kind = button.KindFetchEvents
	}
	a.inflight++
	if refresh != nil {
		refresh.busy = true
	}

	go func() {
		ctx := a.ctx
		if a.deps.fetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.deps.fetchTimeout)
			defer cancel()
		}

		done := fetchDoneCmd{origin: origin, coord: coord, kind: kind, refresh: refresh}
		if f.WantEvents {
			done.events, done.err = a.deps.fetcher.FetchEvents(ctx, f.URL)
		} else {
			done.err = a.deps.fetcher.Fetch(ctx, f.URL)
		}
		_ = a.submit(done) //nolint:errcheck // Result is moot once the actor has stopped
	}()
}

// pushConfig shows cfg's title and image on the button: to s alone, or to
// every session when s is nil.
func (a *Actor) pushConfig(s *Session, cfg button.Config) {
	msgs, err := encodeConfigPush(cfg)
	if err != nil {
		a.logger.Error("encoding config push", "coordinates", cfg.Coordinates.String(), "error", err)
		return
	}
	for _, msg := range msgs {
		if s != nil {
			s.Send(msg)
		} else {
			a.broadcast(msg)
		}
	}
}

func (a *Actor) broadcast(msg []byte) {
	for _, s := range a.sessions {
		s.Send(msg)
	}
}

func (a *Actor) save(ctx context.Context, cfg button.Config) error {
	if err := a.deps.repo.Put(ctx, a.identity, cfg); err != nil {
		return err
	}
	a.deps.observer.ConfigSaved(a.identity, cfg)
	a.syncRefresh(cfg)
	return nil
}
