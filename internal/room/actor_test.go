package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/deckrelay/internal/button"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// memRepo is an in-memory button.Repository.
type memRepo struct {
	mu    sync.Mutex
	items map[string]button.Config
	puts  int
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[string]button.Config)}
}

func (m *memRepo) Get(_ context.Context, identity string, c button.Coordinate) (button.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.items[button.Key(identity, c)]
	if !ok {
		return button.Config{}, button.ErrNotFound
	}
	return cfg, nil
}

func (m *memRepo) Put(_ context.Context, identity string, cfg button.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[button.Key(identity, cfg.Coordinates)] = cfg
	m.puts++
	return nil
}

func (m *memRepo) get(t *testing.T, identity string, c button.Coordinate) button.Config {
	t.Helper()
	cfg, err := m.Get(context.Background(), identity, c)
	if err != nil {
		t.Fatalf("no config stored for %s/%s", identity, c)
	}
	return cfg
}

// fakeFetcher answers from a map of URL to events. When release is set,
// calls block until it is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	events  map[string][]button.EventSpec
	err     error
	release chan struct{}
}

func (f *fakeFetcher) record(ctx context.Context, url string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	release, err := f.release, f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) error {
	return f.record(ctx, url)
}

func (f *fakeFetcher) FetchEvents(ctx context.Context, url string) ([]button.EventSpec, error) {
	if err := f.record(ctx, url); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[url], nil
}

func (f *fakeFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recordingObserver captures observer calls.
type recordingObserver struct {
	mu      sync.Mutex
	saved   []button.Config
	presses []int
	failed  chan button.Kind
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{failed: make(chan button.Kind, 8)}
}

func (o *recordingObserver) ConfigSaved(_ string, cfg button.Config) {
	o.mu.Lock()
	o.saved = append(o.saved, cfg)
	o.mu.Unlock()
}

func (o *recordingObserver) KeyPressed(_ string, _ button.Coordinate, events int) {
	o.mu.Lock()
	o.presses = append(o.presses, events)
	o.mu.Unlock()
}

func (o *recordingObserver) FetchFailed(_ string, kind button.Kind, _ error) {
	o.failed <- kind
}

// wireMsg decodes both event deliveries and config pushes.
type wireMsg struct {
	Event       string            `json:"event"`
	Broadcast   bool              `json:"broadcast"`
	Coordinates button.Coordinate `json:"coordinates"`
	Payload     struct {
		Title string `json:"title"`
		Image string `json:"image"`
	} `json:"payload"`
}

func recv(t *testing.T, s *Session) wireMsg {
	t.Helper()
	select {
	case raw := <-s.send:
		var m wireMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("bad message %s: %v", raw, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return wireMsg{}
	}
}

// recvTitle reads messages until one carries title.
func recvTitle(t *testing.T, s *Session, title string) wireMsg {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case raw := <-s.send:
			var m wireMsg
			if err := json.Unmarshal(raw, &m); err == nil && m.Payload.Title == title {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for title %q", title)
			return wireMsg{}
		}
	}
}

func expectNone(t *testing.T, s *Session) {
	t.Helper()
	if n := len(s.send); n != 0 {
		t.Errorf("session has %d unexpected messages", n)
	}
}

// barrier waits until every command submitted to a so far has run.
func barrier(t *testing.T, a *Actor) {
	t.Helper()
	if a.tryEvict(time.Now(), time.Hour) {
		t.Fatal("barrier evicted the actor")
	}
}

type fixture struct {
	reg     *Registry
	repo    *memRepo
	fetcher *fakeFetcher
	obs     *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemRepo(),
		fetcher: &fakeFetcher{events: make(map[string][]button.EventSpec)},
		obs:     newRecordingObserver(),
	}
	f.reg = NewRegistry(Options{
		Repository:   f.repo,
		Fetcher:      f.fetcher,
		Observer:     f.obs,
		Logger:       nopLogger{},
		IdleTimeout:  time.Minute,
		FetchTimeout: time.Second,
	})
	t.Cleanup(f.reg.Close)
	return f
}

func (f *fixture) join(t *testing.T, identity string) (*Actor, *Session) {
	t.Helper()
	s := NewSession()
	a, err := f.reg.Join(context.Background(), identity, s)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	return a, s
}

func (f *fixture) update(t *testing.T, identity, method, body string) {
	t.Helper()
	u, err := button.DecodeUpdate(method, []byte(body))
	if err != nil {
		t.Fatalf("DecodeUpdate() error = %v", err)
	}
	if err := f.reg.Update(context.Background(), identity, u); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func rawSD(event string, c button.Coordinate) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"rawSD","data":{"event":%q,"context":"ctx-1","device":"dev-1","payload":{"coordinates":{"row":%d,"column":%d}}}}`,
		event, c.Row, c.Column))
}

func TestActor_UpdatePersistsAndPushes(t *testing.T) {
	f := newFixture(t)
	_, s := f.join(t, "room1")

	f.update(t, "room1", http.MethodPost, `{"coordinates":{"row":0,"column":1},"title":"A"}`)

	cfg := f.repo.get(t, "room1", button.Coordinate{Row: 0, Column: 1})
	if cfg.Title != "A" {
		t.Errorf("stored title = %q, want A", cfg.Title)
	}
	m := recv(t, s)
	if m.Event != "setTitle" || m.Payload.Title != "A" || m.Coordinates != (button.Coordinate{Row: 0, Column: 1}) {
		t.Errorf("push = %+v", m)
	}
	expectNone(t, s)
}

func TestActor_PatchAfterPost(t *testing.T) {
	f := newFixture(t)
	c := button.Coordinate{Row: 1, Column: 2}

	f.update(t, "room1", http.MethodPost, `{"coordinates":{"row":1,"column":2},"title":"T","events":[{"event":"showOk"}]}`)
	f.update(t, "room1", http.MethodPatch, `{"coordinates":{"row":1,"column":2},"image":"aW1n"}`)

	cfg := f.repo.get(t, "room1", c)
	if cfg.Title != "T" || cfg.Image != "aW1n" || len(cfg.Events) != 1 {
		t.Errorf("stored = %+v, want union of both updates", cfg)
	}
}

func TestActor_WillAppearPushesToOriginOnly(t *testing.T) {
	f := newFixture(t)
	c := button.Coordinate{Row: 0, Column: 0}
	f.repo.Put(context.Background(), "room1", button.Config{Coordinates: c, Title: "T", Image: "I"}) //nolint:errcheck // memRepo

	a, s1 := f.join(t, "room1")
	_, s2 := f.join(t, "room1")

	a.Deliver(s1, rawSD("willAppear", c))

	if m := recv(t, s1); m.Event != "setTitle" || m.Payload.Title != "T" {
		t.Errorf("first push = %+v, want setTitle T", m)
	}
	if m := recv(t, s1); m.Event != "setImage" || m.Payload.Image != "I" {
		t.Errorf("second push = %+v, want setImage I", m)
	}
	barrier(t, a)
	expectNone(t, s2)
}

func TestActor_WillAppearEmptyConfigSendsNothing(t *testing.T) {
	f := newFixture(t)
	a, s := f.join(t, "room1")

	a.Deliver(s, rawSD("willAppear", button.Coordinate{Row: 3, Column: 3}))
	barrier(t, a)

	expectNone(t, s)
	if f.repo.puts != 0 {
		t.Errorf("willAppear on an unknown button stored %d configs", f.repo.puts)
	}
}

func TestActor_KeyUpUnicastAndBroadcast(t *testing.T) {
	f := newFixture(t)
	c := button.Coordinate{Row: 0, Column: 1}
	f.repo.Put(context.Background(), "room1", button.Config{ //nolint:errcheck // memRepo
		Coordinates: c,
		Events: []button.EventSpec{
			{Kind: button.KindSetTitle, Title: "A"},
			{Kind: button.KindSetTitle, Title: "B", Broadcast: true},
		},
	})

	a, s1 := f.join(t, "room1")
	_, s2 := f.join(t, "room1")

	a.Deliver(s1, rawSD("keyUp", c))

	if m := recv(t, s1); m.Payload.Title != "A" || m.Broadcast {
		t.Errorf("origin first = %+v, want unicast A", m)
	}
	if m := recv(t, s1); m.Payload.Title != "B" || !m.Broadcast {
		t.Errorf("origin second = %+v, want broadcast B", m)
	}
	if m := recv(t, s2); m.Payload.Title != "B" {
		t.Errorf("other session = %+v, want B", m)
	}
	barrier(t, a)
	expectNone(t, s2)

	if got := f.repo.get(t, "room1", c).Title; got != "B" {
		t.Errorf("stored title = %q, want B", got)
	}
	f.obs.mu.Lock()
	defer f.obs.mu.Unlock()
	if len(f.obs.presses) != 1 || f.obs.presses[0] != 2 {
		t.Errorf("presses = %v, want [2]", f.obs.presses)
	}
}

func TestActor_FetchEventsRereadsConfig(t *testing.T) {
	f := newFixture(t)
	c := button.Coordinate{Row: 2, Column: 0}
	f.fetcher.release = make(chan struct{})
	f.fetcher.events["https://events"] = []button.EventSpec{
		{Kind: button.KindSetTitle, Title: "Remote"},
		{Kind: button.KindFetch, URL: "https://never"},
	}
	f.repo.Put(context.Background(), "room1", button.Config{ //nolint:errcheck // memRepo
		Coordinates: c,
		Title:       "Old",
		Events:      []button.EventSpec{{Kind: button.KindFetchEvents, URL: "https://events"}},
	})

	a, s := f.join(t, "room1")
	a.Deliver(s, rawSD("keyUp", c))
	barrier(t, a)

	// The call is out; change the config underneath it.
	f.update(t, "room1", http.MethodPatch, `{"coordinates":{"row":2,"column":0},"image":"bmV3"}`)
	close(f.fetcher.release)

	if m := recvTitle(t, s, "Remote"); m.Broadcast {
		t.Errorf("remote event = %+v, want unicast to origin", m)
	}
	barrier(t, a)

	cfg := f.repo.get(t, "room1", c)
	if cfg.Title != "Remote" || cfg.Image != "bmV3" {
		t.Errorf("stored = %+v, want title Remote and patched image", cfg)
	}
	if calls := f.fetcher.called(); len(calls) != 1 || calls[0] != "https://events" {
		t.Errorf("fetch calls = %v, want only the fetchEvents URL", calls)
	}
}

func TestActor_FetchFailureNotifiesObserver(t *testing.T) {
	f := newFixture(t)
	c := button.Coordinate{Row: 0, Column: 0}
	f.fetcher.err = errors.New("boom")
	f.repo.Put(context.Background(), "room1", button.Config{ //nolint:errcheck // memRepo
		Coordinates: c,
		Events:      []button.EventSpec{{Kind: button.KindFetch, URL: "https://hook"}},
	})

	a, s := f.join(t, "room1")
	a.Deliver(s, rawSD("keyUp", c))

	select {
	case kind := <-f.obs.failed:
		if kind != button.KindFetch {
			t.Errorf("FetchFailed kind = %v, want fetch", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FetchFailed not called")
	}
	expectNone(t, s)
}

func TestActor_SetButtonMessage(t *testing.T) {
	f := newFixture(t)
	a, s := f.join(t, "room1")

	a.Deliver(s, []byte(`{"type":"setButton","data":{"coordinates":{"row":4,"column":1},"title":"From deck"}}`))
	a.Deliver(s, []byte(`{"type":"setButton","data":{"coordinates":{"row":4,"column":2}}}`))
	barrier(t, a)

	if got := f.repo.get(t, "room1", button.Coordinate{Row: 4, Column: 1}).Title; got != "From deck" {
		t.Errorf("stored title = %q", got)
	}
	if _, err := f.repo.Get(context.Background(), "room1", button.Coordinate{Row: 4, Column: 2}); !errors.Is(err, button.ErrNotFound) {
		t.Error("setButton without title should not be stored")
	}
}

func TestActor_RecordsSessionDiagnostics(t *testing.T) {
	f := newFixture(t)
	a, s := f.join(t, "room1")

	a.Deliver(s, []byte(`{"type":"init","data":{"pluginUUID":"plugin-1"}}`))
	a.Deliver(s, []byte(`{"type":"buttonLocationsUpdated","data":{"buttonLocations":{"dev-1":{"0":{"0":"ctx"}}}}}`))
	a.Deliver(s, []byte(`not json`))
	barrier(t, a)

	if got := s.PluginUUID(); got != "plugin-1" {
		t.Errorf("PluginUUID() = %q", got)
	}
	locs, seen := s.Locations()
	if len(locs) == 0 || seen.IsZero() {
		t.Errorf("Locations() = %s, %v", locs, seen)
	}
}

func TestActor_AutoRefreshBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.fetcher.events["https://refresh"] = []button.EventSpec{{Kind: button.KindSetTitle, Title: "tick"}}
	_, s1 := f.join(t, "room1")
	_, s2 := f.join(t, "room1")

	f.update(t, "room1", http.MethodPost,
		`{"coordinates":{"row":0,"column":0},"title":"T","autoRefresh":{"every":1,"url":"https://refresh"}}`)

	// A tick has no origin session, so every viewer gets the events.
	recvTitle(t, s1, "tick")
	recvTitle(t, s2, "tick")

	waitFor(t, "refreshed title stored", func() bool {
		cfg, err := f.repo.Get(context.Background(), "room1", button.Coordinate{})
		return err == nil && cfg.Title == "tick"
	})
}

func TestRegistry_EvictionStopsAutoRefresh(t *testing.T) {
	f := newFixture(t)
	f.fetcher.events["https://refresh"] = []button.EventSpec{{Kind: button.KindSetTitle, Title: "tick"}}

	f.update(t, "room1", http.MethodPost,
		`{"coordinates":{"row":0,"column":0},"title":"T","autoRefresh":{"every":1,"url":"https://refresh"}}`)
	a, err := f.reg.Actor("room1")
	if err != nil {
		t.Fatal(err)
	}

	// Ticks are not activity: a room with no viewers is still idle.
	waitFor(t, "first refresh", func() bool { return len(f.fetcher.called()) > 0 })
	waitFor(t, "idle eviction", func() bool {
		f.reg.sweep(time.Now().Add(time.Hour))
		return f.reg.Len() == 0
	})
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted actor did not stop")
	}

	calls := len(f.fetcher.called())
	time.Sleep(button.MinAutoRefreshPeriod + 500*time.Millisecond)
	if got := len(f.fetcher.called()); got != calls {
		t.Errorf("refresh fetches after eviction: %d, want %d", got, calls)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRegistry_EvictsIdleActor(t *testing.T) {
	f := newFixture(t)
	a, err := f.reg.Actor("idle")
	if err != nil {
		t.Fatal(err)
	}

	f.reg.sweep(time.Now())
	if f.reg.Len() != 1 {
		t.Fatal("fresh actor evicted")
	}

	f.reg.sweep(time.Now().Add(2 * time.Minute))
	if f.reg.Len() != 0 {
		t.Fatalf("Len() = %d after idle sweep, want 0", f.reg.Len())
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted actor did not stop")
	}
}

func TestRegistry_KeepsActorWithSessions(t *testing.T) {
	f := newFixture(t)
	a, s := f.join(t, "busy")

	f.reg.sweep(time.Now().Add(time.Hour))
	if f.reg.Len() != 1 {
		t.Fatal("actor with a session was evicted")
	}

	a.Leave(s)
	f.reg.sweep(time.Now().Add(time.Hour))
	if f.reg.Len() != 0 {
		t.Error("actor not evicted after its last session left")
	}
}

func TestRegistry_RecreatesEvictedActor(t *testing.T) {
	f := newFixture(t)
	old, _ := f.reg.Actor("room1")
	f.reg.sweep(time.Now().Add(time.Hour))
	<-old.Done()

	u, err := button.DecodeUpdate(http.MethodPost, []byte(`{"coordinates":{"row":0,"column":0},"title":"again"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := old.Update(context.Background(), u); !errors.Is(err, ErrActorStopped) {
		t.Errorf("Update() on evicted actor = %v, want ErrActorStopped", err)
	}
	if err := f.reg.Update(context.Background(), "room1", u); err != nil {
		t.Fatalf("Registry.Update() = %v", err)
	}
	if got := f.repo.get(t, "room1", button.Coordinate{}).Title; got != "again" {
		t.Errorf("stored title = %q", got)
	}
}

func TestRegistry_CloseStopsEverything(t *testing.T) {
	f := newFixture(t)
	_, s := f.join(t, "room1")

	f.reg.Close()

	if !s.Closed() {
		t.Error("session still open after Close")
	}
	if _, err := f.reg.Actor("room1"); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Actor() after Close = %v, want ErrRegistryClosed", err)
	}
}

func TestRegistry_IdentitiesAreIsolated(t *testing.T) {
	f := newFixture(t)
	_, s1 := f.join(t, "room1")
	_, s2 := f.join(t, "room2")

	f.update(t, "room1", http.MethodPost, `{"coordinates":{"row":0,"column":0},"title":"only room1"}`)

	recv(t, s1)
	a2, _ := f.reg.Actor("room2")
	barrier(t, a2)
	expectNone(t, s2)
}
