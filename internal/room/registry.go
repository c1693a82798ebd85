package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/deckrelay/internal/button"
)

// Registry defaults.
const (
	defaultIdleTimeout   = 5 * time.Minute
	defaultSweepInterval = 30 * time.Second
	defaultQueueSize     = 64
)

// Options configures a Registry.
type Options struct {
	// Repository stores button configs. Required.
	Repository button.Repository

	// Fetcher performs fetch and fetchEvents calls. Required.
	Fetcher Fetcher

	// Observer is notified of saves, presses and fetch failures.
	// Optional.
	Observer Observer

	// Logger for actor and registry events. Required.
	Logger Logger

	// IdleTimeout is how long an actor with no sessions is kept.
	IdleTimeout time.Duration

	// SweepInterval is how often idle actors are looked for.
	SweepInterval time.Duration

	// FetchTimeout bounds each outbound fetch.
	FetchTimeout time.Duration

	// QueueSize is each actor's command buffer length.
	QueueSize int
}

// Registry maps identities to actors, creating them on first use and
// evicting idle ones.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	opts   Options
	deps   actorDeps
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	actors map[string]*Actor
	closed bool
}

// NewRegistry creates a registry. Call Start to begin sweeping and Close
// to stop every actor.
func NewRegistry(opts Options) *Registry {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts: opts,
		deps: actorDeps{
			repo:         opts.Repository,
			fetcher:      opts.Fetcher,
			observer:     opts.Observer,
			logger:       opts.Logger,
			fetchTimeout: opts.FetchTimeout,
			now:          time.Now,
		},
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[string]*Actor),
	}
}

// Start runs the idle sweeper until ctx is cancelled or Close is called.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(r.opts.SweepInterval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case now := <-t.C:
				r.sweep(now)
			}
		}
	}()
}

// Close stops the sweeper and every actor, closing their sessions.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.actors = make(map[string]*Actor)
	r.mu.Unlock()

	r.cancel()
	for _, a := range actors {
		<-a.Done()
	}
	r.wg.Wait()
}

// Actor returns the actor for identity, creating it if needed.
func (r *Registry) Actor(identity string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if a, ok := r.actors[identity]; ok {
		return a, nil
	}

	a := newActor(r.ctx, identity, r.deps, r.opts.QueueSize)
	r.actors[identity] = a
	r.logger.Debug("room actor created", "identity", identity, "actors", len(r.actors))
	return a, nil
}

// Len returns the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Update routes u to identity's actor.
func (r *Registry) Update(ctx context.Context, identity string, u button.Update) error {
	return r.withActor(identity, func(a *Actor) error {
		return a.Update(ctx, u)
	})
}

// Join adds s to identity's room and returns the actor it joined. The
// caller routes the session's messages and its Leave to that actor.
func (r *Registry) Join(ctx context.Context, identity string, s *Session) (*Actor, error) {
	var joined *Actor
	err := r.withActor(identity, func(a *Actor) error {
		if err := a.Join(ctx, s); err != nil {
			return err
		}
		joined = a
		return nil
	})
	return joined, err
}

// withActor runs fn against identity's actor. If the actor was evicted
// between lookup and submit, fn is retried once with a fresh actor.
func (r *Registry) withActor(identity string, fn func(*Actor) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var a *Actor
		if a, err = r.Actor(identity); err != nil {
			return err
		}
		if err = fn(a); !errors.Is(err, ErrActorStopped) {
			return err
		}
		r.forget(identity, a)
	}
	return err
}

// forget drops a from the map if it is still the actor for identity.
func (r *Registry) forget(identity string, a *Actor) {
	r.mu.Lock()
	if r.actors[identity] == a {
		delete(r.actors, identity)
	}
	r.mu.Unlock()
}

// sweep evicts actors that have had no sessions and no activity for the
// idle timeout as of now.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	snapshot := make(map[string]*Actor, len(r.actors))
	for id, a := range r.actors {
		snapshot[id] = a
	}
	r.mu.Unlock()

	for id, a := range snapshot {
		if a.tryEvict(now, r.opts.IdleTimeout) {
			r.forget(id, a)
			r.logger.Debug("room actor evicted", "identity", id)
		}
	}
}
