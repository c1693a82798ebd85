package room

import (
	"time"

	"github.com/nerrad567/deckrelay/internal/button"
)

// refresher drives one button's autoRefresh. Its goroutine only posts
// refreshCmd; all state changes happen on the actor goroutine.
type refresher struct {
	period time.Duration
	url    string
	stop   chan struct{}

	// busy is set while a refresh fetch is out, so slow endpoints don't
	// pile up calls. Actor goroutine only.
	busy bool
}

func (r *refresher) halt() {
	close(r.stop)
}

func (r *refresher) run(a *Actor, c button.Coordinate) {
	t := time.NewTicker(r.period)
	defer t.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-a.ctx.Done():
			return
		case <-t.C:
			if err := a.submit(refreshCmd{coord: c, r: r}); err != nil {
				return
			}
		}
	}
}

// syncRefresh arms, re-arms or stops the ticker for cfg's button so it
// matches cfg.AutoRefresh.
func (a *Actor) syncRefresh(cfg button.Config) {
	c := cfg.Coordinates
	period := cfg.AutoRefresh.Period()
	cur, ok := a.refreshers[c]

	if period == 0 {
		if ok {
			cur.halt()
			delete(a.refreshers, c)
			a.logger.Debug("auto refresh stopped", "coordinates", c.String())
		}
		return
	}
	if ok && cur.period == period && cur.url == cfg.AutoRefresh.URL {
		return
	}
	if ok {
		cur.halt()
	}

	r := &refresher{period: period, url: cfg.AutoRefresh.URL, stop: make(chan struct{})}
	a.refreshers[c] = r
	go r.run(a, c)
	a.logger.Debug("auto refresh armed", "coordinates", c.String(), "every", period)
}

// handleRefresh runs fetchEvents for a tick with no origin session, so
// every resulting event is broadcast.
func (a *Actor) handleRefresh(c refreshCmd) {
	if a.refreshers[c.coord] != c.r || c.r.busy {
		return
	}

	cfg, err := button.Load(a.ctx, a.deps.repo, a.identity, c.coord)
	if err != nil {
		a.logger.Error("loading button config", "coordinates", c.coord.String(), "error", err)
		return
	}
	a.syncRefresh(cfg)
	if a.refreshers[c.coord] != c.r {
		// Stopped or re-armed with new settings.
		return
	}

	a.startFetch(nil, c.coord, Fetch{URL: c.r.url, WantEvents: true}, c.r)
}
