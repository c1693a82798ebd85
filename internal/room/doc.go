// Package room implements the hosted side of Deck Relay: one actor per
// device-group identity.
//
// An Actor owns the viewer sessions for its identity and processes every
// request for it on a single goroutine: HTTP updates, viewer messages,
// fetchEvents results and auto-refresh ticks all arrive as commands on
// one queue. Button configs are never cached; each command reads what it
// needs from the button.Repository and writes back at most once.
//
// Actors are created on first use by the Registry and evicted by its
// sweeper once they have no sessions and have been quiet for the idle
// timeout.
//
// # Dispatch
//
// PlanLocal and PlanRemote are pure. They turn a config's events (or the
// events returned by a fetchEvents call) into deliveries, fetches and an
// updated config. The actor executes the plan.
//
// # Wire format
//
// Viewers send {type, data} envelopes. Only rawSD and setButton change
// state; init and buttonLocationsUpdated are recorded on the Session.
// Viewers receive events as
//
//	{"event":"setTitle","broadcast":false,"payload":{"title":"A"},"coordinates":{"row":0,"column":1}}
package room
