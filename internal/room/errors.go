package room

import "errors"

var (
	// ErrActorStopped is returned when a command reaches an actor that has
	// been evicted or shut down.
	ErrActorStopped = errors.New("room: actor stopped")

	// ErrRegistryClosed is returned once the registry has been closed.
	ErrRegistryClosed = errors.New("room: registry closed")

	// ErrFetchStatus is wrapped when a fetch target answers with a
	// non-2xx status.
	ErrFetchStatus = errors.New("room: fetch returned non-success status")
)
