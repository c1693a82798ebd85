package bridge

import "errors"

// Domain-specific errors for the deck bridge.
var (
	// ErrStopped is returned by calls made after Stop.
	ErrStopped = errors.New("bridge: stopped")

	// ErrNotStarted is returned by calls made before Start.
	ErrNotStarted = errors.New("bridge: not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("bridge: already started")

	// ErrUnknownDevice indicates a message referenced a device with no grid.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrOutOfRange indicates a coordinate outside the device's grid.
	ErrOutOfRange = errors.New("bridge: coordinate out of range")

	// ErrEmptyCell indicates an update to a cell with no button in it.
	ErrEmptyCell = errors.New("bridge: no button at coordinate")

	// ErrInvalidMessage indicates a device or room message that cannot be decoded.
	ErrInvalidMessage = errors.New("bridge: invalid message")
)
