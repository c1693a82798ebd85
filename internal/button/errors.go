package button

import (
	"errors"
	"fmt"
)

// Domain errors for the button package.
//
// Check with errors.Is:
//
//	if errors.Is(err, button.ErrInvalidConfig) {
//	    // respond 400
//	}
var (
	// ErrNotFound is returned by Repository.Get when no config is stored
	// for the key.
	ErrNotFound = errors.New("button: not found")

	// ErrInvalidConfig is returned when an update body fails validation.
	// More specific errors below wrap it.
	ErrInvalidConfig = errors.New("button: invalid config")

	// ErrInvalidCoordinates is returned when coordinates.row or
	// coordinates.column is missing or not an integral number.
	ErrInvalidCoordinates = fmt.Errorf("%w: coordinates must carry integral row and column", ErrInvalidConfig)

	// ErrTitleRequired is returned when a POST body has an empty title.
	ErrTitleRequired = fmt.Errorf("%w: title is required", ErrInvalidConfig)

	// ErrUnsupportedMethod is returned for update methods other than
	// POST and PATCH.
	ErrUnsupportedMethod = errors.New("button: unsupported update method")
)
