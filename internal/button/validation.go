package button

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
)

// Update is a validated POST or PATCH body.
type Update struct {
	// Method is http.MethodPost or http.MethodPatch.
	Method string

	// Config is the body decoded on its own. For POST it is the config to
	// store; for PATCH it is what gets pushed to viewers.
	Config Config

	// fields holds the top-level keys present in the body, used for the
	// PATCH shallow merge.
	fields map[string]json.RawMessage
}

// Coordinate returns the button the update targets.
func (u Update) Coordinate() Coordinate {
	return u.Config.Coordinates
}

// DecodeUpdate validates an update body for method.
//
// Rules:
//   - method must be POST or PATCH
//   - the body must be a JSON object
//   - coordinates.row and coordinates.column must be present integral numbers
//   - POST bodies must carry a non-empty title
//
// Errors wrap ErrInvalidConfig, apart from ErrUnsupportedMethod.
func DecodeUpdate(method string, body []byte) (Update, error) {
	if method != http.MethodPost && method != http.MethodPatch {
		return Update{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return Update{}, fmt.Errorf("%w: body must be a JSON object", ErrInvalidConfig)
	}

	coord, err := parseCoordinates(fields["coordinates"])
	if err != nil {
		return Update{}, err
	}

	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Coordinates = coord
	if cfg.Events == nil {
		cfg.Events = []EventSpec{}
	}

	if method == http.MethodPost && cfg.Title == "" {
		return Update{}, ErrTitleRequired
	}

	return Update{Method: method, Config: cfg, fields: fields}, nil
}

// parseCoordinates accepts {"row": n, "column": m} where both are JSON
// numbers with no fractional part. Strings such as "1" are rejected.
func parseCoordinates(raw json.RawMessage) (Coordinate, error) {
	if len(raw) == 0 {
		return Coordinate{}, ErrInvalidCoordinates
	}

	var parts map[string]any
	if err := json.Unmarshal(raw, &parts); err != nil || parts == nil {
		return Coordinate{}, ErrInvalidCoordinates
	}

	row, ok := integral(parts["row"])
	if !ok {
		return Coordinate{}, ErrInvalidCoordinates
	}
	column, ok := integral(parts["column"])
	if !ok {
		return Coordinate{}, ErrInvalidCoordinates
	}
	return Coordinate{Row: row, Column: column}, nil
}

func integral(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || math.Trunc(f) != f || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
