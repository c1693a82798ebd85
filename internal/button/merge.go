package button

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Merge returns the config to persist for u.
//
// POST replaces existing wholesale. PATCH overlays the top-level fields
// present in the body onto existing; nested objects are replaced, not
// merged. The body's coordinates always win.
func Merge(existing Config, u Update) (Config, error) {
	if u.Method != http.MethodPatch {
		return u.Config, nil
	}

	base, err := json.Marshal(existing)
	if err != nil {
		return Config{}, fmt.Errorf("encoding stored config: %w", err)
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return Config{}, fmt.Errorf("decoding stored config: %w", err)
	}
	for k, v := range u.fields {
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return Config{}, fmt.Errorf("encoding merged config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(out, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Coordinates = u.Config.Coordinates
	if cfg.Events == nil {
		cfg.Events = []EventSpec{}
	}
	return cfg, nil
}
