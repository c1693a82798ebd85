package button

import (
	"fmt"
	"time"
)

// Coordinate is the (row, column) address of a button on one device.
type Coordinate struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// String formats the coordinate as "<row>_<column>", the form used in
// storage keys and MQTT topics.
func (c Coordinate) String() string {
	return fmt.Sprintf("%d_%d", c.Row, c.Column)
}

// AutoRefresh asks the room to run fetchEvents against URL every Every
// seconds with no originating session.
type AutoRefresh struct {
	Every int    `json:"every"`
	URL   string `json:"url"`
}

// MinAutoRefreshPeriod is the shortest interval the room will honour.
const MinAutoRefreshPeriod = time.Second

// Period returns the refresh interval, or zero when the hint is unusable
// (nil, non-positive, or missing a URL). Values below
// MinAutoRefreshPeriod are raised to it.
func (a *AutoRefresh) Period() time.Duration {
	if a == nil || a.Every <= 0 || a.URL == "" {
		return 0
	}
	d := time.Duration(a.Every) * time.Second
	if d < MinAutoRefreshPeriod {
		return MinAutoRefreshPeriod
	}
	return d
}

// Config is the persisted configuration of one button.
type Config struct {
	Coordinates Coordinate   `json:"coordinates"`
	Title       string       `json:"title"`
	Image       string       `json:"image"` // base64 image data
	Events      []EventSpec  `json:"events"`
	AutoRefresh *AutoRefresh `json:"autoRefresh,omitempty"`
}

// Default returns the config used for a coordinate that has never been
// stored.
func Default(c Coordinate) Config {
	return Config{
		Coordinates: c,
		Events:      []EventSpec{},
	}
}

// Key returns the storage key for a button of identity.
func Key(identity string, c Coordinate) string {
	return identity + "/" + c.String()
}
