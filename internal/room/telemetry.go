package room

import "github.com/nerrad567/deckrelay/internal/button"

// PressRecorder is the subset of *influxdb.Client used for telemetry.
type PressRecorder interface {
	WriteButtonPress(identity string, row, column, events int)
	WriteFetchError(identity, kind string)
}

// Telemetry is an Observer that records presses and fetch failures.
// The recorder is expected to batch, so calls return immediately.
type Telemetry struct {
	rec PressRecorder
}

// NewTelemetry wraps rec as an Observer.
func NewTelemetry(rec PressRecorder) Telemetry {
	return Telemetry{rec: rec}
}

// ConfigSaved is not recorded.
func (Telemetry) ConfigSaved(string, button.Config) {}

// KeyPressed writes a button_press point.
func (t Telemetry) KeyPressed(identity string, c button.Coordinate, events int) {
	t.rec.WriteButtonPress(identity, c.Row, c.Column, events)
}

// FetchFailed writes a fetch_error point tagged with the event kind.
func (t Telemetry) FetchFailed(identity string, kind button.Kind, _ error) {
	t.rec.WriteFetchError(identity, kind.String())
}
