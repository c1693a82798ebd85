package influxdb

import (
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementButtonPress = "button_press"
	MeasurementFetchError  = "fetch_error"
)

// WriteButtonPress records a key press on a button. events is the number
// of events the button's config carried at the time of the press.
//
// Example line:
//
//	button_press,column=4,identity=3f2a,row=0 events=2i
func (c *Client) WriteButtonPress(identity string, row, column, events int) {
	c.writePoint(MeasurementButtonPress,
		map[string]string{
			"identity": identity,
			"row":      strconv.Itoa(row),
			"column":   strconv.Itoa(column),
		},
		map[string]any{"events": events},
	)
}

// WriteFetchError records an outbound fetch or fetchEvents call that
// failed. kind is the event kind that issued it.
func (c *Client) WriteFetchError(identity, kind string) {
	c.writePoint(MeasurementFetchError,
		map[string]string{
			"identity": identity,
			"kind":     kind,
		},
		map[string]any{"count": 1},
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}
