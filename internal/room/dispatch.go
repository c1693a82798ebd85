package room

import (
	"encoding/json"

	"github.com/nerrad567/deckrelay/internal/button"
)

// Allow-lists for the dispatch pipeline.
var (
	// localKinds may appear in a stored config's events.
	localKinds = kindSet(
		button.KindOpenURL,
		button.KindSetTitle,
		button.KindSetImage,
		button.KindFetch,
		button.KindFetchEvents,
		button.KindShowOk,
		button.KindShowAlert,
	)

	// remoteUnicastKinds may come back from a fetchEvents response when
	// the event is not flagged broadcast.
	remoteUnicastKinds = kindSet(
		button.KindOpenURL,
		button.KindSetTitle,
		button.KindSetImage,
		button.KindShowOk,
		button.KindShowAlert,
	)

	// remoteBroadcastKinds may come back from a fetchEvents response when
	// the event is flagged broadcast.
	remoteBroadcastKinds = kindSet(
		button.KindSetTitle,
		button.KindSetImage,
		button.KindShowOk,
		button.KindShowAlert,
	)
)

func kindSet(kinds ...button.Kind) map[button.Kind]bool {
	s := make(map[button.Kind]bool, len(kinds))
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

// Delivery is one outbound event. Broadcast deliveries go to every
// session in the room; the rest go to the originating session only.
type Delivery struct {
	Event     button.EventSpec
	Broadcast bool
}

// Fetch is an outbound HTTP call requested by a config. WantEvents is set
// for fetchEvents, whose response is fed back through PlanRemote.
type Fetch struct {
	URL        string
	WantEvents bool
}

// Plan is the outcome of running a button's events.
type Plan struct {
	// Config is the input config with setTitle/setImage applied in order.
	Config button.Config

	Deliveries []Delivery
	Fetches    []Fetch

	// Dirty means Config differs from the input and must be persisted.
	Dirty bool
}

// PlanLocal runs a stored config's events in declared order. hasOrigin
// reports whether a session pressed the button; without one every
// delivery is a broadcast.
func PlanLocal(hasOrigin bool, cfg button.Config) Plan {
	p := Plan{Config: cfg}

	for _, e := range cfg.Events {
		if !localKinds[e.Kind] {
			continue
		}
		switch e.Kind {
		case button.KindFetch:
			p.Fetches = append(p.Fetches, Fetch{URL: e.URL})
		case button.KindFetchEvents:
			p.Fetches = append(p.Fetches, Fetch{URL: e.URL, WantEvents: true})
		default:
			p.deliver(hasOrigin, e)
		}
	}
	return p
}

// PlanRemote applies events returned by a fetchEvents call to cfg. Each
// event is checked against the allow-list for its own broadcast flag, so
// fetch and fetchEvents can never be triggered remotely.
func PlanRemote(hasOrigin bool, cfg button.Config, events []button.EventSpec) Plan {
	p := Plan{Config: cfg}

	for _, e := range events {
		allowed := remoteUnicastKinds
		if e.Broadcast {
			allowed = remoteBroadcastKinds
		}
		if !allowed[e.Kind] {
			continue
		}
		p.deliver(hasOrigin, e)
	}
	return p
}

func (p *Plan) deliver(hasOrigin bool, e button.EventSpec) {
	if e.Apply(&p.Config) {
		p.Dirty = true
	}
	p.Deliveries = append(p.Deliveries, Delivery{
		Event:     e,
		Broadcast: e.Broadcast || !hasOrigin,
	})
}

// outboundEvent is an EventSpec with the button's coordinates attached,
// the shape viewers and the bridge receive. Its broadcast field is the
// event's own flag, so a delivery broadcast only for lack of an origin
// session still reads "broadcast":false. Routing follows Delivery.
type outboundEvent struct {
	button.EventSpec
	Coordinates button.Coordinate
}

func (o outboundEvent) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(o.EventSpec)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	if fields["coordinates"], err = json.Marshal(o.Coordinates); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// encodeEvent renders e for delivery to button c.
func encodeEvent(e button.EventSpec, c button.Coordinate) ([]byte, error) {
	return json.Marshal(outboundEvent{EventSpec: e, Coordinates: c})
}

// configPush is the message sent when a stored title or image is shown
// on a button. The whole config rides in payload, which carries the
// title and image fields the device expects.
type configPush struct {
	Event       string            `json:"event"`
	Coordinates button.Coordinate `json:"coordinates"`
	Payload     button.Config     `json:"payload"`
}

// encodeConfigPush returns the setTitle and setImage messages for cfg,
// skipping whichever of title and image is empty.
func encodeConfigPush(cfg button.Config) ([][]byte, error) {
	var out [][]byte
	for _, ev := range []struct {
		name    string
		present bool
	}{
		{button.KindSetTitle.String(), cfg.Title != ""},
		{button.KindSetImage.String(), cfg.Image != ""},
	} {
		if !ev.present {
			continue
		}
		msg, err := json.Marshal(configPush{Event: ev.name, Coordinates: cfg.Coordinates, Payload: cfg})
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
