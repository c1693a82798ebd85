package button

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies which action an EventSpec performs.
type Kind int

// Known event kinds. KindUnknown is never executed.
const (
	KindUnknown Kind = iota
	KindOpenURL
	KindSetTitle
	KindSetImage
	KindFetch
	KindFetchEvents
	KindShowOk
	KindShowAlert
)

var kindNames = map[Kind]string{
	KindOpenURL:     "openUrl",
	KindSetTitle:    "setTitle",
	KindSetImage:    "setImage",
	KindFetch:       "fetch",
	KindFetchEvents: "fetchEvents",
	KindShowOk:      "showOk",
	KindShowAlert:   "showAlert",
}

// ParseKind maps a wire event name to its Kind. Unrecognised names map to
// KindUnknown.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// String returns the wire event name, or "unknown".
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// EventSpec is one declarative action bound to a button press.
//
// Only the payload field matching Kind is meaningful: URL for openUrl,
// fetch and fetchEvents; Title for setTitle; Image for setImage. showOk
// and showAlert carry no payload.
//
// On the wire an EventSpec looks like
//
//	{"event":"setTitle","broadcast":false,"payload":{"title":"A"}}
type EventSpec struct {
	Kind      Kind
	Broadcast bool
	URL       string
	Title     string
	Image     string

	// name and payload keep an unknown event's original wire form so a
	// stored config survives a round trip untouched.
	name    string
	payload json.RawMessage
}

// Name returns the wire event name. For unknown events this is the name
// that was decoded.
func (e EventSpec) Name() string {
	if e.Kind == KindUnknown {
		return e.name
	}
	return e.Kind.String()
}

type eventWire struct {
	Event     string          `json:"event"`
	Broadcast bool            `json:"broadcast"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type urlPayload struct {
	URL string `json:"url"`
}

type titlePayload struct {
	Title string `json:"title"`
}

type imagePayload struct {
	Image string `json:"image"`
}

// UnmarshalJSON decodes the {event, broadcast, payload} form. An unknown
// event name is not an error; it decodes to KindUnknown.
func (e *EventSpec) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = EventSpec{Kind: ParseKind(w.Event), Broadcast: w.Broadcast}

	payload := w.Payload
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = []byte("{}")
	}

	var err error
	switch e.Kind {
	case KindOpenURL, KindFetch, KindFetchEvents:
		var p urlPayload
		err = json.Unmarshal(payload, &p)
		e.URL = p.URL
	case KindSetTitle:
		var p titlePayload
		err = json.Unmarshal(payload, &p)
		e.Title = p.Title
	case KindSetImage:
		var p imagePayload
		err = json.Unmarshal(payload, &p)
		e.Image = p.Image
	case KindShowOk, KindShowAlert:
	default:
		e.name = w.Event
		e.payload = append(json.RawMessage(nil), w.Payload...)
	}
	if err != nil {
		return fmt.Errorf("decoding %s payload: %w", w.Event, err)
	}
	return nil
}

// MarshalJSON encodes the {event, broadcast, payload} form.
func (e EventSpec) MarshalJSON() ([]byte, error) {
	w := eventWire{Event: e.Name(), Broadcast: e.Broadcast}

	var (
		payload any
		err     error
	)
	switch e.Kind {
	case KindOpenURL, KindFetch, KindFetchEvents:
		payload = urlPayload{URL: e.URL}
	case KindSetTitle:
		payload = titlePayload{Title: e.Title}
	case KindSetImage:
		payload = imagePayload{Image: e.Image}
	case KindShowOk, KindShowAlert:
		payload = struct{}{}
	default:
		w.Payload = e.payload
	}
	if payload != nil {
		if w.Payload, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	return json.Marshal(w)
}

// Apply copies a setTitle or setImage event onto cfg and reports whether
// it did, meaning cfg must be persisted.
func (e EventSpec) Apply(cfg *Config) bool {
	switch e.Kind {
	case KindSetTitle:
		cfg.Title = e.Title
		return true
	case KindSetImage:
		cfg.Image = e.Image
		return true
	}
	return false
}
