package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/deckrelay/internal/button"
)

// Device events the bridge acts on.
const (
	EventWillAppear               = "willAppear"
	EventWillDisappear            = "willDisappear"
	EventTitleParametersDidChange = "titleParametersDidChange"
	EventDidReceiveGlobalSettings = "didReceiveGlobalSettings"
	EventGetGlobalSettings        = "getGlobalSettings"
	EventSetGlobalSettings        = "setGlobalSettings"
)

// Envelope types sent to the room.
const (
	TypeInit                   = "init"
	TypeButtonLocationsUpdated = "buttonLocationsUpdated"
	TypeRawSD                  = "rawSD"
)

// Envelope is the {type, data} frame exchanged with the room.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type deviceInfo struct {
	Size struct {
		Rows    int `json:"rows"`
		Columns int `json:"columns"`
	} `json:"size"`
}

// deviceMessage holds the fields the bridge reads from device traffic.
// The raw bytes are forwarded untouched.
type deviceMessage struct {
	Event      string          `json:"event"`
	Action     string          `json:"action"`
	Context    string          `json:"context"`
	Device     string          `json:"device"`
	DeviceInfo *deviceInfo     `json:"deviceInfo"`
	Payload    json.RawMessage `json:"payload"`
}

// buttonPayload covers willAppear, willDisappear and
// titleParametersDidChange payloads.
type buttonPayload struct {
	Coordinates     *button.Coordinate `json:"coordinates"`
	IsInMultiAction bool               `json:"isInMultiAction"`
	Title           *string            `json:"title"`
	TitleParameters json.RawMessage    `json:"titleParameters"`
	State           *int               `json:"state"`
}

type globalSettingsPayload struct {
	Settings struct {
		URL string `json:"url"`
		Key string `json:"key"`
	} `json:"settings"`
}

func parseDeviceMessage(data []byte) (deviceMessage, error) {
	var msg deviceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return deviceMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

func (m deviceMessage) buttonPayload() (buttonPayload, error) {
	var p buttonPayload
	if len(m.Payload) == 0 {
		return p, fmt.Errorf("%w: %s without payload", ErrInvalidMessage, m.Event)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %s payload: %v", ErrInvalidMessage, m.Event, err)
	}
	if p.Coordinates == nil {
		return p, fmt.Errorf("%w: %s without coordinates", ErrInvalidMessage, m.Event)
	}
	return p, nil
}

func (m deviceMessage) globalSettings() globalSettingsPayload {
	var p globalSettingsPayload
	if len(m.Payload) > 0 {
		//nolint:errcheck // Malformed settings fall back to defaults
		json.Unmarshal(m.Payload, &p)
	}
	return p
}

// changesLocations reports whether the event alters the store and so
// needs a buttonLocationsUpdated snapshot.
func changesLocations(event string) bool {
	switch event {
	case EventWillAppear, EventWillDisappear, EventTitleParametersDidChange:
		return true
	}
	return false
}

func registerMessage(registerEvent, pluginUUID string) ([]byte, error) {
	return json.Marshal(map[string]string{"event": registerEvent, "uuid": pluginUUID})
}

func getGlobalSettingsMessage(pluginUUID string) ([]byte, error) {
	return json.Marshal(map[string]string{"event": EventGetGlobalSettings, "context": pluginUUID})
}

func setGlobalSettingsMessage(pluginUUID string, s GlobalSettings) ([]byte, error) {
	return json.Marshal(struct {
		Event   string         `json:"event"`
		Context string         `json:"context"`
		Payload GlobalSettings `json:"payload"`
	}{EventSetGlobalSettings, pluginUUID, s})
}

// targetFields are the keys a room message may use to address a button
// by position instead of context.
var targetFields = []string{"coordinates", "buttonLocation"}

// resolveTarget rewrites a room message for the device. Messages with a
// context pass through. Messages addressed by position get the context
// of the matching button and lose the position field. The bool is false when
// the message should be dropped.
func resolveTarget(data []byte, locs *Locations) ([]byte, bool, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if raw, has := msg["context"]; has && !isEmptyJSON(raw) {
		return data, true, nil
	}

	for _, field := range targetFields {
		raw, has := msg[field]
		if !has || isEmptyJSON(raw) {
			continue
		}
		var c button.Coordinate
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, field, err)
		}
		target, found := locs.Resolve(c)
		if !found {
			return nil, false, nil
		}
		for _, f := range targetFields {
			delete(msg, f)
		}
		ctxJSON, err := json.Marshal(target)
		if err != nil {
			return nil, false, err
		}
		msg["context"] = ctxJSON
		encoded, err := json.Marshal(msg)
		if err != nil {
			return nil, false, err
		}
		return encoded, true, nil
	}

	return data, true, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := string(raw)
	return s == "null" || s == `""` || s == ""
}
