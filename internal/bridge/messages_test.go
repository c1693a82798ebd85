package bridge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/deckrelay/internal/button"
)

func TestResolveTarget(t *testing.T) {
	l := NewLocations()
	l.AddDevice("A", 2, 2)
	l.Place("A", button.Coordinate{Row: 1, Column: 0}, ButtonHandle{Context: "ctx-10"}) //nolint:errcheck // Valid placement

	tests := []struct {
		name    string
		in      string
		wantOK  bool
		context string
		wantErr error
	}{
		{name: "context passes through", in: `{"event":"showOk","context":"given"}`, wantOK: true, context: "given"},
		{name: "no target passes through", in: `{"event":"openUrl"}`, wantOK: true},
		{name: "coordinates resolved", in: `{"event":"showOk","coordinates":{"row":1,"column":0}}`, wantOK: true, context: "ctx-10"},
		{name: "buttonLocation resolved", in: `{"event":"showOk","buttonLocation":{"row":1,"column":0}}`, wantOK: true, context: "ctx-10"},
		{name: "empty context uses coordinates", in: `{"context":"","coordinates":{"row":1,"column":0}}`, wantOK: true, context: "ctx-10"},
		{name: "unmatched dropped", in: `{"event":"showOk","coordinates":{"row":0,"column":0}}`},
		{name: "not json", in: `nope`, wantErr: ErrInvalidMessage},
		{name: "bad coordinates", in: `{"coordinates":"1_0"}`, wantErr: ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok, err := resolveTarget([]byte(tt.in), l)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}

			var m map[string]any
			if err := json.Unmarshal(out, &m); err != nil {
				t.Fatal(err)
			}
			if tt.context != "" && m["context"] != tt.context {
				t.Errorf("context = %v, want %s", m["context"], tt.context)
			}
			if tt.context == "ctx-10" {
				if _, has := m["coordinates"]; has {
					t.Error("coordinates not stripped")
				}
				if _, has := m["buttonLocation"]; has {
					t.Error("buttonLocation not stripped")
				}
			}
		})
	}
}

func TestSettingsFrom(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantURL string
		wantKey string
	}{
		{"empty settings", `{"settings":{}}`, DefaultRemoteURL, DefaultKey},
		{"no settings", `{}`, DefaultRemoteURL, DefaultKey},
		{"empty strings", `{"settings":{"url":"","key":""}}`, DefaultRemoteURL, DefaultKey},
		{"custom", `{"settings":{"url":"ws://localhost:8080","key":"room-1"}}`, "ws://localhost:8080", "room-1"},
		{"malformed", `{"settings":[]}`, DefaultRemoteURL, DefaultKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := deviceMessage{Event: EventDidReceiveGlobalSettings, Payload: json.RawMessage(tt.payload)}
			s := settingsFrom(msg.globalSettings())
			if s.URL != tt.wantURL || s.Key != tt.wantKey || s.Connected {
				t.Errorf("settings = %+v, want url=%s key=%s", s, tt.wantURL, tt.wantKey)
			}
		})
	}
}

func TestGlobalSettings_RemoteURL(t *testing.T) {
	tests := []struct {
		s    GlobalSettings
		want string
	}{
		{GlobalSettings{URL: "wss://streamdeck.dev", Key: "DEFAULT_KEY"}, "wss://streamdeck.dev/?key=DEFAULT_KEY"},
		{GlobalSettings{URL: "ws://host:1/", Key: "a b"}, "ws://host:1/?key=a+b"},
	}
	for _, tt := range tests {
		if got := tt.s.RemoteURL(); got != tt.want {
			t.Errorf("RemoteURL() = %q, want %q", got, tt.want)
		}
	}
}

func TestButtonPayload_RequiresCoordinates(t *testing.T) {
	msg := deviceMessage{Event: EventWillAppear, Payload: json.RawMessage(`{"isInMultiAction":false}`)}
	if _, err := msg.buttonPayload(); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("error = %v, want ErrInvalidMessage", err)
	}
}
