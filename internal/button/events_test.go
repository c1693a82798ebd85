package button

import (
	"encoding/json"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"openUrl", KindOpenURL},
		{"setTitle", KindSetTitle},
		{"setImage", KindSetImage},
		{"fetch", KindFetch},
		{"fetchEvents", KindFetchEvents},
		{"showOk", KindShowOk},
		{"showAlert", KindShowAlert},
		{"switchProfile", KindUnknown},
		{"", KindUnknown},
		{"SETTITLE", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseKind(tt.name); got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestEventSpec_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  EventSpec
	}{
		{
			name:  "setTitle",
			input: `{"event":"setTitle","broadcast":true,"payload":{"title":"A"}}`,
			want:  EventSpec{Kind: KindSetTitle, Broadcast: true, Title: "A"},
		},
		{
			name:  "setImage",
			input: `{"event":"setImage","payload":{"image":"aGk="}}`,
			want:  EventSpec{Kind: KindSetImage, Image: "aGk="},
		},
		{
			name:  "openUrl",
			input: `{"event":"openUrl","broadcast":false,"payload":{"url":"https://example.com"}}`,
			want:  EventSpec{Kind: KindOpenURL, URL: "https://example.com"},
		},
		{
			name:  "fetchEvents",
			input: `{"event":"fetchEvents","payload":{"url":"http://hook"}}`,
			want:  EventSpec{Kind: KindFetchEvents, URL: "http://hook"},
		},
		{
			name:  "showOk without payload",
			input: `{"event":"showOk"}`,
			want:  EventSpec{Kind: KindShowOk},
		},
		{
			name:  "null payload",
			input: `{"event":"setTitle","payload":null}`,
			want:  EventSpec{Kind: KindSetTitle},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got EventSpec
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.Kind != tt.want.Kind || got.Broadcast != tt.want.Broadcast ||
				got.URL != tt.want.URL || got.Title != tt.want.Title || got.Image != tt.want.Image {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEventSpec_UnmarshalJSON_BadPayload(t *testing.T) {
	var e EventSpec
	if err := json.Unmarshal([]byte(`{"event":"setTitle","payload":{"title":42}}`), &e); err == nil {
		t.Error("expected error for non-string title")
	}
}

func TestEventSpec_UnknownPreserved(t *testing.T) {
	in := `{"event":"switchProfile","broadcast":true,"payload":{"profile":"Gaming"}}`

	var e EventSpec
	if err := json.Unmarshal([]byte(in), &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if e.Kind != KindUnknown {
		t.Fatalf("Kind = %v, want unknown", e.Kind)
	}
	if e.Name() != "switchProfile" {
		t.Errorf("Name() = %q, want switchProfile", e.Name())
	}

	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	payload, _ := decoded["payload"].(map[string]any)
	if decoded["event"] != "switchProfile" || payload["profile"] != "Gaming" {
		t.Errorf("unknown event not preserved: %s", out)
	}
}

func TestEventSpec_MarshalJSON_Shape(t *testing.T) {
	out, err := json.Marshal(EventSpec{Kind: KindSetTitle, Title: "A"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"event":"setTitle","broadcast":false,"payload":{"title":"A"}}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}

	out, err = json.Marshal(EventSpec{Kind: KindShowAlert, Broadcast: true})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want = `{"event":"showAlert","broadcast":true,"payload":{}}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
}

func TestEventSpec_Apply(t *testing.T) {
	cfg := Default(Coordinate{Row: 1, Column: 2})

	if !(EventSpec{Kind: KindSetTitle, Title: "T"}).Apply(&cfg) || cfg.Title != "T" {
		t.Errorf("setTitle not applied: %+v", cfg)
	}
	if !(EventSpec{Kind: KindSetImage, Image: "I"}).Apply(&cfg) || cfg.Image != "I" {
		t.Errorf("setImage not applied: %+v", cfg)
	}
	if (EventSpec{Kind: KindShowOk}).Apply(&cfg) {
		t.Error("showOk should not mutate config")
	}
}
