package bridge

import (
	"net/url"
	"strings"
)

// Defaults applied when the device's stored settings leave them empty.
const (
	DefaultRemoteURL = "wss://streamdeck.dev"
	DefaultKey       = "DEFAULT_KEY"
)

// GlobalSettings is the plugin-wide state kept in the device software.
type GlobalSettings struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	Connected bool   `json:"connected"`
}

// settingsFrom builds settings from a didReceiveGlobalSettings payload,
// filling in defaults and marking the remote as not connected.
func settingsFrom(p globalSettingsPayload) GlobalSettings {
	s := GlobalSettings{URL: p.Settings.URL, Key: p.Settings.Key}
	if s.URL == "" {
		s.URL = DefaultRemoteURL
	}
	if s.Key == "" {
		s.Key = DefaultKey
	}
	return s
}

// RemoteURL returns the room socket address for s: <url>/?key=<key>.
func (s GlobalSettings) RemoteURL() string {
	return strings.TrimRight(s.URL, "/") + "/?key=" + url.QueryEscape(s.Key)
}
