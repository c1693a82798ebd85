package room

import "github.com/nerrad567/deckrelay/internal/button"

// Logger is the logging interface used by the room package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// identityLogger prefixes every entry with the actor's identity.
type identityLogger struct {
	l        Logger
	identity string
}

func (l identityLogger) kv(keysAndValues []any) []any {
	return append([]any{"identity", l.identity}, keysAndValues...)
}

func (l identityLogger) Debug(msg string, keysAndValues ...any) { l.l.Debug(msg, l.kv(keysAndValues)...) }
func (l identityLogger) Info(msg string, keysAndValues ...any)  { l.l.Info(msg, l.kv(keysAndValues)...) }
func (l identityLogger) Warn(msg string, keysAndValues ...any)  { l.l.Warn(msg, l.kv(keysAndValues)...) }
func (l identityLogger) Error(msg string, keysAndValues ...any) { l.l.Error(msg, l.kv(keysAndValues)...) }

// Observer is notified of room activity. Calls happen on the actor
// goroutine, so implementations must not block.
type Observer interface {
	// ConfigSaved is called after cfg has been persisted for identity.
	ConfigSaved(identity string, cfg button.Config)

	// KeyPressed is called for every keyUp with the number of events the
	// button's config declares.
	KeyPressed(identity string, c button.Coordinate, events int)

	// FetchFailed is called when a fetch or fetchEvents call fails.
	FetchFailed(identity string, kind button.Kind, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) ConfigSaved(string, button.Config) {}

func (NopObserver) KeyPressed(string, button.Coordinate, int) {}

func (NopObserver) FetchFailed(string, button.Kind, error) {}

// Observers fans each notification out to every member.
type Observers []Observer

func (o Observers) ConfigSaved(identity string, cfg button.Config) {
	for _, ob := range o {
		ob.ConfigSaved(identity, cfg)
	}
}

func (o Observers) KeyPressed(identity string, c button.Coordinate, events int) {
	for _, ob := range o {
		ob.KeyPressed(identity, c, events)
	}
}

func (o Observers) FetchFailed(identity string, kind button.Kind, err error) {
	for _, ob := range o {
		ob.FetchFailed(identity, kind, err)
	}
}
