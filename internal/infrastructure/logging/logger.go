package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/deckrelay/internal/infrastructure/config"
)

// Service names attached to every log entry.
const (
	ServiceRelay  = "deckrelay"
	ServiceBridge = "deckbridge"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is a slog.Logger tagged with the service and version that
// produced each entry. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml. Output
// "stderr" writes to stderr, "discard" drops everything, anything else
// goes to stdout.
func New(cfg config.LoggingConfig, service, version string) *Logger {
	var output io.Writer = os.Stdout
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "discard":
		output = io.Discard
	}
	return NewWithWriter(cfg, service, version, output)
}

// NewWithWriter is New with an explicit destination. The bridge uses it
// because its stdout belongs to the device software.
func NewWithWriter(cfg config.LoggingConfig, service, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler = slog.NewJSONHandler(output, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler.WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("version", version),
	}))}
}

// parseLevel maps a config level name to slog, case-insensitively.
// Unknown names log at info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger for one part of the relay, e.g.
// "rooms", "api" or "mqtt-mirror".
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the JSON stdout logger used until config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, ServiceRelay, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "error"}, "test", "test", io.Discard)
}
