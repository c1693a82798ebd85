// Deck Bridge - local plugin process
//
// The device control software launches this binary with its connection
// details:
//
//	deckbridge -port 28196 -pluginUUID <uuid> -registerEvent registerPlugin -info '{...}'
//
// It connects to the device software on 127.0.0.1, reads the room URL
// and key from the plugin's global settings, and relays between the two
// until the device software closes its socket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/deckrelay/internal/bridge"
	"github.com/nerrad567/deckrelay/internal/infrastructure/config"
	"github.com/nerrad567/deckrelay/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
var version = "dev"

// launchArgs are the flags passed by the device software.
type launchArgs struct {
	port          int
	pluginUUID    string
	registerEvent string
	info          string
}

// launchInfo is the part of the -info JSON worth logging.
type launchInfo struct {
	Application struct {
		Version  string `json:"version"`
		Platform string `json:"platform"`
	} `json:"application"`
	Devices []json.RawMessage `json:"devices"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string, output io.Writer) (launchArgs, error) {
	var a launchArgs
	fs := flag.NewFlagSet("deckbridge", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&a.port, "port", 0, "device software WebSocket port")
	fs.StringVar(&a.pluginUUID, "pluginUUID", "", "plugin instance identifier")
	fs.StringVar(&a.registerEvent, "registerEvent", "", "event used to register with the device software")
	fs.StringVar(&a.info, "info", "", "device software environment as JSON")

	if err := fs.Parse(args); err != nil {
		return launchArgs{}, err
	}
	if a.port == 0 || a.pluginUUID == "" || a.registerEvent == "" {
		return launchArgs{}, errors.New("-port, -pluginUUID and -registerEvent are required")
	}
	return a, nil
}

// run connects the bridge and blocks until the device software goes away
// or ctx is cancelled. Logs go to logOutput; stdout is left alone.
func run(ctx context.Context, args []string, logOutput io.Writer) error {
	a, err := parseArgs(args, logOutput)
	if err != nil {
		return fmt.Errorf("parsing launch arguments: %w", err)
	}

	level := os.Getenv("DECKBRIDGE_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	log := logging.NewWithWriter(config.LoggingConfig{Level: level, Format: "text"},
		logging.ServiceBridge, version, logOutput)

	var info launchInfo
	if a.info != "" {
		if err := json.Unmarshal([]byte(a.info), &info); err != nil {
			log.Warn("ignoring unreadable -info", "error", err)
		}
	}
	log.Info("starting Deck Bridge",
		"version", version,
		"app_version", info.Application.Version,
		"platform", info.Application.Platform,
		"devices", len(info.Devices),
	)

	b, err := bridge.New(bridge.Options{
		Port:          a.port,
		PluginUUID:    a.pluginUUID,
		RegisterEvent: a.registerEvent,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer b.Stop()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-b.DeviceDisconnected():
		log.Info("device software disconnected, exiting")
	}
	return nil
}
