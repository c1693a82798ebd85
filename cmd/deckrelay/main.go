// Deck Relay - hosted room server
//
// This is the main entry point for the Deck Relay room server. Each device
// group identity gets a room: viewers and deck bridges connect over
// WebSocket, button configs arrive over HTTP, and key presses run the
// button's event pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/deckrelay/internal/api"
	"github.com/nerrad567/deckrelay/internal/button"
	"github.com/nerrad567/deckrelay/internal/infrastructure/config"
	"github.com/nerrad567/deckrelay/internal/infrastructure/database"
	"github.com/nerrad567/deckrelay/internal/infrastructure/influxdb"
	"github.com/nerrad567/deckrelay/internal/infrastructure/logging"
	"github.com/nerrad567/deckrelay/internal/infrastructure/mqtt"
	"github.com/nerrad567/deckrelay/internal/room"
	"github.com/nerrad567/deckrelay/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Deck Relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, logging.ServiceRelay, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	checks := make(map[string]api.HealthChecker)

	repo, closeRepo, err := openRepository(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeRepo()

	var observers room.Observers

	// MQTT state mirror (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		mirrorCtx, stopMirror := context.WithCancel(context.Background())
		mirror := room.NewMirror(mqttClient, log.Component("mqtt-mirror"))
		mirror.Start(mirrorCtx)
		defer func() {
			stopMirror()
			mirror.Wait()
		}()

		observers = append(observers, mirror)
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Press telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		observers = append(observers, room.NewTelemetry(influxClient))
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	registry := room.NewRegistry(room.Options{
		Repository:    repo,
		Fetcher:       room.NewHTTPFetcher(cfg.FetchTimeout()),
		Observer:      observers,
		Logger:        log.Component("rooms"),
		IdleTimeout:   cfg.RoomIdleTimeout(),
		SweepInterval: cfg.RoomSweepInterval(),
		FetchTimeout:  cfg.FetchTimeout(),
		QueueSize:     cfg.Rooms.QueueSize,
	})
	registry.Start(ctx)
	defer func() {
		log.Info("closing rooms")
		registry.Close()
	}()

	server, err := api.New(api.Deps{
		Config:  cfg.Server,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Rooms:   registry,
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Rooms (closes viewer sessions)
	// 3. InfluxDB, MQTT (if enabled)
	// 4. Repository

	log.Info("Deck Relay stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DECKRELAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DECKRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openRepository opens the configured button store, registering its
// health check when it has one. The returned func releases it.
func openRepository(ctx context.Context, cfg *config.Config, log *logging.Logger, checks map[string]api.HealthChecker) (button.Repository, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageDynamoDB:
		repo, err := button.OpenDynamoDB(ctx, button.DynamoDBOptions{
			Table:    cfg.DynamoDB.Table,
			Region:   cfg.DynamoDB.Region,
			Endpoint: cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening DynamoDB: %w", err)
		}
		log.Info("DynamoDB repository ready", "table", cfg.DynamoDB.Table, "region", cfg.DynamoDB.Region)
		return repo, func() {}, nil

	default:
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		closeDB := func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}
		log.Info("database connected", "path", cfg.Database.Path)

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database migrations complete")

		checks["database"] = db
		return button.NewSQLiteRepository(db.DB), closeDB, nil
	}
}
