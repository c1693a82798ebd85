package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend identifiers.
const (
	StorageSQLite   = "sqlite"
	StorageDynamoDB = "dynamodb"
)

// Config is the root configuration structure for the Deck Relay room server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	TLS      TLSConfig           `yaml:"tls"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains viewer WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// RoomsConfig contains room actor lifecycle settings.
type RoomsConfig struct {
	// IdleTimeout is how long (seconds) a room with no viewers and no
	// traffic stays resident before it is evicted.
	IdleTimeout int `yaml:"idle_timeout"`

	// SweepInterval is how often (seconds) the registry looks for idle rooms.
	SweepInterval int `yaml:"sweep_interval"`

	// FetchTimeout bounds outbound fetch and fetchEvents calls (seconds).
	FetchTimeout int `yaml:"fetch_timeout"`

	// QueueSize is the per-room command buffer.
	QueueSize int `yaml:"queue_size"`
}

// StorageConfig selects the button config repository.
type StorageConfig struct {
	Backend string `yaml:"backend"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DynamoDBConfig contains DynamoDB repository settings.
type DynamoDBConfig struct {
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // optional, for DynamoDB Local
}

// MQTTConfig contains MQTT broker connection settings for the state mirror.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for press telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DECKRELAY_SECTION_KEY
// For example: DECKRELAY_DATABASE_PATH, DECKRELAY_SERVER_PORT
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8787,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  120,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 1 << 20,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Rooms: RoomsConfig{
			IdleTimeout:   300,
			SweepInterval: 30,
			FetchTimeout:  10,
			QueueSize:     64,
		},
		Storage: StorageConfig{
			Backend: StorageSQLite,
		},
		Database: DatabaseConfig{
			Path:        "./data/deckrelay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		DynamoDB: DynamoDBConfig{
			Table: "deckrelay-buttons",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "deckrelay",
			},
			QoS:         1,
			TopicPrefix: "deckrelay",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DECKRELAY_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DECKRELAY_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("DECKRELAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DECKRELAY_DYNAMODB_TABLE"); v != "" {
		cfg.DynamoDB.Table = v
	}
	if v := os.Getenv("DECKRELAY_DYNAMODB_ENDPOINT"); v != "" {
		cfg.DynamoDB.Endpoint = v
	}
	if v := os.Getenv("DECKRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DECKRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DECKRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("DECKRELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("DECKRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch c.Storage.Backend {
	case StorageSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	case StorageDynamoDB:
		if c.DynamoDB.Table == "" {
			errs = append(errs, "dynamodb.table is required for the dynamodb backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend must be %q or %q", StorageSQLite, StorageDynamoDB))
	}

	if c.Rooms.IdleTimeout <= 0 {
		errs = append(errs, "rooms.idle_timeout must be positive")
	}
	if c.Rooms.SweepInterval <= 0 {
		errs = append(errs, "rooms.sweep_interval must be positive")
	}
	if c.Rooms.QueueSize <= 0 {
		errs = append(errs, "rooms.queue_size must be positive")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// RoomIdleTimeout returns the room eviction timeout as a Duration.
func (c *Config) RoomIdleTimeout() time.Duration {
	return time.Duration(c.Rooms.IdleTimeout) * time.Second
}

// RoomSweepInterval returns the registry sweep interval as a Duration.
func (c *Config) RoomSweepInterval() time.Duration {
	return time.Duration(c.Rooms.SweepInterval) * time.Second
}

// FetchTimeout returns the outbound fetch timeout as a Duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Rooms.FetchTimeout) * time.Second
}
