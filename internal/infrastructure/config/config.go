package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the ConsultEase central core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database Database `yaml:"database"`
	MQTT     MQTT     `yaml:"mqtt"`
	InfluxDB InfluxDB `yaml:"influxdb"`
	Logging  Logging  `yaml:"logging"`
}

// Database contains SQLite database settings.
type Database struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	PoolSize    int    `yaml:"pool_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// MQTT contains MQTT broker connection settings.
type MQTT struct {
	Broker    MQTTBroker    `yaml:"broker"`
	Auth      MQTTAuth      `yaml:"auth"`
	QoS       int           `yaml:"qos"`
	Reconnect MQTTReconnect `yaml:"reconnect"`
	Queue     MQTTQueue     `yaml:"queue"`
}

// MQTTBroker contains MQTT broker connection details.
type MQTTBroker struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuth contains MQTT authentication credentials.
type MQTTAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnect contains connection supervisor settings.
type MQTTReconnect struct {
	// Delay is the fixed wait between reconnect attempts (seconds).
	Delay int `yaml:"delay"`

	// MaxAttempts is the number of attempts before entering cooldown.
	MaxAttempts int `yaml:"max_attempts"`

	// Cooldown is the wait after exhausting attempts before the counter
	// resets and attempts resume (seconds).
	Cooldown int `yaml:"cooldown"`
}

// MQTTQueue contains outbound publish pipeline settings.
type MQTTQueue struct {
	// MaxSize is the direct-lane queue capacity. When full, the oldest
	// queued message is dropped to admit the newest.
	MaxSize int `yaml:"max_size"`

	// BatchSize is the number of pending batch-lane messages that forces
	// an immediate flush.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeoutMS is the flush deadline measured from the first message
	// in an open batch (milliseconds).
	BatchTimeoutMS int `yaml:"batch_timeout_ms"`

	// DispatchWorkers is the size of the inbound handler worker pool.
	DispatchWorkers int `yaml:"dispatch_workers"`
}

// InfluxDB contains status history recorder settings.
type InfluxDB struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Logging contains logging settings.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, applies environment variable
// overrides and validates the result.
//
// Environment variables follow the pattern CONSULTEASE_SECTION_KEY,
// for example CONSULTEASE_MQTT_HOST or CONSULTEASE_DATABASE_PATH.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
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

// Default returns a Config with sensible defaults for a kiosk deployment
// talking to a broker on the local network.
func Default() *Config {
	return &Config{
		Database: Database{
			Path:        "./data/consultease.db",
			WALMode:     true,
			BusyTimeout: 5,
			PoolSize:    5,
			MaxRetries:  3,
		},
		MQTT: MQTT{
			Broker: MQTTBroker{
				Host:     "localhost",
				Port:     1883,
				ClientID: "consultease-central",
			},
			QoS: 1,
			Reconnect: MQTTReconnect{
				Delay:       5,
				MaxAttempts: 10,
				Cooldown:    60,
			},
			Queue: MQTTQueue{
				MaxSize:         1000,
				BatchSize:       10,
				BatchTimeoutMS:  100,
				DispatchWorkers: 2,
			},
		},
		InfluxDB: InfluxDB{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern CONSULTEASE_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CONSULTEASE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CONSULTEASE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CONSULTEASE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("CONSULTEASE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CONSULTEASE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("CONSULTEASE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CONSULTEASE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validation bounds.
const (
	minPort = 1
	maxPort = 65535
	maxQoS  = 2

	minDispatchWorkers = 1
	maxDispatchWorkers = 4
)

// Validate checks the configuration for invalid or inconsistent values.
// It is called by Load, and directly by tests that build configs by hand.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("database.pool_size must be at least 1, got %d", c.Database.PoolSize)
	}
	if c.Database.MaxRetries < 1 {
		return fmt.Errorf("database.max_retries must be at least 1, got %d", c.Database.MaxRetries)
	}

	if c.MQTT.Broker.Host == "" {
		return fmt.Errorf("mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < minPort || c.MQTT.Broker.Port > maxPort {
		return fmt.Errorf("mqtt.broker.port must be between %d and %d, got %d", minPort, maxPort, c.MQTT.Broker.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > maxQoS {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.Reconnect.Delay < 1 {
		return fmt.Errorf("mqtt.reconnect.delay must be at least 1 second, got %d", c.MQTT.Reconnect.Delay)
	}
	if c.MQTT.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("mqtt.reconnect.max_attempts must be at least 1, got %d", c.MQTT.Reconnect.MaxAttempts)
	}
	if c.MQTT.Queue.MaxSize < 1 {
		return fmt.Errorf("mqtt.queue.max_size must be at least 1, got %d", c.MQTT.Queue.MaxSize)
	}
	if c.MQTT.Queue.BatchSize < 1 {
		return fmt.Errorf("mqtt.queue.batch_size must be at least 1, got %d", c.MQTT.Queue.BatchSize)
	}
	if c.MQTT.Queue.DispatchWorkers < minDispatchWorkers || c.MQTT.Queue.DispatchWorkers > maxDispatchWorkers {
		return fmt.Errorf("mqtt.queue.dispatch_workers must be between %d and %d, got %d",
			minDispatchWorkers, maxDispatchWorkers, c.MQTT.Queue.DispatchWorkers)
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.bucket is required when influxdb is enabled")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}
