// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Counter modes for the server emitter.
const (
	CounterShared        = "shared"
	CounterPerConnection = "per_connection"
)

// Backend holds the addresses and credentials of the vehicle backend.
type Backend struct {
	URL       string `yaml:"url"`
	StreamURL string `yaml:"stream_url"`
	APIKey    string `yaml:"api_key"`
}

// Server configures the telemetry backend served by "serve".
type Server struct {
	Listen   string        `yaml:"listen"`
	Interval time.Duration `yaml:"interval"`
	Counter  string        `yaml:"counter"`
	Profile  string        `yaml:"profile"`
}

// Reconnect mirrors the stream client backoff policy.
type Reconnect struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Telemetry configures the local generator.
type Telemetry struct {
	Profile       string        `yaml:"profile"`
	LocalInterval time.Duration `yaml:"local_interval"`
	HomeLat       float64       `yaml:"home_lat"`
	HomeLon       float64       `yaml:"home_lon"`
	GroundAltM    float64       `yaml:"ground_alt_m"`
}

// Greptime is the time-series sink target.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// SQL is the relational sink target.
type SQL struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// Record selects the recorder sinks.
type Record struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
	File          string        `yaml:"file"`
	Stdout        bool          `yaml:"stdout"`
	Greptime      *Greptime     `yaml:"greptime"`
	SQL           *SQL          `yaml:"sql"`
}

// Log configures the process logger.
type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Config is the root configuration of the ground-control tools.
type Config struct {
	Backend   Backend   `yaml:"backend"`
	Server    Server    `yaml:"server"`
	Reconnect Reconnect `yaml:"reconnect"`
	Telemetry Telemetry `yaml:"telemetry"`
	Record    Record    `yaml:"record"`
	Log       Log       `yaml:"log"`
}

// Default returns the demo configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: Backend{
			URL:       "http://localhost:8000",
			StreamURL: "ws://localhost:8000/ws",
			APIKey:    "gcs-secret-key-2024",
		},
		Server: Server{
			Listen:   ":8000",
			Interval: 500 * time.Millisecond,
			Counter:  CounterShared,
		},
		Reconnect: Reconnect{
			BaseDelay:   time.Second,
			Multiplier:  1.5,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 10,
		},
		Telemetry: Telemetry{
			LocalInterval: 500 * time.Millisecond,
			HomeLat:       47.3977,
			HomeLon:       8.5456,
			GroundAltM:    400,
		},
		Record: Record{
			FlushInterval: time.Second,
			BatchSize:     50,
		},
		Log: Log{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads configPath over the defaults, validates it against the CUE
// schema and applies environment overrides. An empty configPath yields the
// defaults plus overrides; an empty cueSchemaPath uses the embedded schema.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"GCS_BACKEND_URL": &c.Backend.URL,
		"GCS_STREAM_URL":  &c.Backend.StreamURL,
		"GCS_API_KEY":     &c.Backend.APIKey,
		"GCS_LISTEN_ADDR": &c.Server.Listen,
		"GCS_LOG_LEVEL":   &c.Log.Level,
		"GCS_LOG_FILE":    &c.Log.File,
		"GCS_PROFILE":     &c.Telemetry.Profile,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("GCS_MAX_RECONNECT_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: GCS_MAX_RECONNECT_ATTEMPTS=%q", ErrInvalid, v)
		}
		c.Reconnect.MaxAttempts = n
	}
	return nil
}
