// Package config loads the engine settings from a YAML file with
// environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/steadystate/havoc/pkg/safety"
)

// Config captures the settings required to boot the engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Safety    safety.Policy   `yaml:"safety"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig controls the admin HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// EngineConfig controls run execution and scheduling cadence.
type EngineConfig struct {
	// PollInterval is the continuous safety check cadence during a run.
	PollInterval time.Duration `yaml:"pollInterval"`
	// TickInterval is how often the scheduler evaluates schedules.
	TickInterval time.Duration `yaml:"tickInterval"`
	// Workers bounds how many experiments may run concurrently.
	Workers int `yaml:"workers"`
	// CleanupTimeout bounds rollback after a halt or natural expiry.
	CleanupTimeout time.Duration `yaml:"cleanupTimeout"`
	// HistorySize is how many terminal run records are retained.
	HistorySize int `yaml:"historySize"`
}

// CatalogConfig controls experiment definition loading.
type CatalogConfig struct {
	Path string `yaml:"path"`
	// Watch enables hot reload of the catalog file.
	Watch bool `yaml:"watch"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	// OTelExporterEndpoint enables span export when set, host:port of an
	// OTLP gRPC collector.
	OTelExporterEndpoint string `yaml:"otelExporterEndpoint"`
}

// Load initialises Config from a YAML file and environment overrides.
// A missing path boots on defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HAVOC_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Errorf("unable to read config file %s, %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Errorf("unable to parse config file %s, %v", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8480",
			GracefulTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			PollInterval:   10 * time.Second,
			TickInterval:   30 * time.Second,
			Workers:        4,
			CleanupTimeout: 30 * time.Second,
			HistorySize:    512,
		},
		Catalog: CatalogConfig{
			Path:  "configs/experiments.yaml",
			Watch: true,
		},
		Safety:  safety.DefaultPolicy(),
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HAVOC_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("HAVOC_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.PollInterval = d
		}
	}
	if v := os.Getenv("HAVOC_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.TickInterval = d
		}
	}
	if v := os.Getenv("HAVOC_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Workers = workers
		}
	}
	if v := os.Getenv("HAVOC_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("HAVOC_CATALOG_WATCH"); v != "" {
		cfg.Catalog.Watch = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("HAVOC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HAVOC_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTelExporterEndpoint = v
	}
}
