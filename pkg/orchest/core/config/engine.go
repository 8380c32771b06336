package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// EngineConfig carries the tunables of the orchestration engine.
type EngineConfig struct {
	// LogLevel is the global log level (DEBUG, INFO, WARN, ERROR, FATAL).
	LogLevel string `mapstructure:"log-level" yaml:"log-level"`

	// StepConcurrency bounds parallel step dispatch within a single run.
	StepConcurrency int `mapstructure:"step-concurrency" yaml:"step-concurrency"`

	// BackfillConcurrency bounds parallel partition launches of a backfill.
	BackfillConcurrency int `mapstructure:"backfill-concurrency" yaml:"backfill-concurrency"`

	// SchedulerInterval is the pause between scheduler engine passes.
	SchedulerInterval time.Duration `mapstructure:"scheduler-interval" yaml:"scheduler-interval"`

	// SensorInterval is the pause between sensor engine passes.
	SensorInterval time.Duration `mapstructure:"sensor-interval" yaml:"sensor-interval"`

	// MaxCatchupTicks bounds how many missed cron timestamps a single scheduler
	// pass may catch up on per schedule.
	MaxCatchupTicks int `mapstructure:"max-catchup-ticks" yaml:"max-catchup-ticks"`

	// CatchupWindow bounds how far back catch-up may look for missed cron
	// timestamps.
	CatchupWindow time.Duration `mapstructure:"catchup-window" yaml:"catchup-window"`

	// TerminateTimeout bounds the wait for a launcher to acknowledge a
	// termination request before reporting failure-to-terminate.
	TerminateTimeout time.Duration `mapstructure:"terminate-timeout" yaml:"terminate-timeout"`

	// Store selects the persistence backend.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Metrics selects the observability backend.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Driver is one of "memory", "sqlite", "postgres", "mysql".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is the driver-specific connection string. Ignored for "memory".
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// MetricsConfig selects the observability backend.
type MetricsConfig struct {
	// Backend is one of "noop", "prometheus".
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// NewDefaultEngineConfig returns the engine defaults used when no
// configuration file or environment override is present.
func NewDefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		LogLevel:            "INFO",
		StepConcurrency:     4,
		BackfillConcurrency: 4,
		SchedulerInterval:   30 * time.Second,
		SensorInterval:      30 * time.Second,
		MaxCatchupTicks:     5,
		CatchupWindow:       24 * time.Hour,
		TerminateTimeout:    10 * time.Second,
		Store:               StoreConfig{Driver: "memory"},
		Metrics:             MetricsConfig{Backend: "noop"},
	}
}

// LoadEngineConfig builds the engine configuration from, in order of
// precedence: defaults, the optional YAML file at path, and SWELL_-prefixed
// environment variables. A `.env` file in the working directory is loaded
// first so local development overrides travel with the checkout.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	const op = "config"

	// Best effort: a missing .env file is not an error.
	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}

	cfg := NewDefaultEngineConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, exception.NewInternalError(op, fmt.Sprintf("Failed to read config file '%s'", path), err)
		}
		var tree map[string]interface{}
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, exception.NewInternalError(op, fmt.Sprintf("Failed to parse config file '%s'", path), err)
		}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
			Result:     cfg,
		})
		if err != nil {
			return nil, exception.NewInternalError(op, "Failed to build config decoder", err)
		}
		if err := decoder.Decode(tree); err != nil {
			return nil, exception.NewInternalError(op, fmt.Sprintf("Failed to bind config file '%s'", path), err)
		}
	}

	applyEnvOverrides(cfg)
	logger.SetLogLevel(cfg.LogLevel)
	return cfg, nil
}

// applyEnvOverrides maps SWELL_* environment variables onto the config.
func applyEnvOverrides(cfg *EngineConfig) {
	if v := os.Getenv("SWELL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SWELL_STEP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StepConcurrency = n
		}
	}
	if v := os.Getenv("SWELL_BACKFILL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BackfillConcurrency = n
		}
	}
	if v := os.Getenv("SWELL_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SchedulerInterval = d
		}
	}
	if v := os.Getenv("SWELL_SENSOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SensorInterval = d
		}
	}
	if v := os.Getenv("SWELL_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("SWELL_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("SWELL_METRICS_BACKEND"); v != "" {
		cfg.Metrics.Backend = v
	}
}
