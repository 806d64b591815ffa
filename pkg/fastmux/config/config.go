// Package config loads multiplexer settings from FASTMUX_* environment
// variables.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/ib-77/fastmux/pkg/fastmux/logging"
	"github.com/ib-77/fastmux/pkg/fastmux/mux"
)

const prefix = "fastmux"

// Config holds multiplexer and logging configuration.
type Config struct {
	CompletePeersOnFinish bool `envconfig:"COMPLETE_PEERS_ON_FINISH" default:"true"`
	EmitLaggard           bool `envconfig:"EMIT_LAGGARD" default:"false"`
	HighWaterMark         int  `envconfig:"HIGH_WATER_MARK" default:"1"`
	Log                   LogConfig
}

// LogConfig is read from FASTMUX_LOG_LEVEL and FASTMUX_LOG_DEV.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// Load loads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.HighWaterMark < 1 {
		return nil, fmt.Errorf("failed to load config: high water mark must be positive, got %d", cfg.HighWaterMark)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns Default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func Default() *Config {
	return &Config{
		CompletePeersOnFinish: true,
		EmitLaggard:           false,
		HighWaterMark:         1,
		Log: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Options converts c into multiplexer options using log for logging.
func (c *Config) Options(log *zap.Logger) []mux.Option {
	return []mux.Option{
		mux.WithCompletePeersOnFinish(c.CompletePeersOnFinish),
		mux.WithEmitLaggard(c.EmitLaggard),
		mux.WithHighWaterMark(c.HighWaterMark),
		mux.WithLogger(log),
	}
}

func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Development = c.Log.Development
	return cfg
}
