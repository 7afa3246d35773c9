package app

import (
	"errors"
	"fmt"
	"slices"
)

// Config holds the process-level settings an App is created with. Project
// settings live in the config file it points to.
type Config struct {
	// ConfigPath is the project config file. When ConfigRequired is false a
	// missing file means defaults.
	ConfigPath     string
	ConfigRequired bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

var (
	logFormats = []string{"text", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if !slices.Contains(logFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if !slices.Contains(logLevels, cfg.LogLevel) {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck-port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
