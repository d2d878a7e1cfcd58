// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath               string
	PollCycle            time.Duration
	MaxConcurrentPerHost int
	HTTPTimeout          time.Duration
	LogLevel             slog.Level
}

// Load reads configuration from environment variables and returns a
// validated Config. All variables are optional with defaults:
// POLL_CYCLE_MS (30000), POLL_MAX_CONCURRENT_PER_HOST (10),
// DEPSERA_DB_PATH (depsera.db), DEPSERA_HTTP_TIMEOUT (30s),
// DEPSERA_LOG_LEVEL (info).
func Load() (*Config, error) {
	cfg := Config{
		DBPath:               "depsera.db",
		PollCycle:            30 * time.Second,
		MaxConcurrentPerHost: 10,
		HTTPTimeout:          30 * time.Second,
		LogLevel:             slog.LevelInfo,
	}

	if v, ok := os.LookupEnv("DEPSERA_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("POLL_CYCLE_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("POLL_CYCLE_MS has invalid value %q: must be a positive integer", v)
		}
		cfg.PollCycle = time.Duration(ms) * time.Millisecond
	}

	if v, ok := os.LookupEnv("POLL_MAX_CONCURRENT_PER_HOST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("POLL_MAX_CONCURRENT_PER_HOST has invalid value %q: must be a positive integer", v)
		}
		cfg.MaxConcurrentPerHost = n
	}

	if v, ok := os.LookupEnv("DEPSERA_HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("DEPSERA_HTTP_TIMEOUT has invalid duration %q: %v", v, err)
		}
		cfg.HTTPTimeout = d
	}

	if v, ok := os.LookupEnv("DEPSERA_LOG_LEVEL"); ok && v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	return &cfg, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("DEPSERA_LOG_LEVEL has invalid value %q", v)
	}
}
