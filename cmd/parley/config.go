package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds parley server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	LogLevel           string `json:"log_level"`
	ElicitationTimeout string `json:"elicitation_timeout"`
	RetryMaxAttempts   int    `json:"retry_max_attempts"`
	RetryDelay         string `json:"retry_delay"`
	StateTimeout       string `json:"state_timeout"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:         "info",
		RetryMaxAttempts: 3,
		RetryDelay:       "500ms",
	}
}

func parleyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(home, ".parley")
}

func settingsPath() string {
	return filepath.Join(parleyDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PARLEY_ELICITATION_TIMEOUT"); v != "" {
		cfg.ElicitationTimeout = v
	}
	if v := os.Getenv("PARLEY_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("PARLEY_RETRY_DELAY"); v != "" {
		cfg.RetryDelay = v
	}
	if v := os.Getenv("PARLEY_STATE_TIMEOUT"); v != "" {
		cfg.StateTimeout = v
	}

	return cfg
}

// duration parses a config duration string, falling back when empty or invalid.
func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
