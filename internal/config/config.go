// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
//
// Instance and AccessToken are optional fallbacks: credentials stored in the
// database take precedence, these only matter for headless setups.
type Config struct {
	Instance     string
	AccessToken  string
	DatabasePath string
	MediaPath    string
	PollInterval time.Duration
	LogLevel     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/tootkeeper.db"
	}

	mediaPath := os.Getenv("MEDIA_PATH")
	if mediaPath == "" {
		mediaPath = "./data/media"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	pollMinutes := 5
	if raw := os.Getenv("POLL_INTERVAL"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: must be a positive number of minutes", raw)
		}
		pollMinutes = n
	}

	return &Config{
		Instance:     os.Getenv("MASTODON_INSTANCE"),
		AccessToken:  os.Getenv("MASTODON_ACCESS_TOKEN"),
		DatabasePath: dbPath,
		MediaPath:    mediaPath,
		PollInterval: time.Duration(pollMinutes) * time.Minute,
		LogLevel:     logLevel,
	}, nil
}
