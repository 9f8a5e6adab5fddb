// Package config loads the service configuration from the environment.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/compute/metadata"
)

const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
)

type Config struct {
	Port             string
	Store            string
	FirestoreProject string
	DatabaseURL      string
	LogFormat        string
	LogLevel         slog.Level
	DefaultTimezone  string
	// pq.Listener reconnect backoff bounds for Postgres live queries.
	ListenMinReconnect time.Duration
	ListenMaxReconnect time.Duration
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		Store:            strings.ToLower(getEnv("STORE", StoreFirestore)),
		FirestoreProject: firstEnv("FIRESTORE_PROJECT", "GOOGLE_CLOUD_PROJECT"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DefaultTimezone:  getEnv("DEFAULT_TIMEZONE", "UTC"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	minReconnect, err := parseDurationEnv("PG_LISTEN_MIN_RECONNECT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ListenMinReconnect = minReconnect

	maxReconnect, err := parseDurationEnv("PG_LISTEN_MAX_RECONNECT", time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.ListenMaxReconnect = maxReconnect

	switch cfg.Store {
	case StoreFirestore, StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for STORE=%s", StorePostgres)
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return Config{}, fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}
	return cfg, nil
}

// Location is the timezone used when a request does not name one.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProjectID returns FIRESTORE_PROJECT or asks the metadata server.
func (c Config) ProjectID(ctx context.Context) (string, error) {
	if c.FirestoreProject != "" {
		return c.FirestoreProject, nil
	}
	projectID, err := metadata.ProjectIDWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve project id: %w", err)
	}
	return projectID, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}
