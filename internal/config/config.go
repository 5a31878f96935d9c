// Package config resolves runtime settings from the environment, with
// defaults suited to a local sqlite-backed project.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultStoreURL = "sqlite://metrics.db"
	defaultTraceURL = "sqlite://traces.db"
)

// Config carries every setting the CLI and server consume. Sources and
// targets resolve their own connection details from their manifests;
// these values supply the defaults and the framework's own backends.
type Config struct {
	// ConfigRoot is the project directory holding the sources/,
	// metrics/, and targets/ manifest groups.
	ConfigRoot string

	// DatabaseURL backs store targets that declare no dsn of their own.
	DatabaseURL string

	// TraceDatabaseURL backs the run trace log.
	TraceDatabaseURL string

	LogLevel string

	// CatalogEnabled turns on best-effort catalog registration of
	// successful runs; CatalogURL is required when enabled.
	CatalogEnabled bool
	CatalogURL     string

	// HTTPAddr is the inspection server bind address; APISecret, when
	// set, puts the /api routes behind bearer-token auth.
	HTTPAddr  string
	APISecret string

	// ShutdownGrace bounds graceful shutdown of the inspection server
	// and watch scheduler.
	ShutdownGrace time.Duration
}

// Load resolves the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		ConfigRoot:       getEnv("METRIFY_CONFIG_ROOT", "."),
		DatabaseURL:      getEnv("DATABASE_URL", defaultStoreURL),
		TraceDatabaseURL: getEnv("TRACE_DATABASE_URL", defaultTraceURL),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		CatalogEnabled:   getBool("METRIFY_CATALOG_ENABLED", false),
		CatalogURL:       getEnv("METRIFY_CATALOG_URL", ""),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		APISecret:        getEnv("METRIFY_API_SECRET", ""),
		ShutdownGrace:    getDuration("METRIFY_SHUTDOWN_GRACE", 5*time.Second),
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}
