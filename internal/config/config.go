// Package config assembles runtime configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sgerhart/alertflux/internal/store"
)

// Config carries every runtime knob. All fields have working defaults so a
// bare binary starts against the in-memory store.
type Config struct {
	HTTPAddr        string
	NATSURL         string
	NATSQueue       string
	PostgresDSN     string
	StrategiesDir   string
	HotReload       bool
	DebounceMs      int
	ScanInterval    time.Duration
	TimeoutInterval time.Duration
	IdleInterval    time.Duration
	WriteBatchSize  int
	IntakeSecret    string
	LogLevel        slog.Level
}

// FromEnv reads the AF_* environment variables, falling back to defaults for
// unset or unparseable values. An empty AF_POSTGRES_DSN selects the
// in-memory store.
func FromEnv() Config {
	return Config{
		HTTPAddr:        getEnv("AF_HTTP_ADDR", ":8085"),
		NATSURL:         getEnv("AF_NATS_URL", "nats://localhost:4222"),
		NATSQueue:       getEnv("AF_NATS_QUEUE", "alertflux-workers"),
		PostgresDSN:     os.Getenv("AF_POSTGRES_DSN"),
		StrategiesDir:   getEnv("AF_STRATEGIES_DIR", "strategies.d"),
		HotReload:       getEnvBool("AF_HOT_RELOAD", false),
		DebounceMs:      getEnvInt("AF_DEBOUNCE_MS", 1000),
		ScanInterval:    getEnvDuration("AF_SCAN_INTERVAL", time.Minute),
		TimeoutInterval: getEnvDuration("AF_TIMEOUT_INTERVAL", 5*time.Minute),
		IdleInterval:    getEnvDuration("AF_IDLE_CLOSE_INTERVAL", 5*time.Minute),
		WriteBatchSize:  getEnvPositiveInt("AF_WRITE_BATCH_SIZE", store.DefaultWriteBatchSize),
		IntakeSecret:    os.Getenv("AF_INTAKE_SECRET"),
		LogLevel:        getEnvLogLevel("AF_LOG_LEVEL", slog.LevelInfo),
	}
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvPositiveInt(key string, defaultValue int) int {
	if v := getEnvInt(key, defaultValue); v > 0 {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return defaultValue
}
