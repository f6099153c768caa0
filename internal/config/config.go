// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// optional .env in the working directory
	_ = godotenv.Load()
}

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Store    StoreConfig
	Policy   PolicyConfig
	Redis    RedisConfig
	Snapshot SnapshotConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"rentpulse"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// StoreConfig selects where rules, settings, actions and logs live.
type StoreConfig struct {
	Type       string `envconfig:"STORE_TYPE" default:"memory"` // memory or sqlite
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/rentpulse.db"`
}

// PolicyConfig points at an optional CUE policy file. When OverwriteStore is
// set the file replaces whatever rules and settings are already stored.
type PolicyConfig struct {
	File           string `envconfig:"POLICY_FILE" default:""`
	OverwriteStore bool   `envconfig:"POLICY_OVERWRITE" default:"false"`
}

// RedisConfig holds the notification sink settings.
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Channel  string `envconfig:"REDIS_CHANNEL" default:"rentpulse:notifications"`
}

// SnapshotConfig holds the unit snapshot feed settings. An empty DSN keeps
// snapshots in memory.
type SnapshotConfig struct {
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	SweepTimeout     time.Duration `envconfig:"SWEEP_TIMEOUT" default:"10s"`
	BatchConcurrency int           `envconfig:"BATCH_CONCURRENCY" default:"8"`
	EventBuffer      int           `envconfig:"EVENT_BUFFER" default:"256"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Address returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (a *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(a.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	switch cfg.Store.Type {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("failed to load config: unknown STORE_TYPE %q", cfg.Store.Type)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
