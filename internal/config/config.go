package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

const (
	defaultListenAddr    = "127.0.0.1:8080"
	defaultStore         = StoreSQLite
	defaultDBPath        = "sisyphus.db"
	defaultMongoURI      = "mongodb://localhost:27017"
	defaultMongoDatabase = "sisyphus"

	envListenAddr    = "SISYPHUS_LISTEN_ADDR"
	envStore         = "SISYPHUS_STORE"
	envDBPath        = "SISYPHUS_DB_PATH"
	envPostgresDSN   = "SISYPHUS_POSTGRES_DSN"
	envMongoURI      = "MONGODB_URI"
	envMongoDatabase = "SISYPHUS_MONGO_DB"
	envLogLevel      = "SISYPHUS_LOG_LEVEL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	Store         string
	DBPath        string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	LogLevel      slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		Store:         defaultStore,
		DBPath:        defaultDBPath,
		MongoURI:      defaultMongoURI,
		MongoDatabase: defaultMongoDatabase,
		LogLevel:      slog.LevelInfo,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envStore); v != "" {
		cfg.Store = strings.ToLower(v)
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envPostgresDSN); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv(envMongoURI); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv(envMongoDatabase); v != "" {
		cfg.MongoDatabase = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}

	return cfg
}

// Validate checks that the selected store has the settings it needs.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is empty")
	}
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return errors.New("sqlite store requires a database path")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres store requires %s", envPostgresDSN)
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return errors.New("mongo store requires a URI and database name")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, StoreSQLite, StorePostgres, StoreMongo)
	}
	return nil
}

// ParseLogLevel maps a level name to a slog level. Unknown names map to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
