package backend

import (
	"fmt"
	"time"

	"pnlcal/internal/config"
)

// BackendType represents the type of backend
type BackendType string

const (
	PostgresBackend BackendType = "postgres"
	SQLiteBackend   BackendType = "sqlite"
	LocalBackend    BackendType = "local"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case PostgresBackend, SQLiteBackend, LocalBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Postgres specific
	DatabaseURL string

	// SQLite specific
	SQLiteDBPath string

	// Local store specific
	LocalKV        string
	LocalStorePath string
	LocalStoreKey  string
	RedisURL       string

	// Change events (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Range cache; zero TTL disables it
	CacheTTL  time.Duration
	CacheSize int
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.Backend())
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", backendType)
	}

	return Config{
		Type: backendType,

		DatabaseURL:  appConfig.DatabaseURL,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		LocalKV:        appConfig.LocalKV,
		LocalStorePath: appConfig.LocalStorePath,
		LocalStoreKey:  appConfig.LocalStoreKey,
		RedisURL:       appConfig.RedisURL,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		CacheTTL:  appConfig.CacheTTL,
		CacheSize: appConfig.CacheSize,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case LocalBackend:
		switch c.LocalKV {
		case config.LocalKVFile, "":
		case config.LocalKVRedis:
			if c.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis key-value store")
			}
		default:
			return fmt.Errorf("unsupported local key-value store: %s", c.LocalKV)
		}
	}
	// AMQP is optional, so we don't validate it

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{PostgresBackend, SQLiteBackend, LocalBackend}
}
