package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by DATA_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendLocal    = "local"
)

// Key-value engines for the local backend.
const (
	LocalKVFile  = "file"
	LocalKVRedis = "redis"
)

var validBackends = []string{BackendPostgres, BackendSQLite, BackendLocal}

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Backend selection; empty means auto-detect, see Backend.
	DataBackend string

	// Postgres (remote table store)
	DatabaseURL string

	// SQLite
	SQLiteDBPath string

	// Local store
	LocalKV        string
	LocalStorePath string
	LocalStoreKey  string
	RedisURL       string

	// AMQP; empty URL disables change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Auth
	AuthUsersFile  string
	AuthJWTSecret  string
	AuthSessionTTL time.Duration

	// Request handling
	RateLimitPerMinute int
	CacheTTL           time.Duration
	CacheSize          int

	// Google Sheets mirror (worker)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Worker
	SyncInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend: strings.ToLower(getEnv("DATA_BACKEND", "")),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/pnlcal.db"),

		LocalKV:        strings.ToLower(getEnv("LOCAL_KV", LocalKVFile)),
		LocalStorePath: getEnv("LOCAL_STORE_PATH", "./data"),
		LocalStoreKey:  getEnv("LOCAL_STORE_KEY", "pnl_entries"),
		RedisURL:       getEnv("REDIS_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pnlcal"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "entry_changes"),

		AuthUsersFile:  getEnv("AUTH_USERS_FILE", "./users.yaml"),
		AuthJWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
		AuthSessionTTL: getEnvDuration("AUTH_SESSION_TTL", 24*time.Hour),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CacheTTL:           getEnvDuration("CACHE_TTL", 2*time.Minute),
		CacheSize:          getEnvInt("CACHE_SIZE", 256),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Journal"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		SyncInterval: getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
	}
}

// Backend resolves the storage variant: DATA_BACKEND when set, otherwise
// postgres when DATABASE_URL is configured, otherwise the local store.
func (c *Config) Backend() string {
	if c.DataBackend != "" {
		return c.DataBackend
	}
	if c.DatabaseURL != "" {
		return BackendPostgres
	}
	return BackendLocal
}

// Validate checks the settings the web server needs and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errs = append(errs, c.validateBackend()...)
	errs = append(errs, c.validateAMQP()...)

	if c.AuthUsersFile == "" {
		errs = append(errs, "AUTH_USERS_FILE cannot be empty")
	} else if _, err := os.Stat(c.AuthUsersFile); err != nil {
		errs = append(errs, fmt.Sprintf("auth users file not readable: %s", c.AuthUsersFile))
	}
	if len(c.AuthJWTSecret) < 16 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 16 characters")
	}
	if c.AuthSessionTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.AuthSessionTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if c.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	return joinErrors(errs)
}

// ValidateWorker checks the settings of the sheet mirror worker.
func (c *Config) ValidateWorker() error {
	var errs []string

	errs = append(errs, c.validateBackend()...)

	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the worker")
	}
	errs = append(errs, c.validateAMQP()...)

	// Without a spreadsheet the worker mirrors in memory only.
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errs = append(errs, "Google Sheet name is required when a spreadsheet is configured")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	return joinErrors(errs)
}

func (c *Config) validateBackend() []string {
	var errs []string
	backend := c.Backend()
	if !slices.Contains(validBackends, backend) {
		return []string{fmt.Sprintf("invalid data backend '%s': must be one of %v", backend, validBackends)}
	}

	switch backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errs = append(errs, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
			errs = append(errs, fmt.Sprintf("cannot create SQLite database directory: %v", err))
		}
	case BackendLocal:
		switch c.LocalKV {
		case LocalKVFile:
			if c.LocalStorePath == "" {
				errs = append(errs, "LOCAL_STORE_PATH cannot be empty when using the file store")
			}
		case LocalKVRedis:
			if c.RedisURL == "" {
				errs = append(errs, "REDIS_URL is required when LOCAL_KV is redis")
			} else if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
				errs = append(errs, fmt.Sprintf("invalid REDIS_URL '%s': must use redis:// or rediss://", c.RedisURL))
			}
		default:
			errs = append(errs, fmt.Sprintf("invalid LOCAL_KV '%s': must be 'file' or 'redis'", c.LocalKV))
		}
		if c.LocalStoreKey == "" {
			errs = append(errs, "LOCAL_STORE_KEY cannot be empty")
		}
	}
	return errs
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errs []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errs
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
