package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

const (
	defaultAPIToken = "dev-token"
	defaultOwner    = "dev"
)

// Config holds the process configuration read from the environment
type Config struct {
	GRPCAddr string
	LogLevel string

	StoreDriver string
	DBConnStr   string
	SQLitePath  string

	JWTSecret     string
	APIToken      string
	APITokenOwner string

	ExchangeRateAPIURL  string
	ExchangeRateAPIKey  string
	ExchangeRateTimeout time.Duration
	RateTablePath       string
	RateCacheTTL        time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// Warnings lists values that were invalid and replaced by defaults.
	// They are reported once a logger exists.
	Warnings []string
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	// A missing .env file is normal outside development
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only
func FromEnv() (*Config, error) {
	cfg := &Config{
		GRPCAddr:           getEnv("GRPC_ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		SQLitePath:         getEnv("SQLITE_PATH", "./networth.db"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		APIToken:           getEnv("API_TOKEN", defaultAPIToken),
		APITokenOwner:      getEnv("API_TOKEN_OWNER", defaultOwner),
		ExchangeRateAPIURL: getEnv("EXCHANGE_RATE_API_URL", ""),
		ExchangeRateAPIKey: getEnv("EXCHANGE_RATE_API_KEY", ""),
		RateTablePath:      getEnv("RATE_TABLE_PATH", ""),
	}

	cfg.ExchangeRateTimeout = cfg.durationEnv("EXCHANGE_RATE_TIMEOUT", 5*time.Second)
	cfg.RateCacheTTL = cfg.durationEnv("RATE_CACHE_TTL", time.Hour)
	cfg.RateLimitRPS = cfg.floatEnv("RATE_LIMIT_RPS", 10)
	cfg.RateLimitBurst = cfg.intEnv("RATE_LIMIT_BURST", 30)
	cfg.DBConnStr = postgresConnStr()

	switch cfg.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want postgres, sqlite or memory)", cfg.StoreDriver)
	}

	if cfg.APIToken == defaultAPIToken {
		cfg.warn("using default API_TOKEN; set API_TOKEN for production")
	}
	if cfg.ExchangeRateAPIURL == "" && cfg.RateTablePath == "" {
		cfg.warn("no EXCHANGE_RATE_API_URL or RATE_TABLE_PATH; exchange rates fall back to cached or default values")
	}
	return cfg, nil
}

// postgresConnStr prefers DB_CONN_STR and otherwise builds the string from the
// individual DB_* variables (Docker friendly)
func postgresConnStr() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "networth"),
	)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func (c *Config) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

func (c *Config) durationEnv(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.warn(fmt.Sprintf("invalid %s %q, using default %s", key, raw, fallback))
		return fallback
	}
	return d
}

func (c *Config) intEnv(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.warn(fmt.Sprintf("invalid %s %q, using default %d", key, raw, fallback))
		return fallback
	}
	return n
}

func (c *Config) floatEnv(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		c.warn(fmt.Sprintf("invalid %s %q, using default %g", key, raw, fallback))
		return fallback
	}
	return f
}
