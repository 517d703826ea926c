// internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverMemory   = "memory"

	defaultSecret = "your-secret-key-change-in-production"
)

// Config holds every setting the service reads at startup.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	StoreDriver string
	DatabaseURL string
	Migrate     bool

	SecretKey     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string

	LogLevel     slog.Level
	LogFormat    string
	OTLPEndpoint string
}

// UsesDefaultSecret reports whether APP_SECRET_KEY was left unset.
func (c *Config) UsesDefaultSecret() bool {
	return c.SecretKey == defaultSecret
}

// Load reads .env (if present) into the environment and builds a Config from it.
func Load() (*Config, error) {
	// A missing .env is normal when variables come from the container runtime.
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from an arbitrary lookup function.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := &Config{
		HTTPAddr:      ":" + get("PORT", "8080"),
		StoreDriver:   strings.ToLower(get("STORE_DRIVER", DriverPostgres)),
		SecretKey:     get("APP_SECRET_KEY", defaultSecret),
		AdminEmail:    get("APP_ADMIN_EMAIL", ""),
		AdminPassword: get("APP_ADMIN_PASSWORD", ""),
		LogFormat:     strings.ToLower(get("LOG_FORMAT", "json")),
		OTLPEndpoint:  get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	switch cfg.StoreDriver {
	case DriverPostgres, DriverPGX, DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be one of postgres, pgx, memory, got %q", cfg.StoreDriver)
	}

	cfg.DatabaseURL = get("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = buildDSN(get)
	}

	var err error
	if cfg.Migrate, err = strconv.ParseBool(get("DB_MIGRATE", "true")); err != nil {
		return nil, fmt.Errorf("DB_MIGRATE: %w", err)
	}

	minutes, err := strconv.Atoi(get("APP_JWT_EXPIRE_MINUTES", "30"))
	if err != nil || minutes <= 0 {
		return nil, fmt.Errorf("APP_JWT_EXPIRE_MINUTES must be a positive integer")
	}
	cfg.TokenTTL = time.Duration(minutes) * time.Minute

	if cfg.ShutdownTimeout, err = time.ParseDuration(get("SHUTDOWN_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, fmt.Errorf("APP_ADMIN_EMAIL and APP_ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

func buildDSN(get func(string, string) string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(get("DB_USER", "postgres"), get("DB_PASSWORD", "password")),
		Host:   get("DB_HOST", "localhost") + ":" + get("DB_PORT", "5432"),
		Path:   "/" + get("DB_NAME", "library"),
	}
	q := url.Values{}
	q.Set("sslmode", get("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}
