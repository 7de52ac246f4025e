package api

import (
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	Driver          string // "sqlite" (default) or "postgres"
	DBPath          string
	DSN             string // postgres connection string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	RateLimitWrite int // mutating requests per client IP per minute (default: 300)

	LongPollMax time.Duration // upper bound for ?wait= on /v1/changes (default: 30s)
	ChangesPage int           // default and maximum ?limit= on /v1/changes (default: 500)

	CORSAllowedOrigins []string // empty = disabled

	// TrustedProxies may set X-Forwarded-For. Empty means the header is
	// ignored and the peer address identifies the client.
	TrustedProxies []netip.Prefix
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		Driver:          "sqlite",
		DBPath:          "./data/prep.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",
		RateLimitWrite:  300,
		LongPollMax:     30 * time.Second,
		ChangesPage:     500,
	}

	if v := os.Getenv("PREP_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PREP_DRIVER"); v != "" {
		cfg.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("PREP_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("PREP_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PREP_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("PREP_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("PREP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PREP_RATE_LIMIT_WRITE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitWrite = n
		}
	}
	if v := os.Getenv("PREP_LONG_POLL_MAX"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.LongPollMax = d
		}
	}
	if v := os.Getenv("PREP_CHANGES_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChangesPage = n
		}
	}
	if v := os.Getenv("PREP_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("PREP_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = parseProxies(v)
	}

	return cfg
}
