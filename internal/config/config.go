package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

const defaultJWTSecret = "storefront-dev-secret-change-me"

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`

	// Remote backend
	BackendURL             string        `env:"BACKEND_URL" envDefault:"http://localhost:8080/api"`
	BackendTimeout         time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	BreakerFailures        uint32        `env:"BACKEND_BREAKER_FAILURES" envDefault:"5"`
	BreakerOpenTimeout     time.Duration `env:"BACKEND_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BackendMaxConnsPerHost int           `env:"BACKEND_MAX_CONNS_PER_HOST" envDefault:"100"`

	// Sessions
	JWTSecret          string        `env:"JWT_SECRET" envDefault:"storefront-dev-secret-change-me"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SweepInterval      time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	CookieName         string        `env:"SESSION_COOKIE_NAME" envDefault:"storefront_session"`
	CookieSecure       bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	InboxSize          int           `env:"NOTIFICATION_INBOX_SIZE" envDefault:"50"`

	// Redis holds revoked session tokens.
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass    string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka activity events. Publishing is disabled when no broker is set.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Checkout display
	TaxRate  float64 `env:"TAX_RATE" envDefault:"0.10"`
	Currency string  `env:"CURRENCY" envDefault:"USD"`

	// Catalog
	FeaturedCount int           `env:"FEATURED_PRODUCT_COUNT" envDefault:"4"`
	CatalogMaxAge time.Duration `env:"CATALOG_CACHE_MAX_AGE" envDefault:"60s"`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// TaxRateDecimal returns the display-only tax rate as a decimal.
func (c *Config) TaxRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TaxRate)
}

// CurrencyUnit returns the configured display currency.
func (c *Config) CurrencyUnit() currency.Unit {
	unit, err := currency.ParseISO(c.Currency)
	if err != nil {
		return currency.USD
	}
	return unit
}

// KafkaEnabled reports whether activity events are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute http(s) URL, got %q", c.BackendURL)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.BreakerFailures == 0 {
		return fmt.Errorf("BACKEND_BREAKER_FAILURES must be at least 1")
	}

	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("TAX_RATE must be in [0, 1), got %v", c.TaxRate)
	}
	if _, err := currency.ParseISO(c.Currency); err != nil {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code: %w", err)
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}

	if c.SessionTTL <= 0 || c.SessionIdleTimeout <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("session durations must be positive")
	}
	if c.InboxSize < 1 {
		return fmt.Errorf("NOTIFICATION_INBOX_SIZE must be at least 1")
	}
	if c.FeaturedCount < 1 {
		return fmt.Errorf("FEATURED_PRODUCT_COUNT must be at least 1")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}

	if c.Environment != "development" && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	return nil
}
