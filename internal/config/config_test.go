package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.HTTPPort)
	assert.Equal(t, ":8090", cfg.Addr())
	assert.Equal(t, "http://localhost:8080/api", cfg.BackendURL)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout)
	assert.Equal(t, "storefront_session", cfg.CookieName)
	assert.Equal(t, "0.1", cfg.TaxRateDecimal().String())
	assert.Equal(t, currency.USD, cfg.CurrencyUnit())
	assert.Equal(t, 4, cfg.FeaturedCount)
	assert.Equal(t, time.Minute, cfg.CatalogMaxAge)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_KafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"http port", map[string]string{"STOREFRONT_HTTP_PORT": "0"}, "invalid HTTP port"},
		{"backend url relative", map[string]string{"BACKEND_URL": "/api"}, "BACKEND_URL"},
		{"backend url scheme", map[string]string{"BACKEND_URL": "ftp://backend/api"}, "BACKEND_URL"},
		{"tax rate one", map[string]string{"TAX_RATE": "1"}, "TAX_RATE"},
		{"tax rate negative", map[string]string{"TAX_RATE": "-0.1"}, "TAX_RATE"},
		{"currency", map[string]string{"CURRENCY": "XYZW"}, "CURRENCY"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "2.0"}, "OTEL_SAMPLE_RATE must be between 0.0 and 1.0"},
		{"inbox", map[string]string{"NOTIFICATION_INBOX_SIZE": "0"}, "NOTIFICATION_INBOX_SIZE"},
		{"default secret in production", map[string]string{"ENVIRONMENT": "production"}, "JWT_SECRET must be changed"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "at least 16 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionWithCustomSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "a-very-long-production-secret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_CustomTaxAndCurrency(t *testing.T) {
	t.Setenv("TAX_RATE", "0.2")
	t.Setenv("CURRENCY", "EUR")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.2", cfg.TaxRateDecimal().String())
	assert.Equal(t, currency.EUR, cfg.CurrencyUnit())
}
