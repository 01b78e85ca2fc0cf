// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Preference storage backends
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config holds every tunable of the pricing core
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	BackendBaseURL string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:3000/api"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	UserAgent      string        `env:"USER_AGENT" envDefault:"waybill-pricing/1.0"`

	FetchRetries   int           `env:"FETCH_RETRIES" envDefault:"2"`
	ConvertRetries int           `env:"CONVERT_RETRIES" envDefault:"1"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"500ms"`

	RateRefreshInterval time.Duration `env:"RATE_REFRESH_INTERVAL" envDefault:"5m"`
	QuoteDebounce       time.Duration `env:"QUOTE_DEBOUNCE" envDefault:"500ms"`
	SearchDebounce      time.Duration `env:"SEARCH_DEBOUNCE" envDefault:"300ms"`
	SearchLimit         int           `env:"SEARCH_LIMIT" envDefault:"10"`
	SessionIdleTTL      time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`

	PreferenceBackend string `env:"PREFERENCE_BACKEND" envDefault:"badger"`
	PreferenceKey     string `env:"PREFERENCE_KEY" envDefault:"preferred_currency"`
	DataDir           string `env:"DATA_DIR" envDefault:"./data"`
	RedisAddr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisDB           int    `env:"REDIS_DB" envDefault:"0"`

	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"USD"`

	// FallbackRates overrides entries of the static rate table, e.g. USD_CDF=2700
	FallbackRates map[string]string `env:"FALLBACK_RATES" envKeyValSeparator:"="`
	// BaseRatesPerKg overrides the per-kg fallback pricing, e.g. USD=2.5
	BaseRatesPerKg map[string]string `env:"BASE_RATES_PER_KG" envKeyValSeparator:"="`
}

// Load parses the environment into a Config and validates it
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the parser cannot
func (c *Config) Validate() error {
	switch c.PreferenceBackend {
	case BackendBadger, BackendRedis:
	default:
		return fmt.Errorf("invalid PREFERENCE_BACKEND %q", c.PreferenceBackend)
	}
	if c.FetchRetries < 0 || c.ConvertRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must not be negative")
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be positive")
	}
	if _, err := ParseDecimalMap(c.FallbackRates); err != nil {
		return fmt.Errorf("invalid FALLBACK_RATES: %w", err)
	}
	if _, err := ParseDecimalMap(c.BaseRatesPerKg); err != nil {
		return fmt.Errorf("invalid BASE_RATES_PER_KG: %w", err)
	}
	return nil
}

// ParseDecimalMap converts string values to positive decimals with upper-cased keys
func ParseDecimalMap(in map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("%s: value must be positive", k)
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = d
	}
	return out, nil
}
