// Package config provides process-level configuration (environment
// variables, .env file) and the universe-scoped runtime configuration
// that agents are constructed with and that can be changed at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration: how this instance talks to
// the outside world. It is loaded once at startup and does not change
// for the lifetime of the process.
type Config struct {
	Port     int    // HTTP server port
	DevMode  bool   // Development mode flag
	LogLevel string // zerolog level name

	AlpacaAPIKey    string
	AlpacaSecretKey string
	TradingMode     string // "paper" or "live", selects the broker endpoint

	DataFeed string // "iex" or "sip"

	WebhookURL string
	APIToken   string

	AllowedOrigins []string
	APIHost        string
	UIPort         int

	AnalyticsArchiveBucket        string // enables S3/R2 analytics archival when non-empty
	AnalyticsArchiveEndpoint      string // optional S3-compatible endpoint override (e.g. Cloudflare R2)
	AnalyticsArchiveRetentionDays int
	AnalyticsArchiveMinKeep       int
}

// Load reads process configuration from the environment, loading a .env
// file first if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AlpacaAPIKey:    getEnv("ALPACA_API_KEY", ""),
		AlpacaSecretKey: getEnv("ALPACA_SECRET_KEY", ""),
		TradingMode:     getEnv("TRADING_MODE", "paper"),

		DataFeed: getEnv("DATA_FEED", "iex"),

		WebhookURL: getEnv("WEBHOOK_URL", ""),
		APIToken:   getEnv("API_TOKEN", ""),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{
			"http://127.0.0.1:8000", "http://localhost:8000",
		}),
		APIHost: getEnv("API_HOST", "127.0.0.1"),
		UIPort:  getEnvAsInt("UI_PORT", 3000),

		AnalyticsArchiveBucket:        getEnv("ANALYTICS_ARCHIVE_BUCKET", ""),
		AnalyticsArchiveEndpoint:      getEnv("ANALYTICS_ARCHIVE_ENDPOINT", ""),
		AnalyticsArchiveRetentionDays: getEnvAsInt("ANALYTICS_ARCHIVE_RETENTION_DAYS", 30),
		AnalyticsArchiveMinKeep:       getEnvAsInt("ANALYTICS_ARCHIVE_MIN_KEEP", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks process configuration for internal consistency.
// Broker credentials are optional: a simulation universe never needs them.
func (c *Config) Validate() error {
	if c.TradingMode != "paper" && c.TradingMode != "live" {
		return fmt.Errorf("config: invalid TRADING_MODE %q: must be 'paper' or 'live'", c.TradingMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
