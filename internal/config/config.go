package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dukapos/pos-core-go/internal/session"
)

// Config holds all client configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Backend
	APIBaseURL string
	LogLevel   string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Session
	TokenFile string

	// Cache (health "last observed")
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string
	TracingOn    bool

	// Payments
	DefaultCurrency string

	// Receipt presentation window (Delivered → Idle auto-revert)
	ReceiptDisplayWindow time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		APIBaseURL: getEnv("POS_API_BASE_URL", "http://localhost:8000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		TokenFile: getEnv("TOKEN_FILE", session.DefaultTokenPath()),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingOn:    getEnv("TRACING_ENABLED", "false") == "true",

		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),

		ReceiptDisplayWindow: getEnvDuration("RECEIPT_DISPLAY_WINDOW", 2500*time.Millisecond),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
