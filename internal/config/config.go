// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database: empty uses in-memory stores, postgres:// uses lib/pq,
	// sqlite:// or file: uses gorm with SQLite.
	DatabaseURL string

	// Auth
	JWTSecret   string
	JWTTTL      time.Duration
	RequireAuth bool // gate /bank and /transactions behind a bearer token

	// HTTP edge
	CORSOrigins    []string
	RateLimitRPM   int
	RateLimitBurst int

	// Tracing
	OTLPEndpoint string

	// Transaction generation
	MaxGenerateCount int

	// Risk scoring
	RiskMode             string // "history" or "uniform"
	RiskUniformMin       float64
	RiskReasonsThreshold float64
	RiskSafeAtLowerBound bool
	RiskDecoratedLabels  bool
	RiskSeed             uint64 // 0 seeds from the runtime
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultJWTTTL           = 30 * time.Minute
	DefaultRateLimit        = 60
	DefaultRateLimitBurst   = 20
	DefaultMaxGenerateCount = 100
	DefaultRiskMode         = RiskModeHistory
	DefaultUniformMin       = 10.0
	DefaultReasonsThreshold = 75.0

	// devJWTSecret is only accepted in development.
	devJWTSecret = "fraudwatch-dev-secret-change-me"
)

// Risk scoring modes.
const (
	RiskModeHistory = "history"
	RiskModeUniform = "uniform"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	env := getEnv("ENV", DefaultEnv)
	secret := os.Getenv("JWT_SECRET")
	if secret == "" && env == DefaultEnv {
		secret = devJWTSecret
	}

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  env,
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecret:            secret,
		JWTTTL:               getEnvDuration("JWT_TTL", DefaultJWTTTL),
		RequireAuth:          getEnvBool("REQUIRE_AUTH", false),
		CORSOrigins:          splitList(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:         int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		RateLimitBurst:       int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MaxGenerateCount:     int(getEnvInt64("MAX_GENERATE_COUNT", DefaultMaxGenerateCount)),
		RiskMode:             strings.ToLower(getEnv("RISK_MODE", DefaultRiskMode)),
		RiskUniformMin:       getEnvFloat("RISK_UNIFORM_MIN", DefaultUniformMin),
		RiskReasonsThreshold: getEnvFloat("RISK_REASONS_THRESHOLD", DefaultReasonsThreshold),
		RiskSafeAtLowerBound: getEnvBool("RISK_SAFE_AT_LOWER_BOUND", false),
		RiskDecoratedLabels:  getEnvBool("RISK_DECORATED_LABELS", false),
		RiskSeed:             uint64(getEnvInt64("RISK_SEED", 0)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if c.IsProduction() && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed in production")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}

	switch c.RiskMode {
	case RiskModeHistory, RiskModeUniform:
	default:
		return fmt.Errorf("RISK_MODE must be %q or %q, got %q", RiskModeHistory, RiskModeUniform, c.RiskMode)
	}
	if c.RiskUniformMin < 0 || c.RiskUniformMin >= 100 {
		return fmt.Errorf("RISK_UNIFORM_MIN must be in [0, 100)")
	}
	if c.RiskReasonsThreshold < 0 || c.RiskReasonsThreshold > 100 {
		return fmt.Errorf("RISK_REASONS_THRESHOLD must be in [0, 100]")
	}

	if c.MaxGenerateCount < 1 {
		return fmt.Errorf("MAX_GENERATE_COUNT must be at least 1")
	}
	if c.RateLimitRPM < 1 {
		return fmt.Errorf("RATE_LIMIT_RPM must be at least 1")
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
