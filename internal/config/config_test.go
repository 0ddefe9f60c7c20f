package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func validConfig() Config {
	return Config{
		Env:                  "development",
		JWTSecret:            "secret",
		JWTTTL:               time.Minute,
		RateLimitRPM:         60,
		RateLimitBurst:       20,
		MaxGenerateCount:     100,
		RiskMode:             RiskModeHistory,
		RiskUniformMin:       10,
		RiskReasonsThreshold: 75,
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "ENV", "development")
	setEnv(t, "JWT_SECRET", "")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, DefaultJWTTTL, cfg.JWTTTL)
	assert.Equal(t, RiskModeHistory, cfg.RiskMode)
	assert.Equal(t, DefaultReasonsThreshold, cfg.RiskReasonsThreshold)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.RequireAuth)
}

func TestLoad_RiskOverrides(t *testing.T) {
	setEnv(t, "ENV", "development")
	setEnv(t, "RISK_MODE", "UNIFORM")
	setEnv(t, "RISK_UNIFORM_MIN", "0")
	setEnv(t, "RISK_REASONS_THRESHOLD", "80")
	setEnv(t, "RISK_SAFE_AT_LOWER_BOUND", "true")
	setEnv(t, "RISK_SEED", "1234")
	setEnv(t, "CORS_ORIGINS", "http://localhost:3000, https://app.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RiskModeUniform, cfg.RiskMode)
	assert.Equal(t, 0.0, cfg.RiskUniformMin)
	assert.Equal(t, 80.0, cfg.RiskReasonsThreshold)
	assert.True(t, cfg.RiskSafeAtLowerBound)
	assert.Equal(t, uint64(1234), cfg.RiskSeed)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORSOrigins)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	setEnv(t, "ENV", "production")
	setEnv(t, "JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"dev secret in production", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = devJWTSecret
		}, "must be changed"},
		{"zero ttl", func(c *Config) { c.JWTTTL = 0 }, "JWT_TTL"},
		{"bad risk mode", func(c *Config) { c.RiskMode = "ml" }, "RISK_MODE"},
		{"uniform min out of range", func(c *Config) { c.RiskUniformMin = 100 }, "RISK_UNIFORM_MIN"},
		{"reasons threshold out of range", func(c *Config) { c.RiskReasonsThreshold = 101 }, "RISK_REASONS_THRESHOLD"},
		{"zero generate count", func(c *Config) { c.MaxGenerateCount = 0 }, "MAX_GENERATE_COUNT"},
		{"zero rate limit", func(c *Config) { c.RateLimitRPM = 0 }, "RATE_LIMIT_RPM"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "RATE_LIMIT_BURST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvHelpers(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")
	setEnv(t, "TEST_FLOAT", "12.5")
	setEnv(t, "TEST_BOOL", "1")
	setEnv(t, "TEST_DURATION", "90s")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
	assert.Equal(t, 12.5, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 3.0, getEnvFloat("TEST_INVALID", 3))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_INVALID", true))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_INVALID", time.Second))
}
