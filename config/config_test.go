package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps a developer's .env and shell from leaking into the tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{
		"APP_ENV", "JWT_SECRET", "DATABASE_URL", "DB_HOST", "BADGES_STORE",
		"HTTP_PORT", "LOG_FORMAT", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("BADGES_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, DevJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "console", cfg.Observability.LogFormat)
	assert.Equal(t, StoreDriverMemory, cfg.Badges.StoreDriver)
	assert.Equal(t, 30, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
}

func TestLoadReadsEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/pbl")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("BADGES_DISABLED_RULES", " top_performer, ,improvement_streak ")
	t.Setenv("BADGES_COMPUTE_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, StoreDriverPostgres, cfg.Badges.StoreDriver)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"top_performer", "improvement_streak"}, cfg.Badges.DisabledRules)
	assert.Equal(t, 5*time.Second, cfg.Badges.ComputeTimeout)
	assert.Equal(t, 30, cfg.RateLimit.Requests, "unparsable values fall back to the default")
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoadBuildsDatabaseURLFromParts(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "pbl")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "badges")
	t.Setenv("DB_SSLMODE", "disable")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://pbl:pw@db:5432/badges?sslmode=disable", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:       AppConfig{Environment: EnvProduction},
			Database:  DatabaseConfig{URL: "postgres://localhost/pbl"},
			HTTP:      HTTPConfig{Port: 8080},
			Auth:      AuthConfig{JWTSecret: "s3cret"},
			RateLimit: RateLimitConfig{Enabled: true, Requests: 10, Window: time.Minute},
			Badges:    BadgesConfig{StoreDriver: StoreDriverPostgres},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT_SECRET is required"},
		{"development secret", func(c *Config) { c.Auth.JWTSecret = DevJWTSecret }, "development secret"},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL is required"},
		{"memory in production", func(c *Config) { c.Badges.StoreDriver = StoreDriverMemory }, "not allowed in production"},
		{"unknown store", func(c *Config) { c.Badges.StoreDriver = "sqlite" }, "BADGES_STORE must be"},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "HTTP_PORT"},
		{"bad limit", func(c *Config) { c.RateLimit.Requests = 0 }, "RATE_LIMIT_REQUESTS"},
		{"bad window", func(c *Config) { c.RateLimit.Window = 0 }, "RATE_LIMIT_WINDOW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	c := &Config{
		App:    AppConfig{Environment: EnvProduction},
		Badges: BadgesConfig{StoreDriver: StoreDriverPostgres},
	}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_PORT")
}

func TestDisabledRateLimitSkipsChecks(t *testing.T) {
	c := &Config{
		App:       AppConfig{Environment: EnvDevelopment},
		HTTP:      HTTPConfig{Port: 8080},
		Auth:      AuthConfig{JWTSecret: DevJWTSecret},
		RateLimit: RateLimitConfig{Enabled: false},
		Badges:    BadgesConfig{StoreDriver: StoreDriverMemory},
	}
	assert.NoError(t, c.Validate())
	assert.False(t, c.IsProduction())
}
