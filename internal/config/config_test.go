package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

var managedKeys = []string{
	"SERVER_PORT", "PORT", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CLERK_JWKS_URL", "CLERK_ISSUER", "CLERK_AUDIENCE", "AUTH_ALLOW_HEADER_FALLBACK",
	"CORS_ALLOWED_ORIGINS", "REDIS_URL", "REDIS_KEY_PREFIX", "MUTATION_RATE_LIMIT_PER_MINUTE",
	"IDEMPOTENCY_TTL_MINUTES", "RABBITMQ_URL", "EVENTS_EXCHANGE", "USER_EVENTS_EXCHANGE",
	"USER_EVENTS_QUEUE", "LOG_LEVEL", "LOG_FORMAT",
}

func cleanEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, key := range managedKeys {
		unsetEnvWithCleanup(t, key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 2 {
		t.Fatalf("unexpected pool defaults: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.MutationRateLimitPerMinute != 60 {
		t.Fatalf("expected rate limit 60, got %d", cfg.MutationRateLimitPerMinute)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("expected idempotency ttl 24h, got %s", cfg.IdempotencyTTL)
	}
	if cfg.RedisKeyPrefix != "finance:" || cfg.EventsExchange != "finance.events" {
		t.Fatalf("unexpected string defaults: %+v", cfg)
	}
	if cfg.UserEventsExchange != "user_events" || cfg.UserEventsQueue != "finance_service_user_deleted" {
		t.Fatalf("unexpected user event defaults: %+v", cfg)
	}
	if cfg.AuthAllowHeaderFallback {
		t.Fatal("expected header fallback to be disabled by default")
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	cleanEnv(t)
	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", " 7000 ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_InvalidNumbersFallBackToDefaults(t *testing.T) {
	cleanEnv(t)
	setEnvWithCleanup(t, "DB_MAX_CONNS", "lots")
	setEnvWithCleanup(t, "MUTATION_RATE_LIMIT_PER_MINUTE", "-3")
	setEnvWithCleanup(t, "IDEMPOTENCY_TTL_MINUTES", "0")
	setEnvWithCleanup(t, "AUTH_ALLOW_HEADER_FALLBACK", "maybe")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DBMaxConns != 20 {
		t.Fatalf("expected DBMaxConns default, got %d", cfg.DBMaxConns)
	}
	if cfg.MutationRateLimitPerMinute != 60 {
		t.Fatalf("expected rate limit default, got %d", cfg.MutationRateLimitPerMinute)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("expected ttl default, got %s", cfg.IdempotencyTTL)
	}
	if cfg.AuthAllowHeaderFallback {
		t.Fatal("expected invalid boolean to keep default false")
	}
}

func TestLoadConfig_ParsesListsAndClampsPool(t *testing.T) {
	cleanEnv(t)
	setEnvWithCleanup(t, "CORS_ALLOWED_ORIGINS", " http://localhost:3000 ,, https://app.example.com")
	setEnvWithCleanup(t, "DB_MAX_CONNS", "4")
	setEnvWithCleanup(t, "DB_MIN_CONNS", "10")
	setEnvWithCleanup(t, "AUTH_ALLOW_HEADER_FALLBACK", "true")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://app.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.DBMinConns != 4 {
		t.Fatalf("expected min conns clamped to 4, got %d", cfg.DBMinConns)
	}
	if !cfg.AuthAllowHeaderFallback {
		t.Fatal("expected header fallback to be enabled")
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_URL=postgres://local/finance\nEVENTS_EXCHANGE=custom.events\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://local/finance" {
		t.Fatalf("expected DATABASE_URL from .env, got %q", cfg.DatabaseURL)
	}
	if cfg.EventsExchange != "custom.events" {
		t.Fatalf("expected EVENTS_EXCHANGE from .env, got %q", cfg.EventsExchange)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
