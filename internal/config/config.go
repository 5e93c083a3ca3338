/**
 * @description
 * This package handles the configuration management for the finance service. It
 * uses Viper to read configuration from environment variables and an optional
 * .env file, providing a single place to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading.
 * - github.com/rs/zerolog: warnings about ignored values.
 */
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	defaultServerPort         = "8080"
	defaultDBMaxConns         = 20
	defaultDBMinConns         = 2
	defaultRedisKeyPrefix     = "finance:"
	defaultMutationRatePerMin = 60
	defaultIdempotencyTTLMin  = 1440
	defaultEventsExchange     = "finance.events"
	defaultUserEventsExchange = "user_events"
	defaultUserEventsQueue    = "finance_service_user_deleted"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
)

// Config holds all the configuration variables for the finance service.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	ClerkJWKSURL          string `mapstructure:"CLERK_JWKS_URL"`
	ClerkIssuer           string `mapstructure:"CLERK_ISSUER"`
	ClerkAudience         string `mapstructure:"CLERK_AUDIENCE"`
	CORSAllowedOriginsRaw string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix        string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	EventsExchange        string `mapstructure:"EVENTS_EXCHANGE"`
	UserEventsExchange    string `mapstructure:"USER_EVENTS_EXCHANGE"`
	UserEventsQueue       string `mapstructure:"USER_EVENTS_QUEUE"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	LogFormat             string `mapstructure:"LOG_FORMAT"`

	// Parsed separately so an invalid value falls back to its default.
	DBMaxConns                 int32         `mapstructure:"-"`
	DBMinConns                 int32         `mapstructure:"-"`
	MutationRateLimitPerMinute int           `mapstructure:"-"`
	IdempotencyTTL             time.Duration `mapstructure:"-"`
	AuthAllowHeaderFallback    bool          `mapstructure:"-"`
	CORSAllowedOrigins         []string      `mapstructure:"-"`
}

var stringKeys = []string{
	"SERVER_PORT",
	"DATABASE_URL",
	"CLERK_JWKS_URL",
	"CLERK_ISSUER",
	"CLERK_AUDIENCE",
	"CORS_ALLOWED_ORIGINS",
	"REDIS_URL",
	"REDIS_KEY_PREFIX",
	"RABBITMQ_URL",
	"EVENTS_EXCHANGE",
	"USER_EVENTS_EXCHANGE",
	"USER_EVENTS_QUEUE",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("REDIS_KEY_PREFIX", defaultRedisKeyPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("USER_EVENTS_EXCHANGE", defaultUserEventsExchange)
	viper.SetDefault("USER_EVENTS_QUEUE", defaultUserEventsQueue)
	viper.SetDefault("LOG_LEVEL", defaultLogLevel)
	viper.SetDefault("LOG_FORMAT", defaultLogFormat)

	// Bind explicitly so the keys appear in Unmarshal without a config file.
	for _, key := range stringKeys {
		_ = viper.BindEnv(key)
	}
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("MUTATION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("IDEMPOTENCY_TTL_MINUTES")
	_ = viper.BindEnv("AUTH_ALLOW_HEADER_FALLBACK")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Str("component", "config").Msg("failed to read config file; using environment values")
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	config.ServerPort = strings.TrimSpace(config.ServerPort)
	if port := strings.TrimSpace(viper.GetString("PORT")); port != "" {
		config.ServerPort = port
	}
	if config.ServerPort == "" {
		config.ServerPort = defaultServerPort
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.ClerkJWKSURL = strings.TrimSpace(config.ClerkJWKSURL)
	config.ClerkIssuer = strings.TrimSpace(config.ClerkIssuer)
	config.ClerkAudience = strings.TrimSpace(config.ClerkAudience)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisKeyPrefix = fallback(config.RedisKeyPrefix, defaultRedisKeyPrefix)
	config.EventsExchange = fallback(config.EventsExchange, defaultEventsExchange)
	config.UserEventsExchange = fallback(config.UserEventsExchange, defaultUserEventsExchange)
	config.UserEventsQueue = fallback(config.UserEventsQueue, defaultUserEventsQueue)
	config.LogLevel = fallback(config.LogLevel, defaultLogLevel)
	config.LogFormat = fallback(config.LogFormat, defaultLogFormat)

	config.DBMaxConns = int32(positiveInt("DB_MAX_CONNS", defaultDBMaxConns))
	config.DBMinConns = int32(nonNegativeInt("DB_MIN_CONNS", defaultDBMinConns))
	if config.DBMinConns > config.DBMaxConns {
		log.Warn().Str("component", "config").Int32("min", config.DBMinConns).Int32("max", config.DBMaxConns).
			Msg("DB_MIN_CONNS exceeds DB_MAX_CONNS; clamping")
		config.DBMinConns = config.DBMaxConns
	}
	config.MutationRateLimitPerMinute = nonNegativeInt("MUTATION_RATE_LIMIT_PER_MINUTE", defaultMutationRatePerMin)
	config.IdempotencyTTL = time.Duration(positiveInt("IDEMPOTENCY_TTL_MINUTES", defaultIdempotencyTTLMin)) * time.Minute
	config.AuthAllowHeaderFallback = boolSetting("AUTH_ALLOW_HEADER_FALLBACK", false)
	config.CORSAllowedOrigins = splitList(config.CORSAllowedOriginsRaw)

	return config, nil
}

func fallback(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}

func intSetting(key string, def int, valid func(int) bool) int {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || !valid(value) {
		log.Warn().Str("component", "config").Str("key", key).Str("value", raw).Int("default", def).
			Msg("invalid numeric setting; using default")
		return def
	}
	return value
}

func positiveInt(key string, def int) int {
	return intSetting(key, def, func(v int) bool { return v > 0 })
}

func nonNegativeInt(key string, def int) int {
	return intSetting(key, def, func(v int) bool { return v >= 0 })
}

func boolSetting(key string, def bool) bool {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().Str("component", "config").Str("key", key).Str("value", raw).Msg("invalid boolean setting; using default")
		return def
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
