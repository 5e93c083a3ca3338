/**
 * @description
 * This is the main entry point for the finance-service. It loads configuration,
 * connects to PostgreSQL, Redis and RabbitMQ, wires the repository, the core
 * application service and the HTTP handlers together, and serves the API until
 * it receives a shutdown signal.
 *
 * @dependencies
 * - github.com/joho/godotenv: loads a local .env file.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: rate limiting and idempotency keys.
 * - github.com/rs/zerolog: structured logging.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/transfa/finance-service/internal/api"
	"github.com/transfa/finance-service/internal/app"
	"github.com/transfa/finance-service/internal/config"
	"github.com/transfa/finance-service/internal/domain"
	"github.com/transfa/finance-service/internal/logger"
	"github.com/transfa/finance-service/internal/store"
	rmrabbit "github.com/transfa/finance-service/pkg/rabbitmq"
)

func main() {
	// A missing .env file is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	bootLog := logger.Component(log, "bootstrap")
	bootLog.Info().Str("port", cfg.ServerPort).Msg("starting finance-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repository, closeDB := openRepository(ctx, cfg, bootLog)
	defer closeDB()

	redisClient := openRedis(ctx, cfg, bootLog)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// The service only needs a publisher when a broker is configured.
	var publisher app.EventPublisher
	if cfg.RabbitMQURL == "" {
		bootLog.Warn().Msg("RABBITMQ_URL not set; domain events disabled")
	} else {
		producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, logger.Component(log, "rabbitmq"))
		if err != nil {
			bootLog.Warn().Err(err).Str("url", rmrabbit.MaskURL(cfg.RabbitMQURL)).Msg("rabbitmq producer unavailable; domain events disabled")
		} else {
			defer producer.Close()
			publisher = producer
			bootLog.Info().Msg("rabbitmq producer connected")
		}
	}

	financeService := app.NewFinanceService(repository, publisher, cfg.EventsExchange, log)

	if cfg.RabbitMQURL != "" {
		startUserDeletedConsumer(ctx, cfg, financeService, log)
	}

	// Nil Redis disables both guards; keep the interfaces nil rather than typed nils.
	var (
		rateLimiter api.RateLimiter
		idempotency api.IdempotencyReserver
	)
	if redisClient != nil {
		rateLimiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
		idempotency = app.NewIdempotencyGuard(redisClient, cfg.RedisKeyPrefix, cfg.IdempotencyTTL)
	}

	if cfg.AuthAllowHeaderFallback {
		bootLog.Warn().Msg("AUTH_ALLOW_HEADER_FALLBACK enabled; X-Clerk-User-Id is trusted without a token")
	}
	if cfg.ClerkJWKSURL == "" && !cfg.AuthAllowHeaderFallback {
		bootLog.Warn().Msg("CLERK_JWKS_URL not set; every authenticated request will be rejected")
	}

	handlers := api.NewFinanceHandlers(financeService, idempotency)
	router := api.NewRouter(handlers, api.RouterConfig{
		Auth: api.AuthMiddlewareConfig{
			JWKSURL:             cfg.ClerkJWKSURL,
			ExpectedAudience:    cfg.ClerkAudience,
			ExpectedIssuer:      cfg.ClerkIssuer,
			AllowHeaderFallback: cfg.AuthAllowHeaderFallback,
		},
		AllowedOrigins:             cfg.CORSAllowedOrigins,
		RateLimiter:                rateLimiter,
		MutationRateLimitPerMinute: cfg.MutationRateLimitPerMinute,
		Logger:                     logger.Component(log, "http"),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("component", "http").Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("component", "http").Msg("server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Str("component", "http").Msg("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("component", "http").Msg("shutdown failed")
	}
	log.Info().Str("component", "http").Msg("shutdown complete")
}

// openRepository connects to PostgreSQL and bootstraps the schema. Without a
// DATABASE_URL the service runs on the in-memory repository.
func openRepository(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Repository, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set; using in-memory repository")
		return store.NewMemoryRepository(), func() {}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database url parse failed")
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to stay compatible with poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.EnsureSchema(schemaCtx, dbpool); err != nil {
		dbpool.Close()
		log.Fatal().Err(err).Msg("schema bootstrap failed")
	}
	log.Info().Int32("max_conns", cfg.DBMaxConns).Int32("min_conns", cfg.DBMinConns).Msg("database connected")

	return store.NewPostgresRepository(dbpool), dbpool.Close
}

// openRedis returns a connected client, or nil when Redis is not configured or
// unreachable. Callers treat nil as "guards disabled".
func openRedis(ctx context.Context, cfg config.Config, log zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set; rate limiting and idempotency keys disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis url parse failed; rate limiting and idempotency keys disabled")
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed; rate limiting and idempotency keys disabled")
		_ = client.Close()
		return nil
	}
	log.Info().Msg("redis connected")
	return client
}

// startUserDeletedConsumer purges the data of users removed upstream.
func startUserDeletedConsumer(ctx context.Context, cfg config.Config, purger app.OwnerPurger, log zerolog.Logger) {
	consumerLog := logger.Component(log, "user_events")
	consumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL, consumerLog)
	if err != nil {
		consumerLog.Warn().Err(err).Msg("rabbitmq consumer unavailable; user deletions will not be processed")
		return
	}
	// The handler tags its own component.
	handler := app.NewUserEventHandler(purger, log)

	go func() {
		defer consumer.Close()
		err := consumer.Consume(ctx, cfg.UserEventsExchange, cfg.UserEventsQueue, domain.RoutingKeyUserDeleted, handler.HandleUserDeletedEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			consumerLog.Error().Err(err).Msg("user event consumer stopped")
		}
	}()
	consumerLog.Info().Str("exchange", cfg.UserEventsExchange).Str("queue", cfg.UserEventsQueue).Msg("consuming user.deleted events")
}
