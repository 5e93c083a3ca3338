/**
 * @description
 * This file sets up the HTTP router for the finance service. It defines the API
 * endpoints, associates them with their handlers, and applies middleware for
 * request ids, logging, recovery, timeouts, CORS, authentication and rate limiting.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS for the browser client.
 * - github.com/rs/zerolog: request logging.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/transfa/finance-service/internal/logger"
)

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Auth                       AuthMiddlewareConfig
	AllowedOrigins             []string
	RateLimiter                RateLimiter
	MutationRateLimitPerMinute int
	Logger                     zerolog.Logger
}

// NewRouter creates the chi router with every finance route registered.
func NewRouter(h *FinanceHandlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Clerk-User-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(cfg.Auth))
		r.Use(MutationRateLimitMiddleware(cfg.RateLimiter, cfg.MutationRateLimitPerMinute))

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccountsHandler)
			r.Post("/", h.CreateAccountHandler)
			r.Patch("/{id}", h.UpdateAccountHandler)
			r.Delete("/{id}", h.DeleteAccountHandler)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactionsHandler)
			r.Post("/", h.CreateTransactionHandler)
			r.Patch("/{id}", h.UpdateTransactionHandler)
			r.Delete("/{id}", h.DeleteTransactionHandler)
		})
	})

	return r
}
