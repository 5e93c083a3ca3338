/**
 * @description
 * This file defines the HTTP handlers for the finance service. Handlers read the
 * authenticated owner from the request context, validate the body, and delegate
 * to the service layer.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - internal/validation: request body schemas.
 * - internal/app: the FinanceService and the Redis-backed idempotency guard.
 */
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/transfa/finance-service/internal/app"
	"github.com/transfa/finance-service/internal/domain"
	"github.com/transfa/finance-service/internal/logger"
)

// FinanceService is the service surface the handlers depend on.
type FinanceService interface {
	ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error)
	CreateAccount(ctx context.Context, ownerID string, input domain.CreateAccountInput) (*domain.Account, error)
	UpdateAccount(ctx context.Context, ownerID string, id uuid.UUID, input domain.UpdateAccountInput) (*domain.Account, error)
	DeleteAccount(ctx context.Context, ownerID string, id uuid.UUID) error
	ListTransactions(ctx context.Context, ownerID string, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, ownerID string, input domain.CreateTransactionInput) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, ownerID string, id uuid.UUID, input domain.UpdateTransactionInput) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, ownerID string, id uuid.UUID) error
}

// IdempotencyReserver claims an Idempotency-Key for one owner and scope.
type IdempotencyReserver interface {
	Reserve(ctx context.Context, scope, ownerID, key string) (release func(), err error)
}

// FinanceHandlers holds the dependencies of the HTTP handlers.
type FinanceHandlers struct {
	service     FinanceService
	idempotency IdempotencyReserver
}

// NewFinanceHandlers creates a new FinanceHandlers. idempotency may be nil.
func NewFinanceHandlers(service FinanceService, idempotency IdempotencyReserver) *FinanceHandlers {
	return &FinanceHandlers{service: service, idempotency: idempotency}
}

func ownerFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := GetOwnerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return "", false
	}
	return ownerID, true
}

// reserveIdempotencyKey claims the request's Idempotency-Key. It writes the response
// and returns false when the request must stop.
func (h *FinanceHandlers) reserveIdempotencyKey(w http.ResponseWriter, r *http.Request, scope, ownerID string) (func(), bool) {
	noop := func() {}
	key := r.Header.Get("Idempotency-Key")
	if h.idempotency == nil || key == "" {
		return noop, true
	}
	release, err := h.idempotency.Reserve(r.Context(), scope, ownerID, key)
	switch {
	case err == nil:
		return release, true
	case errors.Is(err, app.ErrIdempotencyKeyReused):
		writeError(w, http.StatusConflict, "This request has already been submitted")
		return nil, false
	case errors.Is(err, app.ErrIdempotencyKeyInvalid):
		writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return nil, false
	default:
		// Redis trouble should not block writes.
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Str("op", "reserve_idempotency_key").Msg("idempotency reservation failed; continuing without it")
		return noop, true
	}
}
