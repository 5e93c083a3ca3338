/**
 * @description
 * This file contains the core business logic for the finance service, implemented
 * as a `FinanceService`. Every operation is scoped to the calling owner and is
 * delegated to the repository as a single statement.
 *
 * @notes
 * - The service keeps the API handlers thin: they parse and authenticate, the
 *   service stamps ids and owners, the repository enforces ownership atomically.
 * - Domain events are published after a successful mutation. A publish failure
 *   is logged and never fails the request.
 */
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/transfa/finance-service/internal/domain"
	"github.com/transfa/finance-service/internal/store"
)

// ErrUnauthenticated is returned when an operation is attempted without an owner.
var ErrUnauthenticated = errors.New("unauthenticated")

// EventPublisher publishes a JSON payload to an exchange.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// FinanceService provides owner-scoped CRUD over accounts and transactions.
type FinanceService struct {
	repo      store.Repository
	publisher EventPublisher
	exchange  string
	log       zerolog.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

// NewFinanceService creates a new FinanceService. publisher may be nil.
func NewFinanceService(repo store.Repository, publisher EventPublisher, exchange string, log zerolog.Logger) *FinanceService {
	return &FinanceService{
		repo:      repo,
		publisher: publisher,
		exchange:  exchange,
		log:       log.With().Str("component", "finance_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.New,
	}
}

func requireOwner(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", ErrUnauthenticated
	}
	return ownerID, nil
}

// ListAccounts returns the caller's accounts.
func (s *FinanceService) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAccounts(ctx, ownerID)
}

// CreateAccount stores a new account for the caller.
func (s *FinanceService) CreateAccount(ctx context.Context, ownerID string, input domain.CreateAccountInput) (*domain.Account, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateAccount(ctx, &domain.Account{
		ID:             s.newID(),
		ExternalLinkID: input.ExternalLinkID,
		Name:           strings.TrimSpace(input.Name),
		Type:           strings.TrimSpace(input.Type),
		OwnerID:        ownerID,
	})
	if err != nil {
		return nil, err
	}
	s.publishAccount(ctx, domain.EventAccountCreated, *created)
	return created, nil
}

// UpdateAccount applies a partial update to one of the caller's accounts.
func (s *FinanceService) UpdateAccount(ctx context.Context, ownerID string, id uuid.UUID, input domain.UpdateAccountInput) (*domain.Account, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateAccount(ctx, id, ownerID, input)
	if err != nil {
		return nil, err
	}
	s.publishAccount(ctx, domain.EventAccountUpdated, *updated)
	return updated, nil
}

// DeleteAccount removes one of the caller's accounts together with its transactions.
func (s *FinanceService) DeleteAccount(ctx context.Context, ownerID string, id uuid.UUID) error {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteAccount(ctx, id, ownerID)
	if err != nil {
		return err
	}
	s.publishAccount(ctx, domain.EventAccountDeleted, *deleted)
	return nil
}

// ListTransactions returns the caller's transactions, optionally for one account.
func (s *FinanceService) ListTransactions(ctx context.Context, ownerID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, ownerID, filter)
}

// CreateTransaction records a transaction against one of the caller's accounts.
func (s *FinanceService) CreateTransaction(ctx context.Context, ownerID string, input domain.CreateTransactionInput) (*domain.Transaction, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateTransaction(ctx, ownerID, &domain.Transaction{
		ID:             s.newID(),
		Name:           strings.TrimSpace(input.Name),
		Amount:         domain.RoundAmount(input.Amount),
		Date:           input.Date,
		Type:           input.Type,
		Category:       input.Category,
		ExternalLinkID: input.ExternalLinkID,
		AccountID:      input.AccountID,
	})
	if err != nil {
		return nil, err
	}
	s.publishTransaction(ctx, ownerID, domain.EventTransactionCreated, *created)
	return created, nil
}

// UpdateTransaction applies a partial update to one of the caller's transactions.
func (s *FinanceService) UpdateTransaction(ctx context.Context, ownerID string, id uuid.UUID, input domain.UpdateTransactionInput) (*domain.Transaction, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateTransaction(ctx, id, ownerID, input)
	if err != nil {
		return nil, err
	}
	s.publishTransaction(ctx, ownerID, domain.EventTransactionUpdated, *updated)
	return updated, nil
}

// DeleteTransaction removes one of the caller's transactions.
func (s *FinanceService) DeleteTransaction(ctx context.Context, ownerID string, id uuid.UUID) error {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteTransaction(ctx, id, ownerID)
	if err != nil {
		return err
	}
	s.publishTransaction(ctx, ownerID, domain.EventTransactionDeleted, *deleted)
	return nil
}

// PurgeOwner deletes every account of ownerID; transactions follow by cascade.
func (s *FinanceService) PurgeOwner(ctx context.Context, ownerID string) (int64, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return 0, err
	}
	return s.repo.DeleteAccountsByOwner(ctx, ownerID)
}

func (s *FinanceService) publishAccount(ctx context.Context, event string, account domain.Account) {
	s.publish(ctx, event, domain.AccountEvent{
		Event:      event,
		OwnerID:    account.OwnerID,
		Account:    account,
		OccurredAt: s.now(),
	})
}

func (s *FinanceService) publishTransaction(ctx context.Context, ownerID, event string, transaction domain.Transaction) {
	s.publish(ctx, event, domain.TransactionEvent{
		Event:       event,
		OwnerID:     ownerID,
		Transaction: transaction,
		OccurredAt:  s.now(),
	})
}

func (s *FinanceService) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	// The request context may be cancelled once the response is written.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, s.exchange, routingKey, body); err != nil {
		s.log.Warn().Err(err).Str("routing_key", routingKey).Msg("failed to publish domain event")
	}
}
