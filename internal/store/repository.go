/**
 * @description
 * This file defines the interfaces for the data access layer (repositories).
 * Services depend on these interfaces rather than on the PostgreSQL implementation,
 * which keeps the in-memory repository and test stubs interchangeable.
 *
 * @notes
 * - Every method takes the owner id. A row owned by someone else is reported
 *   exactly like a row that does not exist.
 */
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/transfa/finance-service/internal/domain"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateAccountName = errors.New("an account with this name already exists")
	// ErrConstraintViolation reports a value the schema rejects, such as a blank
	// name or an amount outside NUMERIC(14,2).
	ErrConstraintViolation = errors.New("value violates a storage constraint")
)

// AccountRepository defines the contract for database operations related to accounts.
type AccountRepository interface {
	ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, ownerID string, input domain.UpdateAccountInput) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Account, error)
	DeleteAccountsByOwner(ctx context.Context, ownerID string) (int64, error)
}

// TransactionRepository defines the contract for database operations related to transactions.
// Ownership is checked through the account the transaction belongs to.
type TransactionRepository interface {
	ListTransactions(ctx context.Context, ownerID string, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, ownerID string, transaction *domain.Transaction) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, ownerID string, input domain.UpdateTransactionInput) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Transaction, error)
}

// Repository is the full data access surface used by the service layer.
type Repository interface {
	AccountRepository
	TransactionRepository
}
