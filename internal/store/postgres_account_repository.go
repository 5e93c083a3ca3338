/**
 * @description
 * This file implements the data access layer for account operations on PostgreSQL.
 * Each statement filters on both the account id and the owner id so that ownership
 * checks and mutations happen atomically.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 * - github.com/jackc/pgx/v5/pgconn: Unique-violation detection.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/finance-service/internal/domain"
)

const (
	pgUniqueViolation   = "23505"
	pgCheckViolation    = "23514"
	pgNotNullViolation  = "23502"
	pgNumericOutOfRange = "22003"
)

const accountColumns = `id, external_link_id, name, type, owner_id, created_at, updated_at`

// PostgresRepository is the PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.ExternalLinkID, &a.Name, &a.Type, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgCheckViolation, pgNotNullViolation, pgNumericOutOfRange:
		return true
	}
	return false
}

// ListAccounts returns every account owned by ownerID in creation order.
func (r *PostgresRepository) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + `
        FROM accounts
        WHERE owner_id = $1
        ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// CreateAccount inserts a new account. The caller supplies the id and owner.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
        INSERT INTO accounts (id, external_link_id, name, type, owner_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING ` + accountColumns
	created, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID,
		account.ExternalLinkID,
		account.Name,
		account.Type,
		account.OwnerID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAccountName
		}
		if isConstraintViolation(err) {
			return nil, ErrConstraintViolation
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

// UpdateAccount applies the supplied fields to an account owned by ownerID. An
// empty ExternalLinkID clears the link.
func (r *PostgresRepository) UpdateAccount(ctx context.Context, id uuid.UUID, ownerID string, input domain.UpdateAccountInput) (*domain.Account, error) {
	query := `
        UPDATE accounts
        SET name = COALESCE($3::text, name),
            type = COALESCE($4::text, type),
            external_link_id = CASE WHEN $5::text IS NULL THEN external_link_id ELSE NULLIF($5::text, '') END,
            updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
        RETURNING ` + accountColumns
	updated, err := scanAccount(r.db.QueryRow(ctx, query, id, ownerID, input.Name, input.Type, input.ExternalLinkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAccountName
		}
		if isConstraintViolation(err) {
			return nil, ErrConstraintViolation
		}
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return updated, nil
}

// DeleteAccount removes an account owned by ownerID. Its transactions go with it
// through the foreign key cascade.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Account, error) {
	query := `
        DELETE FROM accounts
        WHERE id = $1 AND owner_id = $2
        RETURNING ` + accountColumns
	deleted, err := scanAccount(r.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to delete account: %w", err)
	}
	return deleted, nil
}

// DeleteAccountsByOwner removes every account of ownerID and reports how many went.
func (r *PostgresRepository) DeleteAccountsByOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete accounts for owner: %w", err)
	}
	return result.RowsAffected(), nil
}
