package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/transfa/finance-service/internal/domain"
)

// Enum and numeric columns are read as text and parsed into domain types.
const transactionColumns = `t.id, t.name, t.amount::text, t.date, t.type::text, t.category::text,
        t.external_link_id, t.account_id, t.created_at, t.updated_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t        domain.Transaction
		amount   string
		txType   string
		category string
	)
	err := row.Scan(&t.ID, &t.Name, &amount, &t.Date, &txType, &category,
		&t.ExternalLinkID, &t.AccountID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	t.Type = domain.TransactionType(txType)
	t.Category = domain.Category(category)
	return &t, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableAmount(amount *decimal.Decimal) any {
	if amount == nil {
		return nil
	}
	return amount.StringFixed(domain.AmountScale)
}

func nullableDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(domain.DateLayout)
}

func nullableString[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

// ListTransactions returns the owner's transactions, newest first, optionally
// limited to one account.
func (r *PostgresRepository) ListTransactions(ctx context.Context, ownerID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
        FROM transactions t
        JOIN accounts a ON a.id = t.account_id
        WHERE a.owner_id = $1
          AND ($2::uuid IS NULL OR t.account_id = $2::uuid)
        ORDER BY t.date DESC, t.created_at DESC, t.id`
	rows, err := r.db.Query(ctx, query, ownerID, nullableUUID(filter.AccountID))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// CreateTransaction inserts a transaction only when its account belongs to ownerID.
// The ownership check and the insert are one statement.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, ownerID string, transaction *domain.Transaction) (*domain.Transaction, error) {
	query := `
        INSERT INTO transactions AS t (id, name, amount, date, type, category, external_link_id, account_id)
        SELECT $1, $2, $3::numeric, $4::date, $5::transaction_type, $6::transaction_category, $7, a.id
        FROM accounts a
        WHERE a.id = $8 AND a.owner_id = $9
        RETURNING ` + transactionColumns
	created, err := scanTransaction(r.db.QueryRow(ctx, query,
		transaction.ID,
		transaction.Name,
		transaction.Amount.StringFixed(domain.AmountScale),
		transaction.Date.Format(domain.DateLayout),
		string(transaction.Type),
		string(transaction.Category),
		transaction.ExternalLinkID,
		transaction.AccountID,
		ownerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		if isConstraintViolation(err) {
			return nil, ErrConstraintViolation
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

// UpdateTransaction applies the supplied fields to a transaction reachable through
// an account owned by ownerID. A move to another account requires that account to
// belong to ownerID as well. An empty ExternalLinkID clears the link.
func (r *PostgresRepository) UpdateTransaction(ctx context.Context, id uuid.UUID, ownerID string, input domain.UpdateTransactionInput) (*domain.Transaction, error) {
	query := `
        UPDATE transactions AS t
        SET name = COALESCE($3::text, t.name),
            amount = COALESCE($4::numeric, t.amount),
            date = COALESCE($5::date, t.date),
            type = COALESCE($6::transaction_type, t.type),
            category = COALESCE($7::transaction_category, t.category),
            external_link_id = CASE WHEN $8::text IS NULL THEN t.external_link_id ELSE NULLIF($8::text, '') END,
            account_id = COALESCE($9::uuid, t.account_id),
            updated_at = NOW()
        FROM accounts a
        WHERE t.id = $1
          AND a.id = t.account_id
          AND a.owner_id = $2
          AND ($9::uuid IS NULL OR EXISTS (
                SELECT 1 FROM accounts target WHERE target.id = $9::uuid AND target.owner_id = $2
          ))
        RETURNING ` + transactionColumns
	updated, err := scanTransaction(r.db.QueryRow(ctx, query,
		id,
		ownerID,
		input.Name,
		nullableAmount(input.Amount),
		nullableDate(input.Date),
		nullableString(input.Type),
		nullableString(input.Category),
		input.ExternalLinkID,
		nullableUUID(input.AccountID),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		if isConstraintViolation(err) {
			return nil, ErrConstraintViolation
		}
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return updated, nil
}

// DeleteTransaction removes a transaction reachable through an account owned by ownerID.
func (r *PostgresRepository) DeleteTransaction(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Transaction, error) {
	query := `
        DELETE FROM transactions AS t
        USING accounts a
        WHERE t.id = $1 AND a.id = t.account_id AND a.owner_id = $2
        RETURNING ` + transactionColumns
	deleted, err := scanTransaction(r.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return deleted, nil
}
