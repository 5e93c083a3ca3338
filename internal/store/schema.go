package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the finance tables. Every statement is idempotent so the
// bootstrap can run on each start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
        id UUID PRIMARY KEY,
        external_link_id TEXT,
        name TEXT NOT NULL CHECK (btrim(name) <> ''),
        type TEXT NOT NULL CHECK (btrim(type) <> ''),
        owner_id TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_owner_name_key
        ON accounts (owner_id, lower(btrim(name)))`,
	`DO $$
    BEGIN
        CREATE TYPE transaction_type AS ENUM ('Income', 'Expense');
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$`,
	`DO $$
    BEGIN
        CREATE TYPE transaction_category AS ENUM (
            'Food', 'Car', 'Entertainment', 'Utilities', 'Housing', 'Salary',
            'Investments', 'Healthcare', 'Shopping', 'Education', 'Travel',
            'Pets', 'Fitness', 'Gifts', 'Miscellaneous'
        );
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$`,
	`CREATE TABLE IF NOT EXISTS transactions (
        id UUID PRIMARY KEY,
        name TEXT NOT NULL CHECK (btrim(name) <> ''),
        amount NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
        date DATE NOT NULL,
        type transaction_type NOT NULL,
        category transaction_category NOT NULL,
        external_link_id TEXT,
        account_id UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS transactions_account_id_idx ON transactions (account_id)`,
}

// EnsureSchema creates the accounts and transactions tables when they are missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
