package bank

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists linked accounts in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed bank store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, account *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, account_name, account_number, bank_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.AccountName, account.AccountNumber, account.BankName, account.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) First(ctx context.Context) (*Account, error) {
	a := &Account{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, account_name, account_number, bank_name, created_at
		FROM bank_accounts ORDER BY created_at ASC, id ASC LIMIT 1
	`).Scan(&a.ID, &a.AccountName, &a.AccountNumber, &a.BankName, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoLinkedAccount
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Migrate creates the bank_accounts table if it doesn't exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bank_accounts (
			id              VARCHAR(40) PRIMARY KEY,
			account_name    VARCHAR(255) NOT NULL,
			account_number  VARCHAR(64) NOT NULL UNIQUE,
			bank_name       VARCHAR(255) NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}
