package transactions

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/mbd888/fraudwatch/internal/pagination"
	"github.com/mbd888/fraudwatch/internal/risk"
)

// PostgresStore persists transactions in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `id, txn_id, account_id, amount, merchant, ts, risk_score, risk_label,
	blocked, verification_required, verification_status, reasons`

func (p *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		tx.ID, tx.TxnID, tx.AccountID, tx.Amount, tx.Merchant, tx.Timestamp,
		tx.RiskScore, string(tx.RiskLabel), tx.Blocked, tx.VerificationRequired,
		string(tx.VerificationStatus), pq.Array(tx.Reasons),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateTxnID
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, txnID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE txn_id = $1`, txnID)
	tx, err := scanTx(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return tx, err
}

func (p *PostgresStore) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*Transaction, error) {
	var rows *sql.Rows
	var err error
	if cursor != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+txColumns+` FROM transactions
			WHERE (ts, txn_id) < ($1, $2)
			ORDER BY ts DESC, txn_id DESC LIMIT $3
		`, cursor.CreatedAt, cursor.ID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+txColumns+` FROM transactions
			ORDER BY ts DESC, txn_id DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (p *PostgresStore) AverageAmount(ctx context.Context, accountID string) (float64, int, error) {
	var avg sql.NullFloat64
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT AVG(amount)::DOUBLE PRECISION, COUNT(*) FROM transactions WHERE account_id = $1
	`, accountID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	return avg.Float64, count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTx(row scanner) (*Transaction, error) {
	tx := &Transaction{}
	var label, status string
	var reasons pq.StringArray
	err := row.Scan(
		&tx.ID, &tx.TxnID, &tx.AccountID, &tx.Amount, &tx.Merchant, &tx.Timestamp,
		&tx.RiskScore, &label, &tx.Blocked, &tx.VerificationRequired, &status, &reasons,
	)
	if err != nil {
		return nil, err
	}
	tx.RiskLabel = risk.Label(label)
	tx.VerificationStatus = risk.VerificationStatus(status)
	tx.Reasons = []string(reasons)
	if tx.Reasons == nil {
		tx.Reasons = []string{}
	}
	tx.Timestamp = tx.Timestamp.UTC()
	return tx, nil
}

// Migrate creates the transactions table if it doesn't exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id                     VARCHAR(36) PRIMARY KEY,
			txn_id                 VARCHAR(32) NOT NULL UNIQUE,
			account_id             VARCHAR(40) NOT NULL,
			amount                 NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
			merchant               VARCHAR(64) NOT NULL,
			ts                     TIMESTAMPTZ NOT NULL,
			risk_score             NUMERIC(5, 2) NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
			risk_label             VARCHAR(16) NOT NULL,
			blocked                BOOLEAN NOT NULL DEFAULT FALSE,
			verification_required  BOOLEAN NOT NULL DEFAULT FALSE,
			verification_status    VARCHAR(16) NOT NULL DEFAULT 'none',
			reasons                TEXT[] NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts DESC, txn_id DESC);
	`)
	return err
}
