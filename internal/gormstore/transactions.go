package gormstore

import (
	"context"
	"errors"

	"github.com/mbd888/fraudwatch/internal/pagination"
	"github.com/mbd888/fraudwatch/internal/risk"
	"github.com/mbd888/fraudwatch/internal/transactions"
	"gorm.io/gorm"
)

// TransactionStore implements transactions.Store
type TransactionStore struct {
	db *gorm.DB
}

// NewTransactionStore creates a gorm-backed transaction store
func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx *transactions.Transaction) error {
	row := transactionRow{
		ID:                   tx.ID,
		TxnID:                tx.TxnID,
		AccountID:            tx.AccountID,
		Amount:               tx.Amount,
		Merchant:             tx.Merchant,
		Timestamp:            tx.Timestamp.UTC(),
		RiskScore:            tx.RiskScore,
		RiskLabel:            string(tx.RiskLabel),
		Blocked:              tx.Blocked,
		VerificationRequired: tx.VerificationRequired,
		VerificationStatus:   string(tx.VerificationStatus),
		Reasons:              tx.Reasons,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return transactions.ErrDuplicateTxnID
	}
	return err
}

func (s *TransactionStore) Get(ctx context.Context, txnID string) (*transactions.Transaction, error) {
	var row transactionRow
	err := s.db.WithContext(ctx).Where("txn_id = ?", txnID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, transactions.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toTransaction(), nil
}

func (s *TransactionStore) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*transactions.Transaction, error) {
	q := s.db.WithContext(ctx).Order("ts DESC, txn_id DESC").Limit(limit)
	if cursor != nil {
		q = q.Where("ts < ? OR (ts = ? AND txn_id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []transactionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*transactions.Transaction, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toTransaction())
	}
	return result, nil
}

func (s *TransactionStore) AverageAmount(ctx context.Context, accountID string) (float64, int, error) {
	var agg struct {
		Avg   float64
		Count int
	}
	err := s.db.WithContext(ctx).Model(&transactionRow{}).
		Select("COALESCE(AVG(amount), 0) AS avg, COUNT(*) AS count").
		Where("account_id = ?", accountID).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, err
	}
	return agg.Avg, agg.Count, nil
}

func (r *transactionRow) toTransaction() *transactions.Transaction {
	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &transactions.Transaction{
		ID:                   r.ID,
		TxnID:                r.TxnID,
		AccountID:            r.AccountID,
		Amount:               r.Amount,
		Merchant:             r.Merchant,
		Timestamp:            r.Timestamp.UTC(),
		RiskScore:            r.RiskScore,
		RiskLabel:            risk.Label(r.RiskLabel),
		Blocked:              r.Blocked,
		VerificationRequired: r.VerificationRequired,
		VerificationStatus:   risk.VerificationStatus(r.VerificationStatus),
		Reasons:              reasons,
	}
}
