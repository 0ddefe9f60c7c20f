// Package transactions generates, scores and stores synthetic card
// transactions against the linked demo account.
package transactions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/fraudwatch/internal/pagination"
	"github.com/mbd888/fraudwatch/internal/risk"
)

var (
	ErrNotFound       = errors.New("transaction not found")
	ErrDuplicateTxnID = errors.New("duplicate transaction id")
	ErrInvalidCount   = errors.New("invalid transaction count")
)

// Merchants is the catalog generated transactions draw from.
var Merchants = []string{
	"Amazon", "Flipkart", "Swiggy", "Uber", "Zomato",
	"Myntra", "BigBasket", "IRCTC", "Paytm", "Ola",
}

// Generated amounts are drawn uniformly from this range.
const (
	MinAmount = 20.0
	MaxAmount = 20000.0
)

// Pagination bounds for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Transaction is a scored transaction. Created once, never mutated.
type Transaction struct {
	ID                   string                  `json:"id"`
	TxnID                string                  `json:"txn_id"`
	AccountID            string                  `json:"account_id"`
	Amount               float64                 `json:"amount"`
	Merchant             string                  `json:"merchant"`
	Timestamp            time.Time               `json:"timestamp"`
	RiskScore            float64                 `json:"risk_score"`
	RiskLabel            risk.Label              `json:"risk_label"`
	DisplayLabel         string                  `json:"display_label,omitempty"`
	Blocked              bool                    `json:"blocked"`
	VerificationRequired bool                    `json:"verification_required"`
	VerificationStatus   risk.VerificationStatus `json:"verification_status"`
	Reasons              []string                `json:"reasons"`
}

// Page is one page of a newest-first listing.
type Page struct {
	Transactions []*Transaction `json:"transactions"`
	NextCursor   string         `json:"next_cursor,omitempty"`
	HasMore      bool           `json:"has_more"`
}

// Store persists transactions
type Store interface {
	// Create fails with ErrDuplicateTxnID when the txn_id is taken.
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, txnID string) (*Transaction, error)
	// List returns up to limit transactions ordered by (timestamp, txn_id)
	// descending, starting after cursor (nil for the first page).
	List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*Transaction, error)
	// AverageAmount returns the mean amount and count for an account.
	AverageAmount(ctx context.Context, accountID string) (avg float64, count int, err error)
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	order []*Transaction // kept sorted newest first

	// running totals per account
	sums   map[string]float64
	counts map[string]int
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Transaction),
		sums:   make(map[string]float64),
		counts: make(map[string]int),
	}
}

func newerFirst(a, b *Transaction) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.TxnID > b.TxnID
}

func (m *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[tx.TxnID]; exists {
		return ErrDuplicateTxnID
	}
	cp := copyTx(tx)
	m.byID[cp.TxnID] = cp

	i := sort.Search(len(m.order), func(i int) bool { return newerFirst(cp, m.order[i]) })
	m.order = append(m.order, nil)
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = cp

	m.sums[cp.AccountID] += cp.Amount
	m.counts[cp.AccountID]++
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, txnID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.byID[txnID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTx(tx), nil
}

func (m *MemoryStore) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Transaction, 0, limit)
	for _, tx := range m.order {
		if !cursor.Before(tx.Timestamp, tx.TxnID) {
			continue
		}
		result = append(result, copyTx(tx))
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) AverageAmount(ctx context.Context, accountID string) (float64, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.counts[accountID]
	if n == 0 {
		return 0, 0, nil
	}
	return m.sums[accountID] / float64(n), n, nil
}

func copyTx(tx *Transaction) *Transaction {
	cp := *tx
	cp.Reasons = append([]string{}, tx.Reasons...)
	return &cp
}
