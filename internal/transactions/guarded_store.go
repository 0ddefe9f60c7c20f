package transactions

import (
	"context"
	"errors"

	"github.com/mbd888/fraudwatch/internal/circuitbreaker"
	"github.com/mbd888/fraudwatch/internal/pagination"
)

// BreakerKey is the circuit key GuardedStore reports under.
const BreakerKey = "transactions"

// GuardedStore fails fast with circuitbreaker.ErrOpen once the wrapped
// store keeps erroring. Not-found and duplicate txn_id are expected
// outcomes and never count as failures.
type GuardedStore struct {
	inner   Store
	breaker *circuitbreaker.Breaker
}

// NewGuardedStore wraps inner with b.
func NewGuardedStore(inner Store, b *circuitbreaker.Breaker) *GuardedStore {
	return &GuardedStore{inner: inner, breaker: b}
}

func isStoreFailure(err error) bool {
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDuplicateTxnID) &&
		!errors.Is(err, context.Canceled)
}

func (g *GuardedStore) Create(ctx context.Context, tx *Transaction) error {
	return g.breaker.Do(BreakerKey, func() error {
		return g.inner.Create(ctx, tx)
	}, isStoreFailure)
}

func (g *GuardedStore) Get(ctx context.Context, txnID string) (*Transaction, error) {
	var tx *Transaction
	err := g.breaker.Do(BreakerKey, func() error {
		var err error
		tx, err = g.inner.Get(ctx, txnID)
		return err
	}, isStoreFailure)
	return tx, err
}

func (g *GuardedStore) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*Transaction, error) {
	var txs []*Transaction
	err := g.breaker.Do(BreakerKey, func() error {
		var err error
		txs, err = g.inner.List(ctx, cursor, limit)
		return err
	}, isStoreFailure)
	return txs, err
}

func (g *GuardedStore) AverageAmount(ctx context.Context, accountID string) (float64, int, error) {
	var avg float64
	var n int
	err := g.breaker.Do(BreakerKey, func() error {
		var err error
		avg, n, err = g.inner.AverageAmount(ctx, accountID)
		return err
	}, isStoreFailure)
	return avg, n, err
}
