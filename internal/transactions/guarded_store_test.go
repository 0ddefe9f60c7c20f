package transactions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/fraudwatch/internal/circuitbreaker"
	"github.com/mbd888/fraudwatch/internal/pagination"
	"github.com/mbd888/fraudwatch/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedStore_ExpectedErrorsDoNotTrip(t *testing.T) {
	b := circuitbreaker.New(2, time.Minute)
	store := NewGuardedStore(NewMemoryStore(), b)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Get(ctx, "TXN404")
		assert.ErrorIs(t, err, ErrNotFound)
	}

	tx := &Transaction{ID: "id-1", TxnID: "TXN1", AccountID: "acct_1", Amount: 10, RiskLabel: risk.LabelSafe, Timestamp: time.Now()}
	require.NoError(t, store.Create(ctx, tx))
	for i := 0; i < 3; i++ {
		dup := *tx
		assert.ErrorIs(t, store.Create(ctx, &dup), ErrDuplicateTxnID)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State(BreakerKey))

	avg, n, err := store.AverageAmount(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, avg)
	assert.Equal(t, 1, n)

	list, err := store.List(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

var errStoreDown = errors.New("connection refused")

type downStore struct{}

func (downStore) Create(context.Context, *Transaction) error { return errStoreDown }
func (downStore) Get(context.Context, string) (*Transaction, error) {
	return nil, errStoreDown
}
func (downStore) List(context.Context, *pagination.Cursor, int) ([]*Transaction, error) {
	return nil, errStoreDown
}
func (downStore) AverageAmount(context.Context, string) (float64, int, error) {
	return 0, 0, errStoreDown
}

func TestGuardedStore_FailsFastWhenOpen(t *testing.T) {
	b := circuitbreaker.New(2, time.Minute)
	store := NewGuardedStore(downStore{}, b)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Get(ctx, "TXN1")
		assert.ErrorIs(t, err, errStoreDown)
	}
	_, err := store.Get(ctx, "TXN1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	_, _, err = store.AverageAmount(ctx, "acct_1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
