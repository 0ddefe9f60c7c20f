package bank

import (
	"context"
	"testing"

	"github.com/mbd888/fraudwatch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Link(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	_, err := store.First(ctx)
	assert.ErrorIs(t, err, ErrNoLinkedAccount)

	svc := NewService(store)
	first, created, err := svc.Link(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.Link(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	dup := *first
	dup.ID = "acct_other"
	assert.ErrorIs(t, store.Create(ctx, &dup), ErrAccountExists)
}
