package traces

import (
	"context"
	"errors"
	"testing"

	"github.com/mbd888/fraudwatch/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_NoEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "", logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan_NoopProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", AccountID("acct_1"), Count(3))
	defer span.End()

	assert.NotNil(t, ctx)
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
}

func TestAddEvent_WithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AddEvent(context.Background(), "transaction.scored", TxnID("TXN1"), RiskScore(42), RiskLabel("Safe"))
	})
}
