package idgen

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsUUID(t *testing.T) {
	id := New()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, New())
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("usr_")
	assert.True(t, strings.HasPrefix(id, "usr_"))
	assert.Len(t, id, len("usr_")+24)
}

func TestTxnID(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, "TXN1700000000123", TxnID(now, 123))
}
