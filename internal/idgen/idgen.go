// Package idgen provides ID generation for users, accounts and transactions.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New generates a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// WithPrefix generates a random ID with a prefix (e.g. "usr_", "acct_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// TxnID builds a human-friendly transaction reference of the form
// TXN<unix seconds><3-digit suffix>. suffix must be in [100, 999].
// Uniqueness is not guaranteed; callers retry on collision.
func TxnID(now time.Time, suffix int) string {
	return fmt.Sprintf("TXN%d%03d", now.Unix(), suffix)
}
