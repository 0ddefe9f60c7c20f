package transactions

import (
	"errors"
	"sync"
	"time"

	"github.com/mbd888/fraudwatch/internal/idgen"
	"github.com/mbd888/fraudwatch/internal/risk"
)

// Suffixes run 100..999, so one second holds at most this many txn_ids.
const (
	minTxnIDSuffix  = 100
	txnIDsPerSecond = 900
)

var errTxnIDsExhausted = errors.New("no free txn_id left in this second")

// txnIDAllocator hands out txn_id suffixes without replacement within a
// second, so batches in one process never collide with each other. Ids
// taken by other processes still surface as ErrDuplicateTxnID on insert.
type txnIDAllocator struct {
	mu     sync.Mutex
	second int64
	primed bool
	free   []int
}

// next draws an unused id for now's second. It returns false once the
// second is used up; a later second starts with the full range again.
func (a *txnIDAllocator) next(now time.Time, rng risk.RandomSource) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sec := now.Unix(); !a.primed || sec != a.second {
		a.second = sec
		a.primed = true
		a.free = a.free[:0]
		for s := minTxnIDSuffix; s < minTxnIDSuffix+txnIDsPerSecond; s++ {
			a.free = append(a.free, s)
		}
	}
	if len(a.free) == 0 {
		return "", false
	}

	i := rng.IntN(len(a.free))
	suffix := a.free[i]
	last := len(a.free) - 1
	a.free[i] = a.free[last]
	a.free = a.free[:last]
	return idgen.TxnID(now, suffix), true
}
