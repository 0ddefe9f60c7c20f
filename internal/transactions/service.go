package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/fraudwatch/internal/bank"
	"github.com/mbd888/fraudwatch/internal/idgen"
	"github.com/mbd888/fraudwatch/internal/logging"
	"github.com/mbd888/fraudwatch/internal/metrics"
	"github.com/mbd888/fraudwatch/internal/pagination"
	"github.com/mbd888/fraudwatch/internal/retry"
	"github.com/mbd888/fraudwatch/internal/risk"
	"github.com/mbd888/fraudwatch/internal/syncutil"
	"github.com/mbd888/fraudwatch/internal/traces"
)

// DefaultGenerateCount is used when the caller doesn't pass a count.
const DefaultGenerateCount = 10

// txn_id allocation is retried with backoff. The delays add up to more
// than a second, so a used-up second always rolls over before giving up.
const (
	txnIDAttempts  = 10
	txnIDBaseDelay = 5 * time.Millisecond
)

// AccountProvider resolves the account transactions are attributed to.
type AccountProvider interface {
	Primary(ctx context.Context) (*bank.Account, error)
}

// EventPublisher receives each stored transaction (e.g. the realtime hub).
type EventPublisher interface {
	PublishTransaction(tx *Transaction)
}

// Service generates and queries transactions
type Service struct {
	store     Store
	accounts  AccountProvider
	evaluator *risk.Evaluator
	rng       risk.RandomSource
	locks     *syncutil.ContextShardedMutex
	txnIDs    txnIDAllocator
	events    EventPublisher
	maxCount  int
	now       func() time.Time
}

// NewService creates a transaction service. rng drives amounts, merchants
// and txn_id suffixes; pass the evaluator's source for reproducible runs.
func NewService(store Store, accounts AccountProvider, evaluator *risk.Evaluator, rng risk.RandomSource) *Service {
	if rng == nil {
		rng = risk.NewRand(0)
	}
	return &Service{
		store:     store,
		accounts:  accounts,
		evaluator: evaluator,
		rng:       rng,
		locks:     syncutil.NewContextShardedMutex(),
		maxCount:  100,
		now:       time.Now,
	}
}

// WithMaxCount caps the batch size accepted by Generate.
func (s *Service) WithMaxCount(n int) *Service {
	s.maxCount = n
	return s
}

// WithEvents publishes every generated transaction.
func (s *Service) WithEvents(p EventPublisher) *Service {
	s.events = p
	return s
}

// MaxCount returns the largest accepted batch size.
func (s *Service) MaxCount() int {
	return s.maxCount
}

// Generate creates count scored transactions for the linked account.
// The account's historical average is read once, before the batch, so
// transactions in one batch don't influence each other's scores.
func (s *Service) Generate(ctx context.Context, count int) ([]*Transaction, error) {
	if count < 1 || count > s.maxCount {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidCount, s.maxCount)
	}

	ctx, span := traces.StartSpan(ctx, "transactions.Generate", traces.Count(count))
	defer span.End()
	start := time.Now()

	account, err := s.accounts.Primary(ctx)
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(traces.AccountID(account.ID))

	// Serialize read-average-then-write per account
	unlock, err := s.locks.LockContext(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	avg, n, err := s.store.AverageAmount(ctx, account.ID)
	if err != nil {
		traces.RecordError(span, err)
		return nil, fmt.Errorf("average amount: %w", err)
	}
	var history *float64
	if n > 0 {
		history = &avg
	}

	created := make([]*Transaction, 0, count)
	for i := 0; i < count; i++ {
		tx, err := s.generateOne(ctx, account.ID, history)
		if err != nil {
			traces.RecordError(span, err)
			logging.L(ctx).Error("transaction generation aborted",
				"account_id", account.ID, "created", len(created), "error", err)
			return nil, err
		}
		created = append(created, tx)
	}

	metrics.GenerateBatchDuration.Observe(time.Since(start).Seconds())
	logging.L(ctx).Info("generated transactions",
		"account_id", account.ID, "count", len(created), "history_count", n)
	return created, nil
}

func (s *Service) generateOne(ctx context.Context, accountID string, history *float64) (*Transaction, error) {
	amount := risk.Round2(s.rng.Uniform(MinAmount, MaxAmount))

	assessment, err := s.evaluator.Evaluate(risk.Input{Amount: amount, HistoricalAverage: history})
	if err != nil {
		return nil, fmt.Errorf("evaluate risk: %w", err)
	}

	tx := &Transaction{
		ID:                   idgen.New(),
		AccountID:            accountID,
		Amount:               amount,
		Merchant:             Merchants[s.rng.IntN(len(Merchants))],
		RiskScore:            assessment.Score,
		RiskLabel:            assessment.Label,
		DisplayLabel:         assessment.DisplayLabel,
		Blocked:              assessment.Blocked,
		VerificationRequired: assessment.VerificationRequired,
		VerificationStatus:   assessment.VerificationStatus,
		Reasons:              assessment.Reasons,
	}

	// The clock is re-read on every attempt so a full second can roll over.
	err = retry.DoNotify(ctx, txnIDAttempts, txnIDBaseDelay, func() error {
		now := s.now().UTC().Truncate(time.Microsecond) // matches Postgres timestamp precision
		id, ok := s.txnIDs.next(now, s.rng)
		if !ok {
			return errTxnIDsExhausted
		}
		tx.TxnID, tx.Timestamp = id, now
		err := s.store.Create(ctx, tx)
		if err != nil && !errors.Is(err, ErrDuplicateTxnID) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error) {
		if errors.Is(err, errTxnIDsExhausted) {
			logging.L(ctx).Debug("txn_id space used up, waiting for next second", "attempt", attempt)
			return
		}
		metrics.TxnIDCollisionsTotal.Inc()
		logging.L(ctx).Debug("txn_id collision, retrying", "txn_id", tx.TxnID, "attempt", attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("store transaction: %w", err)
	}

	metrics.RecordTransaction(string(tx.RiskLabel), tx.RiskScore, tx.Blocked, tx.VerificationRequired)
	traces.AddEvent(ctx, "transaction.scored",
		traces.TxnID(tx.TxnID), traces.RiskScore(tx.RiskScore), traces.RiskLabel(string(tx.RiskLabel)))
	if s.events != nil {
		s.events.PublishTransaction(tx)
	}
	return tx, nil
}

// Get returns a transaction by its txn_id.
func (s *Service) Get(ctx context.Context, txnID string) (*Transaction, error) {
	return s.store.Get(ctx, txnID)
}

// List returns one page of transactions, newest first.
func (s *Service) List(ctx context.Context, cursor string, limit int) (*Page, error) {
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	items, err := s.store.List(ctx, c, limit+1)
	if err != nil {
		return nil, err
	}
	items, next, hasMore := pagination.ComputePage(items, limit, func(tx *Transaction) (time.Time, string) {
		return tx.Timestamp, tx.TxnID
	})
	return &Page{Transactions: items, NextCursor: next, HasMore: hasMore}, nil
}
