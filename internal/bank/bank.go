// Package bank links the single demo bank account that generated
// transactions are attributed to. There is no external bank integration.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbd888/fraudwatch/internal/idgen"
	"github.com/mbd888/fraudwatch/internal/syncutil"
)

var (
	ErrNoLinkedAccount = errors.New("no linked account found")
	ErrAccountExists   = errors.New("account already exists")
)

// Dummy account details created on first link.
const (
	DefaultAccountName   = "Axis Bank Primary Account"
	DefaultAccountNumber = "AXISXXXX8765"
	DefaultBankName      = "Axis Bank"
)

// Account is a linked bank account
type Account struct {
	ID            string    `json:"id"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	BankName      string    `json:"bank_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists linked accounts
type Store interface {
	Create(ctx context.Context, account *Account) error
	First(ctx context.Context) (*Account, error) // ErrNoLinkedAccount when empty
}

// EventPublisher is notified when an account is linked for the first time.
type EventPublisher interface {
	PublishAccountLinked(account *Account)
}

// Service links and looks up the demo account
type Service struct {
	store  Store
	locks  syncutil.ShardedMutex // serializes check-then-create per account number
	events EventPublisher
}

// NewService creates a new bank service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// WithEvents publishes newly linked accounts.
func (s *Service) WithEvents(p EventPublisher) *Service {
	s.events = p
	return s
}

// Link returns the existing account, creating the dummy one on first call.
// created reports whether this call created it.
func (s *Service) Link(ctx context.Context) (account *Account, created bool, err error) {
	unlock := s.locks.Lock(DefaultAccountNumber)
	defer unlock()

	existing, err := s.store.First(ctx)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNoLinkedAccount) {
		return nil, false, fmt.Errorf("lookup account: %w", err)
	}

	account = &Account{
		ID:            idgen.WithPrefix("acct_"),
		AccountName:   DefaultAccountName,
		AccountNumber: DefaultAccountNumber,
		BankName:      DefaultBankName,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.Create(ctx, account); err != nil {
		// Another process won the race
		if errors.Is(err, ErrAccountExists) {
			existing, ferr := s.store.First(ctx)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create account: %w", err)
	}
	if s.events != nil {
		s.events.PublishAccountLinked(account)
	}
	return account, true, nil
}

// Primary returns the linked account.
func (s *Service) Primary(ctx context.Context) (*Account, error) {
	return s.store.First(ctx)
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu       sync.RWMutex
	accounts []*Account
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.AccountNumber == account.AccountNumber {
			return ErrAccountExists
		}
	}
	a := *account
	m.accounts = append(m.accounts, &a)
	return nil
}

func (m *MemoryStore) First(ctx context.Context) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.accounts) == 0 {
		return nil, ErrNoLinkedAccount
	}
	a := *m.accounts[0]
	return &a, nil
}
