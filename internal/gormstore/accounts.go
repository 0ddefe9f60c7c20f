package gormstore

import (
	"context"
	"errors"

	"github.com/mbd888/fraudwatch/internal/bank"
	"gorm.io/gorm"
)

// AccountStore implements bank.Store
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore creates a gorm-backed bank account store
func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, a *bank.Account) error {
	row := accountRow{
		ID:            a.ID,
		AccountName:   a.AccountName,
		AccountNumber: a.AccountNumber,
		BankName:      a.BankName,
		CreatedAt:     a.CreatedAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return bank.ErrAccountExists
	}
	return err
}

func (s *AccountStore) First(ctx context.Context) (*bank.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, bank.ErrNoLinkedAccount
	}
	if err != nil {
		return nil, err
	}
	return &bank.Account{
		ID:            row.ID,
		AccountName:   row.AccountName,
		AccountNumber: row.AccountNumber,
		BankName:      row.BankName,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}
