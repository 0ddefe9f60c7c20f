package gormstore

import (
	"context"
	"errors"

	"github.com/mbd888/fraudwatch/internal/auth"
	"gorm.io/gorm"
)

// UserStore implements auth.Store
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a gorm-backed user store
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	row := userRow{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return auth.ErrEmailTaken
	}
	return err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*auth.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) first(ctx context.Context, query string, arg string) (*auth.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &auth.User{ID: row.ID, Email: row.Email, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt.UTC()}, nil
}
