// Package gormstore implements the user, bank account and transaction stores
// on gorm with SQLite, for single-file deployments without Postgres.
package gormstore

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// IsSQLiteURL reports whether a DATABASE_URL selects the SQLite backend.
func IsSQLiteURL(url string) bool {
	return strings.HasPrefix(url, "sqlite://") || strings.HasPrefix(url, "file:")
}

// Open connects to the SQLite database named by url ("sqlite://path" or a
// "file:" DSN) and migrates the schema.
func Open(url string) (*gorm.DB, error) {
	dsn := strings.TrimPrefix(url, "sqlite://")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &accountRow{}, &transactionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

type userRow struct {
	ID           string `gorm:"primaryKey;size:40"`
	Email        string `gorm:"uniqueIndex;size:320;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type accountRow struct {
	ID            string `gorm:"primaryKey;size:40"`
	AccountName   string `gorm:"not null"`
	AccountNumber string `gorm:"uniqueIndex;size:64;not null"`
	BankName      string `gorm:"not null"`
	CreatedAt     time.Time
}

func (accountRow) TableName() string { return "bank_accounts" }

type transactionRow struct {
	ID                   string    `gorm:"primaryKey;size:36"`
	TxnID                string    `gorm:"uniqueIndex;size:32;not null"`
	AccountID            string    `gorm:"index;size:40;not null"`
	Amount               float64   `gorm:"not null"`
	Merchant             string    `gorm:"size:64;not null"`
	Timestamp            time.Time `gorm:"column:ts;index;not null"`
	RiskScore            float64   `gorm:"not null"`
	RiskLabel            string    `gorm:"size:16;not null"`
	Blocked              bool
	VerificationRequired bool
	VerificationStatus   string   `gorm:"size:16;not null"`
	Reasons              []string `gorm:"serializer:json"`
}

func (transactionRow) TableName() string { return "transactions" }
