package database

import (
	"fmt"

	"github.com/transactionhub/ledger-api/internal/database/migrations"
	"github.com/transactionhub/ledger-api/internal/ledger"
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddLedgerAccounts(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddReportConfigs(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.User{},
		&types.Client{},
		&types.Exchange{},
		&types.Settlement{},
		&ledger.IdempotencyRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
