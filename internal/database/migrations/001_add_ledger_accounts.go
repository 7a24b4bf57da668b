package migrations

import (
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

func AddLedgerAccounts(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.LedgerAccount{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Transaction{}); err != nil {
		return err
	}

	return nil
}
