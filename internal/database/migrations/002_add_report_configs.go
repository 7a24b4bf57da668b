package migrations

import (
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

func AddReportConfigs(db *gorm.DB) error {
	return db.AutoMigrate(&types.ReportConfig{})
}
