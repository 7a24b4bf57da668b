package reports

import (
	"errors"
	"time"

	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

type accountFilter struct {
	clientID   string
	exchangeID string
}

func (d *Database) listAccounts(userID string, filter accountFilter) ([]types.LedgerAccount, error) {
	query := d.db.
		Joins("JOIN clients ON clients.client_id = ledger_accounts.client_id").
		Where("clients.user_id = ?", userID)
	if filter.clientID != "" {
		query = query.Where("ledger_accounts.client_id = ?", filter.clientID)
	}
	if filter.exchangeID != "" {
		query = query.Where("ledger_accounts.exchange_id = ?", filter.exchangeID)
	}

	var accounts []types.LedgerAccount
	err := query.Find(&accounts).Error
	return accounts, err
}

func (d *Database) countClients(userID string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Client{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (d *Database) countExchanges() (int64, error) {
	var count int64
	err := d.db.Model(&types.Exchange{}).Count(&count).Error
	return count, err
}

func (d *Database) getReportConfig(accountID string) (*types.ReportConfig, error) {
	var config types.ReportConfig
	if err := d.db.Where("account_id = ?", accountID).First(&config).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &config, nil
}

func (d *Database) listTransactionsInRange(userID string, from, to time.Time, filter accountFilter) ([]types.Transaction, error) {
	query := d.db.
		Joins("JOIN ledger_accounts ON ledger_accounts.account_id = transactions.account_id").
		Joins("JOIN clients ON clients.client_id = ledger_accounts.client_id").
		Where("clients.user_id = ? AND transactions.date >= ? AND transactions.date <= ?", userID, from, to)
	if filter.clientID != "" {
		query = query.Where("ledger_accounts.client_id = ?", filter.clientID)
	}
	if filter.exchangeID != "" {
		query = query.Where("ledger_accounts.exchange_id = ?", filter.exchangeID)
	}

	var transactions []types.Transaction
	err := query.Order("transactions.date DESC").Find(&transactions).Error
	return transactions, err
}

func (d *Database) getClientName(clientID string) string {
	var client types.Client
	if err := d.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return ""
	}
	return client.Name
}

func (d *Database) getExchangeName(exchangeID string) string {
	var exchange types.Exchange
	if err := d.db.Where("exchange_id = ?", exchangeID).First(&exchange).Error; err != nil {
		return ""
	}
	return exchange.Name
}
