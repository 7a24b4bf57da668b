package exchanges

import (
	"errors"

	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateExchange(exchange *types.Exchange) error {
	return d.db.Create(exchange).Error
}

func (d *Database) GetExchange(exchangeID string) (*types.Exchange, error) {
	var exchange types.Exchange
	if err := d.db.Where("exchange_id = ?", exchangeID).First(&exchange).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	return &exchange, nil
}

func (d *Database) ListExchanges() ([]types.Exchange, error) {
	var exchanges []types.Exchange
	err := d.db.Order("created_at ASC").Find(&exchanges).Error
	return exchanges, err
}

func (d *Database) DeleteExchange(exchangeID string) error {
	exchange, err := d.GetExchange(exchangeID)
	if err != nil {
		return err
	}
	return d.db.Delete(exchange).Error
}

func (d *Database) getClientForUser(userID, clientID string) (*types.Client, error) {
	var client types.Client
	if err := d.db.Where("client_id = ? AND user_id = ?", clientID, userID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (d *Database) accountExists(clientID, exchangeID string) (bool, error) {
	var count int64
	err := d.db.Model(&types.LedgerAccount{}).
		Where("client_id = ? AND exchange_id = ?", clientID, exchangeID).
		Count(&count).Error
	return count > 0, err
}

// createLinkedAccount persists the new account and its initial FUNDING
// transaction atomically. config may be nil.
func (d *Database) createLinkedAccount(account *types.LedgerAccount, txn *types.Transaction, config *types.ReportConfig) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		if config != nil {
			if err := tx.Create(config).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Database) getAccountForUser(userID, accountID string) (*types.LedgerAccount, error) {
	var account types.LedgerAccount
	err := d.db.
		Joins("JOIN clients ON clients.client_id = ledger_accounts.client_id").
		Where("ledger_accounts.account_id = ? AND clients.user_id = ?", accountID, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
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

func (d *Database) saveReportConfig(config *types.ReportConfig) error {
	return d.db.Save(config).Error
}
