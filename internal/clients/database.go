package clients

import (
	"errors"

	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

var ErrClientNotFound = errors.New("client not found")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateClient(client *types.Client) error {
	return d.db.Create(client).Error
}

func (d *Database) GetClient(userID, clientID string) (*types.Client, error) {
	var client types.Client
	if err := d.db.Where("client_id = ? AND user_id = ?", clientID, userID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (d *Database) ListClients(userID string) ([]types.Client, error) {
	var clients []types.Client
	err := d.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&clients).Error
	return clients, err
}

// DeleteClient removes the client and everything hanging off it: ledger
// accounts, their transactions and settlements, and report configs. The
// whole cascade commits or none of it does.
func (d *Database) DeleteClient(userID, clientID string) error {
	client, err := d.GetClient(userID, clientID)
	if err != nil {
		return err
	}

	return d.db.Transaction(func(tx *gorm.DB) error {
		var accounts []types.LedgerAccount
		if err := tx.Where("client_id = ?", client.ClientID).Find(&accounts).Error; err != nil {
			return err
		}

		for _, account := range accounts {
			if err := tx.Where("account_id = ?", account.AccountID).Delete(&types.Transaction{}).Error; err != nil {
				return err
			}
			if err := tx.Where("account_id = ?", account.AccountID).Delete(&types.Settlement{}).Error; err != nil {
				return err
			}
			if err := tx.Where("account_id = ?", account.AccountID).Delete(&types.ReportConfig{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("client_id = ?", client.ClientID).Delete(&types.LedgerAccount{}).Error; err != nil {
			return err
		}
		return tx.Delete(client).Error
	})
}
