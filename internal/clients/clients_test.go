package clients

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testUserID = "USR_test"

func setupService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&types.Client{},
		&types.LedgerAccount{},
		&types.Transaction{},
		&types.Settlement{},
		&types.ReportConfig{},
	))

	return NewService(db)
}

func TestCreateAndGetClient(t *testing.T) {
	s := setupService(t)

	client, err := s.CreateClient(testUserID, CreateClientRequest{Name: "Acme", Code: "ACM"})
	require.NoError(t, err)
	assert.NotEmpty(t, client.ClientID)

	got, err := s.GetClient(testUserID, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	// Another user cannot see the client.
	_, err = s.GetClient("USR_other", client.ClientID)
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestListClientsIsScopedToUser(t *testing.T) {
	s := setupService(t)

	_, err := s.CreateClient(testUserID, CreateClientRequest{Name: "Mine"})
	require.NoError(t, err)
	_, err = s.CreateClient("USR_other", CreateClientRequest{Name: "Theirs"})
	require.NoError(t, err)

	clients, err := s.ListClients(testUserID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Mine", clients[0].Name)
}

func TestDeleteClientCascades(t *testing.T) {
	s := setupService(t)

	client, err := s.CreateClient(testUserID, CreateClientRequest{Name: "Acme"})
	require.NoError(t, err)

	account := &types.LedgerAccount{
		AccountID: "ACC_" + uuid.New().String(),
		ClientID:  client.ClientID,
		Funding:   1000,
	}
	require.NoError(t, s.db.db.Create(account).Error)
	require.NoError(t, s.db.db.Create(&types.Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		AccountID:     account.AccountID,
		Type:          types.TxnFunding,
	}).Error)
	require.NoError(t, s.db.db.Create(&types.Settlement{
		SettlementID: "STL_" + uuid.New().String(),
		AccountID:    account.AccountID,
	}).Error)

	require.NoError(t, s.DeleteClient(testUserID, client.ClientID))

	_, err = s.GetClient(testUserID, client.ClientID)
	assert.ErrorIs(t, err, ErrClientNotFound)

	var count int64
	require.NoError(t, s.db.db.Model(&types.LedgerAccount{}).Where("client_id = ?", client.ClientID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, s.db.db.Model(&types.Transaction{}).Where("account_id = ?", account.AccountID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, s.db.db.Model(&types.Settlement{}).Where("account_id = ?", account.AccountID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestDeleteMissingClient(t *testing.T) {
	s := setupService(t)
	err := s.DeleteClient(testUserID, "CLT_missing")
	assert.ErrorIs(t, err, ErrClientNotFound)
}
