package exchanges

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
		&types.Exchange{},
		&types.LedgerAccount{},
		&types.Transaction{},
		&types.ReportConfig{},
	))

	return NewService(db)
}

func createFixtures(t *testing.T, s *Service) (clientID, exchangeID string) {
	t.Helper()

	client := &types.Client{
		ClientID: "CLT_" + uuid.New().String(),
		UserID:   testUserID,
		Name:     "Test Client",
	}
	require.NoError(t, s.db.db.Create(client).Error)

	exchange, err := s.CreateExchange(CreateExchangeRequest{Name: "Test Exchange"})
	require.NoError(t, err)

	return client.ClientID, exchange.ExchangeID
}

func TestCreateExchange(t *testing.T) {
	s := setupService(t)

	exchange, err := s.CreateExchange(CreateExchangeRequest{Name: "Alpha", Code: "ALP"})
	require.NoError(t, err)

	assert.NotEmpty(t, exchange.ExchangeID)
	assert.True(t, exchange.IsActive)

	exchanges, err := s.ListExchanges()
	require.NoError(t, err)
	assert.Len(t, exchanges, 1)
}

func TestLinkAccount(t *testing.T) {
	s := setupService(t)
	clientID, exchangeID := createFixtures(t, s)

	account, err := s.LinkAccount(testUserID, LinkAccountRequest{
		ClientID:              clientID,
		ExchangeID:            exchangeID,
		Funding:               1000,
		ProfitSharePercentage: 50,
		LossSharePercentage:   40,
	})
	require.NoError(t, err)

	// The initial funding seeds both sides of the ledger, so the account
	// starts flat.
	assert.Equal(t, int64(1000), account.Funding)
	assert.Equal(t, int64(1000), account.ExchangeBalance)
	assert.Equal(t, int64(0), account.InitialFinalShare)

	var txn types.Transaction
	require.NoError(t, s.db.db.Where("account_id = ?", account.AccountID).First(&txn).Error)
	assert.Equal(t, types.TxnFunding, txn.Type)
	assert.Equal(t, int64(1000), txn.Amount)
	assert.Equal(t, int64(1), txn.SequenceNo)
}

func TestLinkAccountRejectsDuplicatePair(t *testing.T) {
	s := setupService(t)
	clientID, exchangeID := createFixtures(t, s)

	req := LinkAccountRequest{ClientID: clientID, ExchangeID: exchangeID, Funding: 500}
	_, err := s.LinkAccount(testUserID, req)
	require.NoError(t, err)

	_, err = s.LinkAccount(testUserID, req)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestLinkAccountValidation(t *testing.T) {
	s := setupService(t)
	clientID, exchangeID := createFixtures(t, s)

	_, err := s.LinkAccount(testUserID, LinkAccountRequest{
		ClientID:              clientID,
		ExchangeID:            exchangeID,
		ProfitSharePercentage: 101,
	})
	assert.ErrorIs(t, err, ErrInvalidPercentage)

	_, err = s.LinkAccount(testUserID, LinkAccountRequest{
		ClientID:   clientID,
		ExchangeID: exchangeID,
		Funding:    -1,
	})
	assert.ErrorIs(t, err, ErrNegativeFunding)
}

func TestLinkAccountUnknownReferences(t *testing.T) {
	s := setupService(t)
	clientID, exchangeID := createFixtures(t, s)

	_, err := s.LinkAccount(testUserID, LinkAccountRequest{ClientID: "CLT_missing", ExchangeID: exchangeID})
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = s.LinkAccount(testUserID, LinkAccountRequest{ClientID: clientID, ExchangeID: "EXC_missing"})
	assert.ErrorIs(t, err, ErrExchangeNotFound)

	// Another user's client is invisible.
	_, err = s.LinkAccount("USR_other", LinkAccountRequest{ClientID: clientID, ExchangeID: exchangeID})
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestLinkAccountStoresMatchingSplitConfig(t *testing.T) {
	s := setupService(t)
	clientID, exchangeID := createFixtures(t, s)

	myOwn := decimal.NewFromFloat(30)
	friend := decimal.NewFromFloat(20)
	account, err := s.LinkAccount(testUserID, LinkAccountRequest{
		ClientID:              clientID,
		ExchangeID:            exchangeID,
		Funding:               1000,
		ProfitSharePercentage: 50,
		LossSharePercentage:   50,
		MyOwnPercentage:       &myOwn,
		FriendPercentage:      &friend,
	})
	require.NoError(t, err)

	config, err := s.db.getReportConfig(account.AccountID)
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.True(t, config.MyOwnPercentage.Equal(myOwn))
	assert.True(t, config.FriendPercentage.Equal(friend))
}

func TestLinkAccountDropsMismatchedSplitConfig(t *testing.T) {
	s := setupService(t)
	clientID, exchangeID := createFixtures(t, s)

	myOwn := decimal.NewFromFloat(30)
	friend := decimal.NewFromFloat(30) // sums to 60, total share is 50
	account, err := s.LinkAccount(testUserID, LinkAccountRequest{
		ClientID:              clientID,
		ExchangeID:            exchangeID,
		Funding:               1000,
		ProfitSharePercentage: 50,
		LossSharePercentage:   50,
		MyOwnPercentage:       &myOwn,
		FriendPercentage:      &friend,
	})
	require.NoError(t, err)

	// The link succeeds; only the split config is dropped.
	config, err := s.db.getReportConfig(account.AccountID)
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestUpdateReportConfig(t *testing.T) {
	s := setupService(t)
	clientID, exchangeID := createFixtures(t, s)

	account, err := s.LinkAccount(testUserID, LinkAccountRequest{
		ClientID:              clientID,
		ExchangeID:            exchangeID,
		Funding:               1000,
		ProfitSharePercentage: 50,
		LossSharePercentage:   50,
	})
	require.NoError(t, err)

	err = s.UpdateReportConfig(testUserID, account.AccountID, UpdateReportConfigRequest{
		MyOwnPercentage:  decimal.NewFromFloat(35),
		FriendPercentage: decimal.NewFromFloat(15),
	})
	require.NoError(t, err)

	config, err := s.db.getReportConfig(account.AccountID)
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.True(t, config.MyOwnPercentage.Equal(decimal.NewFromFloat(35)))

	// Cross-tenant config access is not-found.
	err = s.UpdateReportConfig("USR_other", account.AccountID, UpdateReportConfigRequest{})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
