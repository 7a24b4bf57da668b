package ledger

import (
	"fmt"
	"testing"
	"time"

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
		&IdempotencyRecord{},
	))

	return NewService(db)
}

func createTestAccount(t *testing.T, s *Service, funding, balance, profitPct, lossPct int64) string {
	t.Helper()

	client := &types.Client{
		ClientID: "CLT_" + uuid.New().String(),
		UserID:   testUserID,
		Name:     "Test Client",
	}
	require.NoError(t, s.db.db.Create(client).Error)

	account := &types.LedgerAccount{
		AccountID:             "ACC_" + uuid.New().String(),
		ClientID:              client.ClientID,
		ExchangeID:            "EXC_test",
		Funding:               funding,
		ExchangeBalance:       balance,
		ProfitSharePercentage: profitPct,
		LossSharePercentage:   lossPct,
	}
	require.NoError(t, s.db.db.Create(account).Error)

	return account.AccountID
}

func getTestAccount(t *testing.T, s *Service, accountID string) *types.LedgerAccount {
	t.Helper()
	account, err := s.db.GetAccount(testUserID, accountID)
	require.NoError(t, err)
	return account
}

func TestAddFunding(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	txn, err := s.AddFunding(testUserID, accountID, 500, "top up")
	require.NoError(t, err)

	assert.Equal(t, types.TxnFunding, txn.Type)
	assert.Equal(t, int64(500), txn.Amount)
	assert.Equal(t, int64(1000), txn.FundingBefore)
	assert.Equal(t, int64(1500), txn.FundingAfter)
	assert.Equal(t, int64(1500), txn.ExchangeBalanceAfter)

	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(1500), account.Funding)
	assert.Equal(t, int64(1500), account.ExchangeBalance)
	assert.Equal(t, int64(0), ClientPnl(account))
}

func TestAddFundingRejectsNonPositiveAmount(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	_, err := s.AddFunding(testUserID, accountID, 0, "")
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = s.AddFunding(testUserID, accountID, -10, "")
	assert.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestUpdateBalance(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	txn, err := s.UpdateBalance(testUserID, accountID, 1200, "after session")
	require.NoError(t, err)

	// UPDATE_BALANCE records the new balance as its amount.
	assert.Equal(t, types.TxnUpdateBalance, txn.Type)
	assert.Equal(t, int64(1200), txn.Amount)
	assert.Equal(t, int64(1000), txn.ExchangeBalanceBefore)
	assert.Equal(t, int64(1200), txn.ExchangeBalanceAfter)

	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(1000), account.Funding)
	assert.Equal(t, int64(200), ClientPnl(account))
}

func TestRecordTradeRecordsSignedMove(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	txn, err := s.RecordTrade(testUserID, accountID, 900, "losing session")
	require.NoError(t, err)

	assert.Equal(t, types.TxnTrade, txn.Type)
	assert.Equal(t, int64(-100), txn.Amount)
}

func TestUpdateBalanceDoesNotTouchOpenCycle(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 50, 50)

	// Partial payment opens the cycle and freezes the share.
	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 40}, "")
	require.NoError(t, err)

	before := getTestAccount(t, s, accountID)
	require.Equal(t, int64(100), before.InitialFinalShare)

	_, err = s.UpdateBalance(testUserID, accountID, 2000, "")
	require.NoError(t, err)

	after := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(100), after.InitialFinalShare)
	assert.Equal(t, int64(200), after.LockedPnl)
	assert.Equal(t, int64(40), after.TotalSettled)
}

func TestRecordPaymentProfitFullSettlement(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 50, 50)

	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100}, "")
	require.NoError(t, err)

	assert.True(t, result.IsSettlement)
	assert.True(t, result.SettlementCompleted)
	assert.False(t, result.RefundIssued)
	assert.Equal(t, int64(0), result.Remaining)
	// Profit: broker pays the client, outflow is negative.
	assert.Equal(t, int64(-100), result.SignedAmount)
	assert.NotEmpty(t, result.SettlementID)

	account := getTestAccount(t, s, accountID)
	// Full payment moves the full locked PnL out of the balance; funding
	// never moves in the profit case.
	assert.Equal(t, int64(1000), account.Funding)
	assert.Equal(t, int64(1000), account.ExchangeBalance)
	assert.Equal(t, int64(0), account.InitialFinalShare)
	assert.Equal(t, int64(0), account.TotalSettled)
}

func TestRecordPaymentLossPartialSettlement(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 800, 50, 50)

	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50}, "")
	require.NoError(t, err)

	assert.True(t, result.IsSettlement)
	assert.False(t, result.SettlementCompleted)
	assert.Equal(t, int64(50), result.Remaining)
	// Loss: the client pays the broker, inflow is positive.
	assert.Equal(t, int64(50), result.SignedAmount)

	account := getTestAccount(t, s, accountID)
	// Half the share paid moves half the locked PnL out of funding.
	assert.Equal(t, int64(900), account.Funding)
	assert.Equal(t, int64(800), account.ExchangeBalance)
	assert.Equal(t, int64(100), account.InitialFinalShare)
	assert.Equal(t, int64(-200), account.LockedPnl)
	assert.Equal(t, int64(50), account.TotalSettled)
}

func TestRecordPaymentLossCycleWithAutoRefund(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 800, 50, 50)

	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50}, "")
	require.NoError(t, err)

	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50, AutoRefund: true}, "")
	require.NoError(t, err)

	assert.True(t, result.SettlementCompleted)
	assert.True(t, result.RefundIssued)

	// The refund re-credits the cycle's full locked magnitude, restoring
	// funding to its pre-cycle level.
	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(1000), account.Funding)
	assert.Equal(t, int64(1000), account.ExchangeBalance)
	assert.Equal(t, int64(0), account.InitialFinalShare)

	transactions, err := s.db.ListTransactions(testUserID, accountID, nil, nil)
	require.NoError(t, err)

	var refundRows int
	for _, txn := range transactions {
		if txn.Type == types.TxnFundingAuto {
			refundRows++
			assert.Equal(t, int64(200), txn.Amount)
		}
	}
	assert.Equal(t, 1, refundRows)
}

func TestRecordPaymentProfitCycleNoRefund(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 50, 50)

	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100, AutoRefund: true}, "")
	require.NoError(t, err)

	// Auto-refund only applies to loss cycles.
	assert.True(t, result.SettlementCompleted)
	assert.False(t, result.RefundIssued)
}

func TestRecordPaymentOverpaymentRejected(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 50, 50)

	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 150}, "")
	assert.ErrorIs(t, err, ErrOverpayment)

	// The rejected payment must not have mutated anything.
	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(1000), account.Funding)
	assert.Equal(t, int64(1200), account.ExchangeBalance)
	assert.Equal(t, int64(0), account.InitialFinalShare)

	transactions, err := s.db.ListTransactions(testUserID, accountID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

func TestRecordPaymentValidation(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 0}, "")
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 10, Direction: "SIDEWAYS"}, "")
	assert.ErrorIs(t, err, ErrInvalidDirection)

	bad := int64(-5)
	_, err = s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 10, Direction: DirectionFromClient, OverrideBalance: &bad}, "")
	assert.ErrorIs(t, err, ErrInvalidOverrideBalance)
}

func TestRecordPaymentPlainAdjustmentDirections(t *testing.T) {
	s := setupService(t)
	// Flat account: payments are plain balance adjustments. The account
	// is re-flattened between legs so no payment opens a cycle.
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100, Direction: DirectionFromClient}, "")
	require.NoError(t, err)
	assert.False(t, result.IsSettlement)
	assert.Equal(t, int64(100), result.SignedAmount)
	assert.Equal(t, int64(1100), result.ExchangeBalanceAfter)

	_, err = s.UpdateBalance(testUserID, accountID, 1000, "")
	require.NoError(t, err)

	result, err = s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 1000, Direction: DirectionToClient}, "")
	require.NoError(t, err)
	assert.False(t, result.IsSettlement)
	assert.Equal(t, int64(-1000), result.SignedAmount)
	assert.Equal(t, int64(0), result.ExchangeBalanceAfter)

	_, err = s.UpdateBalance(testUserID, accountID, 1000, "")
	require.NoError(t, err)

	_, err = s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 1001, Direction: DirectionToClient}, "")
	assert.ErrorIs(t, err, ErrNegativeBalance)
}

func TestRecordPaymentNonZeroPnlOpensCycleOverPlainPath(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100, Direction: DirectionFromClient}, "")
	require.NoError(t, err)

	// PnL is now +100, so the next payment opens a cycle (share 50) and
	// a plain-sized withdrawal exceeds the frozen share.
	_, err = s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 1100, Direction: DirectionToClient}, "")
	assert.ErrorIs(t, err, ErrOverpayment)
}

func TestRecordPaymentSettlementIgnoresDirection(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 50, 50)

	// A settlement payment derives its sign from the locked PnL; a
	// direction supplied by the caller has no effect.
	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100, Direction: DirectionToClient}, "")
	require.NoError(t, err)

	assert.True(t, result.IsSettlement)
	assert.Equal(t, int64(-100), result.SignedAmount)
	assert.Equal(t, int64(1000), result.ExchangeBalanceAfter)
}

func TestRecordPaymentFlatPnlMidCycleRejected(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 800, 50, 50)

	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50}, "")
	require.NoError(t, err)

	// The partial payment left funding at 900; level the balance so the
	// account is flat while the cycle is still open.
	_, err = s.UpdateBalance(testUserID, accountID, 900, "")
	require.NoError(t, err)

	before := getTestAccount(t, s, accountID)
	require.Equal(t, int64(100), before.InitialFinalShare)

	_, err = s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 10}, "")
	assert.ErrorIs(t, err, ErrFlatPnl)

	// The rejection persisted nothing.
	after := getTestAccount(t, s, accountID)
	assert.Equal(t, before.Funding, after.Funding)
	assert.Equal(t, before.ExchangeBalance, after.ExchangeBalance)
	assert.Equal(t, before.TotalSettled, after.TotalSettled)

	transactions, err := s.db.ListTransactions(testUserID, accountID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}

func TestRecordPaymentZeroMaskedCapitalRejected(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 800, 50, 50)

	// Legacy cycles predate the locked PnL column: a share without a
	// stored magnitude resolves every payment to zero masked capital.
	require.NoError(t, s.db.db.Model(&types.LedgerAccount{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{"initial_final_share": 100, "locked_pnl": 0}).Error)

	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 10}, "")
	assert.ErrorIs(t, err, ErrZeroMaskedCapital)

	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(1000), account.Funding)
	assert.Equal(t, int64(0), account.TotalSettled)
}

func TestRecordPaymentZeroSharePercentageNeverOpensCycle(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 0, 0)

	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50, Direction: DirectionFromClient}, "")
	require.NoError(t, err)

	assert.False(t, result.IsSettlement)
	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(0), account.InitialFinalShare)
}

func TestRecordPaymentIdempotentReplay(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 800, 50, 50)

	key := uuid.NewString()
	first, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50}, key)
	require.NoError(t, err)

	replay, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50}, key)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, replay.TransactionID)

	// The replay must not have applied the payment a second time.
	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(900), account.Funding)
	assert.Equal(t, int64(50), account.TotalSettled)

	transactions, err := s.db.ListTransactions(testUserID, accountID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
}

func TestReplayedPlainAdjustmentIsNotSettlement(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	key := uuid.NewString()
	_, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100, Direction: DirectionFromClient}, key)
	require.NoError(t, err)

	replay, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100, Direction: DirectionFromClient}, key)
	require.NoError(t, err)

	// The account never had a cycle; the replay must not report one.
	assert.False(t, replay.IsSettlement)
	assert.False(t, replay.SettlementCompleted)
	assert.Equal(t, int64(100), replay.SignedAmount)
}

func TestReplayedSettlementPaymentReportsCompletion(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 50, 50)

	key := uuid.NewString()
	first, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100}, key)
	require.NoError(t, err)
	require.True(t, first.SettlementCompleted)

	replay, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 100}, key)
	require.NoError(t, err)

	assert.True(t, replay.IsSettlement)
	assert.True(t, replay.SettlementCompleted)
	assert.Equal(t, first.TransactionID, replay.TransactionID)
}

func TestExpiredIdempotencyKeyIsReapplied(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 800, 50, 50)

	key := uuid.NewString()
	require.NoError(t, s.db.db.Create(&IdempotencyRecord{
		IdempotencyKey: key,
		ResourceID:     "TXN_stale",
		ResourceType:   resourceTypePayment,
		ExpiresAt:      time.Now().Add(-time.Hour),
	}).Error)

	// The expired record does not shield the key: the payment applies
	// fresh and takes over the row.
	result, err := s.RecordPayment(testUserID, accountID, PaymentRequest{Amount: 50}, key)
	require.NoError(t, err)

	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(900), account.Funding)
	assert.Equal(t, int64(50), account.TotalSettled)

	record, err := s.db.GetIdempotencyRecord(key)
	require.NoError(t, err)
	assert.Equal(t, result.TransactionID, record.ResourceID)
	assert.True(t, record.ExpiresAt.After(time.Now()))
}

func TestTransactionSequenceNumbers(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	for i := 0; i < 3; i++ {
		_, err := s.AddFunding(testUserID, accountID, 100, "")
		require.NoError(t, err)
	}

	transactions, err := s.db.ListTransactions(testUserID, accountID, nil, nil)
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	// Newest first.
	assert.Equal(t, int64(3), transactions[0].SequenceNo)
	assert.Equal(t, int64(2), transactions[1].SequenceNo)
	assert.Equal(t, int64(1), transactions[2].SequenceNo)
}

func TestListTransactionsDateBounds(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	_, err := s.AddFunding(testUserID, accountID, 100, "")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	transactions, err := s.db.ListTransactions(testUserID, accountID, &past, &future)
	require.NoError(t, err)
	assert.Len(t, transactions, 1)

	transactions, err = s.db.ListTransactions(testUserID, accountID, &future, nil)
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

func TestCrossTenantAccessIsNotFound(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	_, err := s.db.GetAccount("USR_other", accountID)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = s.AddFunding("USR_other", accountID, 100, "")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = s.RecordPayment("USR_other", accountID, PaymentRequest{Amount: 10, Direction: DirectionFromClient}, "")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestUpdateShareSettings(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	err := s.UpdateShareSettings(testUserID, accountID, ShareSettings{ProfitSharePercentage: 30, LossSharePercentage: 70})
	require.NoError(t, err)

	account := getTestAccount(t, s, accountID)
	assert.Equal(t, int64(30), account.ProfitSharePercentage)
	assert.Equal(t, int64(70), account.LossSharePercentage)

	err = s.UpdateShareSettings(testUserID, accountID, ShareSettings{ProfitSharePercentage: 101})
	assert.ErrorIs(t, err, ErrInvalidPercentage)
}

func TestEditTransaction(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1000, 50, 50)

	txn, err := s.AddFunding(testUserID, accountID, 100, "original")
	require.NoError(t, err)

	newAmount := int64(150)
	newNotes := "corrected"
	edited, err := s.db.EditTransaction(testUserID, txn.TransactionID, &newAmount, &newNotes)
	require.NoError(t, err)

	assert.Equal(t, int64(150), edited.Amount)
	assert.Equal(t, "corrected", edited.Notes)
	// Snapshots and sequencing stay untouched.
	assert.Equal(t, txn.FundingAfter, edited.FundingAfter)
	assert.Equal(t, txn.SequenceNo, edited.SequenceNo)

	_, err = s.db.EditTransaction("USR_other", txn.TransactionID, &newAmount, nil)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestGetAccountViewDerivedFigures(t *testing.T) {
	s := setupService(t)
	accountID := createTestAccount(t, s, 1000, 1200, 50, 50)

	view, err := s.GetAccountView(testUserID, accountID)
	require.NoError(t, err)

	assert.Equal(t, int64(200), view.Pnl)
	assert.Equal(t, int64(100), view.MyShare)
	assert.Equal(t, int64(0), view.Settlement.InitialFinalShare)
}
