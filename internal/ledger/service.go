package ledger

import (
	"github.com/rs/zerolog/log"
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

// Service owns every balance-affecting operation on ledger accounts.
type Service struct {
	db *Database
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetDB exposes the database wrapper to the cycle sweeper.
func (s *Service) GetDB() *Database {
	return s.db
}

// AddFunding credits fresh client capital: funding and exchange balance
// both rise by the amount.
func (s *Service) AddFunding(userID, accountID string, amount int64, notes string) (*types.Transaction, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveAmount
	}

	var txn *types.Transaction
	err := s.db.WithAccount(userID, accountID, func(tx *gorm.DB, account *types.LedgerAccount) error {
		fundingBefore := account.Funding
		balanceBefore := account.ExchangeBalance

		account.Funding += amount
		account.ExchangeBalance += amount
		if err := tx.Save(account).Error; err != nil {
			return err
		}

		created, err := appendTransaction(tx, account, types.TxnFunding, amount, fundingBefore, balanceBefore, notes)
		if err != nil {
			return err
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", accountID).
		Int64("amount", amount).
		Str("service", "ledger").
		Msg("funding added")
	return txn, nil
}

// UpdateBalance sets the exchange balance directly. This is how PnL
// actually changes between settlement cycles; an open cycle's frozen
// share is unaffected.
func (s *Service) UpdateBalance(userID, accountID string, newBalance int64, notes string) (*types.Transaction, error) {
	return s.setBalance(userID, accountID, newBalance, notes, types.TxnUpdateBalance)
}

// RecordTrade is UpdateBalance categorized as trading activity, so the
// daily performance report can attribute the balance move to trading.
func (s *Service) RecordTrade(userID, accountID string, newBalance int64, notes string) (*types.Transaction, error) {
	return s.setBalance(userID, accountID, newBalance, notes, types.TxnTrade)
}

func (s *Service) setBalance(userID, accountID string, newBalance int64, notes, txnType string) (*types.Transaction, error) {
	if newBalance < 0 {
		return nil, ErrNegativeBalance
	}

	var txn *types.Transaction
	err := s.db.WithAccount(userID, accountID, func(tx *gorm.DB, account *types.LedgerAccount) error {
		fundingBefore := account.Funding
		balanceBefore := account.ExchangeBalance

		account.ExchangeBalance = newBalance
		if err := tx.Save(account).Error; err != nil {
			return err
		}

		// UPDATE_BALANCE historically records the new balance as its
		// amount; TRADE records the signed move.
		amount := newBalance
		if txnType == types.TxnTrade {
			amount = newBalance - balanceBefore
		}

		created, err := appendTransaction(tx, account, txnType, amount, fundingBefore, balanceBefore, notes)
		if err != nil {
			return err
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// UpdateShareSettings changes the account's profit/loss share terms. An
// open cycle keeps its frozen share; new terms apply from the next cycle.
func (s *Service) UpdateShareSettings(userID, accountID string, settings ShareSettings) error {
	if settings.ProfitSharePercentage < 0 || settings.ProfitSharePercentage > 100 ||
		settings.LossSharePercentage < 0 || settings.LossSharePercentage > 100 {
		return ErrInvalidPercentage
	}

	return s.db.WithAccount(userID, accountID, func(tx *gorm.DB, account *types.LedgerAccount) error {
		account.ProfitSharePercentage = settings.ProfitSharePercentage
		account.LossSharePercentage = settings.LossSharePercentage
		return tx.Save(account).Error
	})
}

// GetAccountView returns the account with derived PnL, share and
// settlement figures.
func (s *Service) GetAccountView(userID, accountID string) (*AccountView, error) {
	account, err := s.db.GetAccount(userID, accountID)
	if err != nil {
		return nil, err
	}
	view := newAccountView(account)
	return &view, nil
}

// ListAccountViews returns all of the user's accounts with derived
// figures.
func (s *Service) ListAccountViews(userID string) ([]AccountView, error) {
	accounts, err := s.db.ListAccounts(userID)
	if err != nil {
		return nil, err
	}

	views := make([]AccountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, newAccountView(&accounts[i]))
	}
	return views, nil
}

func newAccountView(account *types.LedgerAccount) AccountView {
	return AccountView{
		AccountID:             account.AccountID,
		ClientID:              account.ClientID,
		ExchangeID:            account.ExchangeID,
		Funding:               account.Funding,
		ExchangeBalance:       account.ExchangeBalance,
		ProfitSharePercentage: account.ProfitSharePercentage,
		LossSharePercentage:   account.LossSharePercentage,
		Pnl:                   ClientPnl(account),
		MyShare:               MyShare(account),
		Settlement:            Remaining(account),
	}
}

// GetRemainingSettlement reports the account's active cycle state.
func (s *Service) GetRemainingSettlement(userID, accountID string) (*RemainingSettlement, error) {
	account, err := s.db.GetAccount(userID, accountID)
	if err != nil {
		return nil, err
	}
	r := Remaining(account)
	return &r, nil
}
