package ledger

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transactionhub/ledger-api/internal/types"
	"gorm.io/gorm"
)

// RecordPayment validates and applies one payment against the account.
//
// The first payment after PnL swings non-zero freezes the share amount
// and opens a settlement cycle; payments inside a cycle reduce the frozen
// share and move the proportional masked capital (funding in the loss
// case, exchange balance in the profit case). A payment on an account
// with no cycle is a plain balance adjustment steered by Direction; the
// plain path is the only one that consults Direction, settlement payments
// derive their sign from the locked PnL. The whole sequence (snapshot,
// lock, mutation, settlement row, audit row, optional auto-refund)
// commits as one atomic unit or not at all.
func (s *Service) RecordPayment(userID, accountID string, req PaymentRequest, idempotencyKey string) (*PaymentResult, error) {
	logger := log.With().
		Str("account_id", accountID).
		Int64("amount", req.Amount).
		Str("service", "ledger").
		Logger()

	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if req.OverrideBalance != nil && *req.OverrideBalance < 0 {
		return nil, ErrInvalidOverrideBalance
	}

	// Replay of a key we have already honored returns the recorded
	// outcome without touching the account again.
	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err == nil && record.ResourceID != "" && record.ExpiresAt.After(time.Now()) {
			logger.Info().Str("transaction_id", record.ResourceID).Msg("replaying idempotent payment")
			return s.replayPayment(userID, accountID, record)
		}
	}

	var result *PaymentResult
	err := s.db.WithAccount(userID, accountID, func(tx *gorm.DB, account *types.LedgerAccount) error {
		r, err := applyPayment(tx, account, req)
		if err != nil {
			return err
		}
		if idempotencyKey != "" {
			resourceType := resourceTypePayment
			if r.IsSettlement {
				resourceType = resourceTypeSettlementPayment
			}
			if err := createIdempotencyRecord(tx, idempotencyKey, r.TransactionID, resourceType); err != nil {
				return err
			}
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("payment rejected")
		return nil, err
	}

	logger.Info().
		Bool("is_settlement", result.IsSettlement).
		Bool("settlement_completed", result.SettlementCompleted).
		Bool("refund_issued", result.RefundIssued).
		Int64("remaining", result.Remaining).
		Int64("signed_amount", result.SignedAmount).
		Msg("payment recorded")

	return result, nil
}

func applyPayment(tx *gorm.DB, account *types.LedgerAccount, req PaymentRequest) (*PaymentResult, error) {
	fundingBefore := account.Funding
	balanceBefore := account.ExchangeBalance
	pnlBefore := ClientPnl(account)

	LockInitialShareIfNeeded(account)
	isSettlement := account.InitialFinalShare > 0

	var signedAmount, masked int64

	if isSettlement {
		remaining := Remaining(account).Remaining
		if req.Amount > remaining {
			return nil, ErrOverpayment
		}
		if pnlBefore == 0 {
			return nil, ErrFlatPnl
		}
		masked = MaskedCapital(account, req.Amount)
		if masked == 0 {
			return nil, ErrZeroMaskedCapital
		}

		if pnlBefore > 0 {
			// Profit: the broker pays the client. Funding never moves
			// in the profit case.
			signedAmount = -req.Amount
			if account.ExchangeBalance-masked < 0 {
				return nil, ErrNegativeBalance
			}
			account.ExchangeBalance -= masked
		} else {
			signedAmount = req.Amount
			if account.Funding-masked < 0 {
				return nil, ErrNegativeFunding
			}
			account.Funding -= masked
		}
		account.TotalSettled += req.Amount
	} else {
		switch req.Direction {
		case DirectionFromClient:
			signedAmount = req.Amount
			account.ExchangeBalance += req.Amount
		case DirectionToClient:
			signedAmount = -req.Amount
			if account.ExchangeBalance-req.Amount < 0 {
				return nil, ErrNegativeBalance
			}
			account.ExchangeBalance -= req.Amount
		default:
			return nil, ErrInvalidDirection
		}
	}

	if req.OverrideBalance != nil {
		account.ExchangeBalance = *req.OverrideBalance
	}

	var remaining int64
	settledNow := false
	if isSettlement {
		remaining = Remaining(account).Remaining
		settledNow = remaining == 0
	}

	if err := tx.Save(account).Error; err != nil {
		return nil, err
	}

	result := &PaymentResult{
		AccountID:           account.AccountID,
		IsSettlement:        isSettlement,
		SettlementCompleted: settledNow,
		Remaining:           remaining,
		SignedAmount:        signedAmount,
	}

	if isSettlement {
		settlement, err := createSettlement(tx, account.AccountID, req.Amount, req.Notes)
		if err != nil {
			return nil, err
		}
		result.SettlementID = settlement.SettlementID
	}

	txn, err := appendTransaction(tx, account, types.TxnRecordPayment, signedAmount, fundingBefore, balanceBefore, req.Notes)
	if err != nil {
		return nil, err
	}
	result.TransactionID = txn.TransactionID

	if settledNow {
		if err := closeCycle(tx, account, req.AutoRefund, result); err != nil {
			return nil, err
		}
	}

	result.FundingAfter = account.Funding
	result.ExchangeBalanceAfter = account.ExchangeBalance
	return result, nil
}

// closeCycle finishes a fully-paid settlement cycle. For a loss cycle
// with auto-refund requested, the capital consumed by the cycle is
// re-credited to both funding and exchange balance, returning funding to
// its pre-cycle level. That amount is the locked PnL magnitude, which
// equals the cumulative masked capital of a fully-paid cycle.
func closeCycle(tx *gorm.DB, account *types.LedgerAccount, autoRefund bool, result *PaymentResult) error {
	lockedMagnitude := account.LockedPnl
	lossCycle := lockedMagnitude < 0
	if lossCycle {
		lockedMagnitude = -lockedMagnitude
	}

	fundingBefore := account.Funding
	balanceBefore := account.ExchangeBalance

	if autoRefund && lossCycle {
		account.Funding += lockedMagnitude
		account.ExchangeBalance += lockedMagnitude
		result.RefundIssued = true
	}

	resetCycle(account)
	if err := tx.Save(account).Error; err != nil {
		return err
	}

	if result.RefundIssued {
		if _, err := appendTransaction(tx, account, types.TxnFundingAuto, lockedMagnitude, fundingBefore, balanceBefore, "Auto re-fund on settlement close"); err != nil {
			return err
		}
	}
	return nil
}

// replayPayment rebuilds a payment result from the audit row an earlier
// request with the same idempotency key produced. Whether the original
// payment was a settlement comes from the record's resource type; a plain
// adjustment replayed on a cycle-free account must not report a completed
// settlement.
func (s *Service) replayPayment(userID, accountID string, record *IdempotencyRecord) (*PaymentResult, error) {
	account, err := s.db.GetAccount(userID, accountID)
	if err != nil {
		return nil, err
	}
	txn, err := s.db.getTransactionByID(record.ResourceID)
	if err != nil {
		return nil, err
	}
	if txn.AccountID != account.AccountID {
		return nil, ErrTransactionNotFound
	}

	wasSettlement := record.ResourceType == resourceTypeSettlementPayment
	remaining := Remaining(account)
	return &PaymentResult{
		AccountID:            account.AccountID,
		TransactionID:        txn.TransactionID,
		IsSettlement:         wasSettlement,
		SettlementCompleted:  wasSettlement && account.InitialFinalShare == 0,
		Remaining:            remaining.Remaining,
		SignedAmount:         txn.Amount,
		FundingAfter:         txn.FundingAfter,
		ExchangeBalanceAfter: txn.ExchangeBalanceAfter,
	}, nil
}
