package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is a broker account. Every client and ledger account hangs off
// exactly one user; cross-user access is treated as not-found.
type User struct {
	gorm.Model   `json:"-"`
	UserID       string    `gorm:"uniqueIndex" json:"user_id"`
	Username     string    `gorm:"uniqueIndex" json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Client struct {
	gorm.Model      `json:"-"`
	ClientID        string    `gorm:"uniqueIndex" json:"client_id"`
	UserID          string    `gorm:"index" json:"-"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	ReferredBy      string    `json:"referred_by"`
	IsCompanyClient bool      `json:"is_company_client"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Exchange is a trading venue. Exchanges are shared across users.
type Exchange struct {
	gorm.Model  `json:"-"`
	ExchangeID  string    `gorm:"uniqueIndex" json:"exchange_id"`
	Name        string    `json:"name"`
	VersionName string    `json:"version_name"`
	Code        string    `json:"code"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LedgerAccount is one client-exchange pairing: the client's capital on
// that exchange plus the share terms and any in-flight settlement cycle.
//
// Funding and ExchangeBalance are whole currency units and never go
// negative. InitialFinalShare, LockedPnl and TotalSettled describe the
// active settlement cycle: the share amount frozen when the cycle opened,
// the signed PnL it was derived from, and the amount paid off so far.
// All three are zero when no cycle is active.
type LedgerAccount struct {
	gorm.Model            `json:"-"`
	AccountID             string    `gorm:"uniqueIndex" json:"account_id"`
	ClientID              string    `gorm:"index" json:"client_id"`
	ExchangeID            string    `gorm:"index" json:"exchange_id"`
	Funding               int64     `json:"funding"`
	ExchangeBalance       int64     `json:"exchange_balance"`
	ProfitSharePercentage int64     `json:"profit_share_percentage"`
	LossSharePercentage   int64     `json:"loss_share_percentage"`
	MyPercentage          int64     `json:"my_percentage"` // legacy display-only total
	InitialFinalShare     int64     `json:"initial_final_share"`
	LockedPnl             int64     `json:"locked_pnl"`
	TotalSettled          int64     `json:"total_settled"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Transaction types.
const (
	TxnFunding       = "FUNDING"
	TxnFundingAuto   = "FUNDING_AUTO"
	TxnUpdateBalance = "UPDATE_BALANCE"
	TxnRecordPayment = "RECORD_PAYMENT"
	// TxnSettlementShare exists in historical ledgers and is still
	// classified by the reports; new settlement payments record as
	// TxnRecordPayment.
	TxnSettlementShare = "SETTLEMENT_SHARE"
	TxnTrade           = "TRADE"
)

// Transaction is the append-only audit record for every balance-affecting
// event. Amounts are signed per the payment contract: broker outflow is
// negative, broker inflow positive. Rows are never recomputed; amount and
// notes may be corrected through the administrative edit endpoint only.
type Transaction struct {
	gorm.Model            `json:"-"`
	TransactionID         string    `gorm:"uniqueIndex" json:"transaction_id"`
	AccountID             string    `gorm:"index" json:"account_id"`
	Date                  time.Time `json:"date"`
	Type                  string    `json:"type"`
	Amount                int64     `json:"amount"`
	FundingBefore         int64     `json:"funding_before"`
	FundingAfter          int64     `json:"funding_after"`
	ExchangeBalanceBefore int64     `json:"exchange_balance_before"`
	ExchangeBalanceAfter  int64     `json:"exchange_balance_after"`
	SequenceNo            int64     `json:"sequence_no"`
	Notes                 string    `json:"notes"`
}

// Settlement records one real-world payment event against an account,
// independent of how it is categorized in the transaction ledger.
type Settlement struct {
	gorm.Model   `json:"-"`
	SettlementID string    `gorm:"uniqueIndex" json:"settlement_id"`
	AccountID    string    `gorm:"index" json:"account_id"`
	PaidAmount   int64     `json:"paid_amount"`
	PaidAt       time.Time `json:"paid_at"`
	Notes        string    `json:"notes"`
}

// ReportConfig splits the broker's share into own vs friend/company
// portions for reporting. The two percentages must sum to the account's
// total share percentage within a small tolerance or the config is
// ignored.
type ReportConfig struct {
	gorm.Model       `json:"-"`
	AccountID        string          `gorm:"uniqueIndex" json:"account_id"`
	MyOwnPercentage  decimal.Decimal `gorm:"type:numeric" json:"my_own_percentage"`
	FriendPercentage decimal.Decimal `gorm:"type:numeric" json:"friend_percentage"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
