package ledger

import (
	"time"

	"gorm.io/gorm"
)

// Payment directions for plain (non-settlement) payments.
const (
	DirectionFromClient = "FROM_CLIENT"
	DirectionToClient   = "TO_CLIENT"
)

// PaymentRequest is the normalized payment intent handed to the engine.
// The adapter layer is responsible for parsing whatever the caller sent
// into this shape before the engine sees it.
type PaymentRequest struct {
	Amount          int64  `json:"amount" binding:"required"`
	Direction       string `json:"direction"`
	Notes           string `json:"notes"`
	OverrideBalance *int64 `json:"override_balance"`
	AutoRefund      bool   `json:"auto_refund"`
}

// PaymentResult reports what a payment did to the account.
type PaymentResult struct {
	AccountID            string `json:"account_id"`
	TransactionID        string `json:"transaction_id"`
	SettlementID         string `json:"settlement_id,omitempty"`
	IsSettlement         bool   `json:"is_settlement"`
	SettlementCompleted  bool   `json:"settlement_completed"`
	RefundIssued         bool   `json:"refund_issued"`
	Remaining            int64  `json:"remaining"`
	SignedAmount         int64  `json:"signed_amount"`
	FundingAfter         int64  `json:"funding_after"`
	ExchangeBalanceAfter int64  `json:"exchange_balance_after"`
}

// AccountView is an account enriched with its derived figures for the
// read-side endpoints.
type AccountView struct {
	AccountID             string              `json:"account_id"`
	ClientID              string              `json:"client_id"`
	ExchangeID            string              `json:"exchange_id"`
	Funding               int64               `json:"funding"`
	ExchangeBalance       int64               `json:"exchange_balance"`
	ProfitSharePercentage int64               `json:"profit_share_percentage"`
	LossSharePercentage   int64               `json:"loss_share_percentage"`
	Pnl                   int64               `json:"pnl"`
	MyShare               int64               `json:"my_share"`
	Settlement            RemainingSettlement `json:"settlement"`
}

// ShareSettings updates the account's share terms.
type ShareSettings struct {
	ProfitSharePercentage int64 `json:"profit_share_percentage"`
	LossSharePercentage   int64 `json:"loss_share_percentage"`
}

// IdempotencyRecord maps an idempotency key to the payment transaction it
// produced, so a replayed request returns the original result instead of
// applying the payment twice.
type IdempotencyRecord struct {
	gorm.Model     `json:"-"`
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
