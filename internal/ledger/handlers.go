package ledger

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/transactionhub/ledger-api/pkg/response"
)

// GinHandlers contains HTTP handlers for ledger account endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for ledger endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// handleLedgerError maps engine errors onto the response envelope.
func handleLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound):
		response.NotFound(c, err.Error())
	case IsValidation(err):
		response.ValidationFailed(c, err.Error())
	case IsInvariant(err):
		response.InvariantViolation(c, err.Error())
	default:
		response.Handle(c, nil, err)
	}
}

func userID(c *gin.Context) string {
	return c.GetString("user_id")
}

type amountRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Notes  string `json:"notes"`
}

type balanceRequest struct {
	Balance *int64 `json:"balance" binding:"required"`
	Notes   string `json:"notes"`
}

// ListAccountsHandler handles GET requests for all of the user's accounts
func (h *GinHandlers) ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		views, err := h.service.ListAccountViews(userID(c))
		response.Handle(c, views, err)
	}
}

// GetAccountHandler handles GET requests for one account with derived
// PnL, share and settlement figures
func (h *GinHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.service.GetAccountView(userID(c), c.Param("account_id"))
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, view)
	}
}

// AddFundingHandler handles POST requests to credit client capital
func (h *GinHandlers) AddFundingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.AddFunding(userID(c), c.Param("account_id"), req.Amount, req.Notes)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, txn)
	}
}

// UpdateBalanceHandler handles POST requests to set the exchange balance
// after trading activity
func (h *GinHandlers) UpdateBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req balanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.UpdateBalance(userID(c), c.Param("account_id"), *req.Balance, req.Notes)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, txn)
	}
}

// RecordTradeHandler handles POST requests to record a trading result
func (h *GinHandlers) RecordTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req balanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.RecordTrade(userID(c), c.Param("account_id"), *req.Balance, req.Notes)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, txn)
	}
}

// RecordPaymentHandler handles POST requests to apply a payment.
// Requires an idempotency key so a retried request cannot double-apply.
func (h *GinHandlers) RecordPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req PaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.RecordPayment(userID(c), c.Param("account_id"), req, idempotencyKey)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, result)
	}
}

// GetSettlementHandler handles GET requests for the remaining settlement
// state of an account
func (h *GinHandlers) GetSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		remaining, err := h.service.GetRemainingSettlement(userID(c), c.Param("account_id"))
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, remaining)
	}
}

// UpdateSettingsHandler handles POST requests to change share terms
func (h *GinHandlers) UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var settings ShareSettings
		if err := c.ShouldBindJSON(&settings); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.UpdateShareSettings(userID(c), c.Param("account_id"), settings); err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, gin.H{"message": "account settings updated successfully"})
	}
}

// ListTransactionsHandler handles GET requests for the account ledger,
// newest first, optionally bounded by from/to (RFC 3339 or YYYY-MM-DD)
func (h *GinHandlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := parseTimeParam(c.Query("from"), false)
		if err != nil {
			response.BadRequest(c, "invalid from date")
			return
		}
		to, err := parseTimeParam(c.Query("to"), true)
		if err != nil {
			response.BadRequest(c, "invalid to date")
			return
		}

		transactions, err := h.service.db.ListTransactions(userID(c), c.Param("account_id"), from, to)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, transactions)
	}
}

func parseTimeParam(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

type editTransactionRequest struct {
	Amount *int64  `json:"amount"`
	Notes  *string `json:"notes"`
}

// EditTransactionHandler handles POST requests for the administrative
// amount/notes override on a ledger row
func (h *GinHandlers) EditTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req editTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.db.EditTransaction(userID(c), c.Param("transaction_id"), req.Amount, req.Notes)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		response.Success(c, txn)
	}
}
