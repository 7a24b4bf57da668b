package exchanges

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/transactionhub/ledger-api/internal/types"
	"github.com/transactionhub/ledger-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrExchangeNotFound  = errors.New("exchange not found")
	ErrClientNotFound    = errors.New("client not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAlreadyLinked     = errors.New("client is already linked to this exchange")
	ErrInvalidPercentage = errors.New("share percentage must be between 0 and 100")
	ErrNegativeFunding   = errors.New("initial funding must not be negative")
)

// splitTolerance bounds how far the my-own/friend split may drift from
// the account's total share percentage before the config is ignored.
var splitTolerance = decimal.NewFromFloat(0.01)

// Service handles the exchange registry and client-exchange linking
type Service struct {
	db *Database
}

// NewService creates a new exchange service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateExchangeRequest is the exchange creation payload
type CreateExchangeRequest struct {
	Name        string `json:"name" binding:"required"`
	VersionName string `json:"version_name"`
	Code        string `json:"code"`
}

// CreateExchange registers a new trading venue, shared across users
func (s *Service) CreateExchange(req CreateExchangeRequest) (*types.Exchange, error) {
	exchange := &types.Exchange{
		ExchangeID:  "EXC_" + uuid.New().String(),
		Name:        req.Name,
		VersionName: req.VersionName,
		Code:        req.Code,
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.db.CreateExchange(exchange); err != nil {
		return nil, err
	}

	log.Info().
		Str("exchange_id", exchange.ExchangeID).
		Str("name", exchange.Name).
		Str("service", "exchanges").
		Msg("exchange created")
	return exchange, nil
}

// ListExchanges retrieves all registered exchanges
func (s *Service) ListExchanges() ([]types.Exchange, error) {
	return s.db.ListExchanges()
}

// DeleteExchange removes an exchange from the registry
func (s *Service) DeleteExchange(exchangeID string) error {
	return s.db.DeleteExchange(exchangeID)
}

// LinkAccountRequest links a client to an exchange. The optional my-own/
// friend split feeds reporting only.
type LinkAccountRequest struct {
	ClientID              string           `json:"client_id" binding:"required"`
	ExchangeID            string           `json:"exchange_id" binding:"required"`
	Funding               int64            `json:"funding"`
	ProfitSharePercentage int64            `json:"profit_share_percentage"`
	LossSharePercentage   int64            `json:"loss_share_percentage"`
	MyOwnPercentage       *decimal.Decimal `json:"my_own_percentage"`
	FriendPercentage      *decimal.Decimal `json:"friend_percentage"`
}

// LinkAccount creates the one ledger account for a (client, exchange)
// pair, seeds it with the initial funding on both sides of the ledger,
// and records the opening FUNDING transaction.
func (s *Service) LinkAccount(userID string, req LinkAccountRequest) (*types.LedgerAccount, error) {
	logger := log.With().
		Str("client_id", req.ClientID).
		Str("exchange_id", req.ExchangeID).
		Str("service", "exchanges").
		Logger()

	if req.ProfitSharePercentage < 0 || req.ProfitSharePercentage > 100 ||
		req.LossSharePercentage < 0 || req.LossSharePercentage > 100 {
		return nil, ErrInvalidPercentage
	}
	if req.Funding < 0 {
		return nil, ErrNegativeFunding
	}

	client, err := s.db.getClientForUser(userID, req.ClientID)
	if err != nil {
		return nil, err
	}
	exchange, err := s.db.GetExchange(req.ExchangeID)
	if err != nil {
		return nil, err
	}

	exists, err := s.db.accountExists(client.ClientID, exchange.ExchangeID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyLinked
	}

	account := &types.LedgerAccount{
		AccountID:             "ACC_" + uuid.New().String(),
		ClientID:              client.ClientID,
		ExchangeID:            exchange.ExchangeID,
		Funding:               req.Funding,
		ExchangeBalance:       req.Funding,
		ProfitSharePercentage: req.ProfitSharePercentage,
		LossSharePercentage:   req.LossSharePercentage,
		MyPercentage:          req.ProfitSharePercentage,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}

	txn := &types.Transaction{
		TransactionID:        "TXN_" + uuid.New().String(),
		AccountID:            account.AccountID,
		Date:                 time.Now(),
		Type:                 types.TxnFunding,
		Amount:               req.Funding,
		FundingAfter:         req.Funding,
		ExchangeBalanceAfter: req.Funding,
		SequenceNo:           1,
		Notes:                "Initial account setup",
	}

	config := s.buildReportConfig(account, req, logger)

	if err := s.db.createLinkedAccount(account, txn, config); err != nil {
		logger.Error().Err(err).Msg("failed to link account")
		return nil, err
	}

	logger.Info().
		Str("account_id", account.AccountID).
		Int64("funding", req.Funding).
		Msg("client linked to exchange")
	return account, nil
}

// buildReportConfig validates the optional my-own/friend split. A split
// whose sum drifts from the account's total share beyond the tolerance is
// dropped rather than failing the link call; the warning keeps the drop
// visible.
func (s *Service) buildReportConfig(account *types.LedgerAccount, req LinkAccountRequest, logger zerolog.Logger) *types.ReportConfig {
	if req.MyOwnPercentage == nil || req.FriendPercentage == nil {
		return nil
	}

	total := decimal.NewFromInt(account.ProfitSharePercentage)
	sum := req.MyOwnPercentage.Add(*req.FriendPercentage)
	if sum.Sub(total).Abs().GreaterThan(splitTolerance) {
		logger.Warn().
			Str("sum", sum.String()).
			Str("total", total.String()).
			Msg("report config split does not match total share, dropping")
		return nil
	}

	return &types.ReportConfig{
		AccountID:        account.AccountID,
		MyOwnPercentage:  *req.MyOwnPercentage,
		FriendPercentage: *req.FriendPercentage,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

// GetReportConfig returns the account's split config plus the total share
// it must sum to.
func (s *Service) GetReportConfig(userID, accountID string) (gin.H, error) {
	account, err := s.db.getAccountForUser(userID, accountID)
	if err != nil {
		return nil, err
	}

	config, err := s.db.getReportConfig(account.AccountID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = &types.ReportConfig{AccountID: account.AccountID}
	}

	return gin.H{
		"my_own_percentage":   config.MyOwnPercentage,
		"friend_percentage":   config.FriendPercentage,
		"my_total_percentage": account.ProfitSharePercentage,
	}, nil
}

// UpdateReportConfigRequest updates the split percentages.
type UpdateReportConfigRequest struct {
	MyOwnPercentage  decimal.Decimal `json:"my_own_percentage"`
	FriendPercentage decimal.Decimal `json:"friend_percentage"`
}

// UpdateReportConfig creates or updates the account's split config
func (s *Service) UpdateReportConfig(userID, accountID string, req UpdateReportConfigRequest) error {
	account, err := s.db.getAccountForUser(userID, accountID)
	if err != nil {
		return err
	}

	config, err := s.db.getReportConfig(account.AccountID)
	if err != nil {
		return err
	}
	if config == nil {
		config = &types.ReportConfig{
			AccountID: account.AccountID,
			CreatedAt: time.Now(),
		}
	}
	config.MyOwnPercentage = req.MyOwnPercentage
	config.FriendPercentage = req.FriendPercentage
	config.UpdatedAt = time.Now()

	return s.db.saveReportConfig(config)
}

// GinHandlers contains HTTP handlers for exchange and linking endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for exchange endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func handleLinkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrExchangeNotFound), errors.Is(err, ErrAccountNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyLinked):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInvalidPercentage), errors.Is(err, ErrNegativeFunding):
		response.ValidationFailed(c, err.Error())
	default:
		response.Handle(c, nil, err)
	}
}

// CreateExchangeHandler handles POST requests to register exchanges
func (h *GinHandlers) CreateExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateExchangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exchange, err := h.service.CreateExchange(req)
		response.Handle(c, exchange, err)
	}
}

// ListExchangesHandler handles GET requests for the exchange registry
func (h *GinHandlers) ListExchangesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exchanges, err := h.service.ListExchanges()
		response.Handle(c, exchanges, err)
	}
}

// DeleteExchangeHandler handles DELETE requests for an exchange
func (h *GinHandlers) DeleteExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.DeleteExchange(c.Param("exchange_id"))
		if errors.Is(err, ErrExchangeNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "exchange deleted successfully"})
	}
}

// LinkAccountHandler handles POST requests to link a client to an exchange
func (h *GinHandlers) LinkAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LinkAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		account, err := h.service.LinkAccount(c.GetString("user_id"), req)
		if err != nil {
			handleLinkError(c, err)
			return
		}
		response.Success(c, account)
	}
}

// GetReportConfigHandler handles GET requests for the account's split config
func (h *GinHandlers) GetReportConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		config, err := h.service.GetReportConfig(c.GetString("user_id"), c.Param("account_id"))
		if err != nil {
			handleLinkError(c, err)
			return
		}
		response.Success(c, config)
	}
}

// UpdateReportConfigHandler handles POST requests for the account's split config
func (h *GinHandlers) UpdateReportConfigHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateReportConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.UpdateReportConfig(c.GetString("user_id"), c.Param("account_id"), req); err != nil {
			handleLinkError(c, err)
			return
		}
		response.Success(c, gin.H{"message": "report config updated successfully"})
	}
}
