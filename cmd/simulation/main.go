package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/transactionhub/ledger-api/internal/auth"
	"github.com/transactionhub/ledger-api/internal/clients"
	"github.com/transactionhub/ledger-api/internal/database"
	"github.com/transactionhub/ledger-api/internal/exchanges"
	"github.com/transactionhub/ledger-api/internal/ledger"
	"github.com/transactionhub/ledger-api/internal/reports"
	"github.com/transactionhub/ledger-api/pkg/middleware"
)

const (
	serverAddress = "http://localhost:8080"
	jwtSecret     = "simulation-secret"
	numClients    = 3
	tradesPerAcct = 5
)

var exchangeNames = []string{"Alpha Markets", "Beta Exchange", "Gamma Trading"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// simulationClient handles HTTP communication with the ledger API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// newSimulationClient registers a broker user and obtains a JWT token
func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	creds := map[string]string{
		"username": fmt.Sprintf("sim-broker-%d", time.Now().Unix()),
		"password": "simulation-password",
	}

	if _, err := sc.post("/api/v1/auth/signup", creds, false); err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	data, err := sc.post("/api/v1/auth/token", creds, false)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	var token struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	sc.authToken = token.Token

	return sc, nil
}

// post sends a JSON POST and returns the envelope's data payload
func (sc *simulationClient) post(path string, payload interface{}, authed bool) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", sc.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	if authed {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	return sc.do(req)
}

// get sends an authenticated GET and returns the envelope's data payload
func (sc *simulationClient) get(path string) (json.RawMessage, error) {
	req, err := http.NewRequest("GET", sc.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	return sc.do(req)
}

func (sc *simulationClient) do(req *http.Request) (json.RawMessage, error) {
	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Str("path", req.URL.Path).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%s %s failed with status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(respBody))
	}

	var result envelope
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return result.Data, nil
}

func (sc *simulationClient) createClient(name string) (string, error) {
	data, err := sc.post("/api/v1/clients", map[string]interface{}{"name": name}, true)
	if err != nil {
		return "", err
	}
	var client struct {
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(data, &client); err != nil {
		return "", err
	}
	return client.ClientID, nil
}

func (sc *simulationClient) createExchange(name string) (string, error) {
	data, err := sc.post("/api/v1/exchanges", map[string]interface{}{"name": name}, true)
	if err != nil {
		return "", err
	}
	var exchange struct {
		ExchangeID string `json:"exchange_id"`
	}
	if err := json.Unmarshal(data, &exchange); err != nil {
		return "", err
	}
	return exchange.ExchangeID, nil
}

func (sc *simulationClient) linkAccount(clientID, exchangeID string, funding int64) (string, error) {
	data, err := sc.post("/api/v1/accounts/link", map[string]interface{}{
		"client_id":               clientID,
		"exchange_id":             exchangeID,
		"funding":                 funding,
		"profit_share_percentage": 50,
		"loss_share_percentage":   50,
	}, true)
	if err != nil {
		return "", err
	}
	var account struct {
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(data, &account); err != nil {
		return "", err
	}
	return account.AccountID, nil
}

func (sc *simulationClient) recordTrade(accountID string, balance int64) error {
	_, err := sc.post(fmt.Sprintf("/api/v1/accounts/%s/trade", accountID), map[string]interface{}{
		"balance": balance,
		"notes":   "simulated trading session",
	}, true)
	return err
}

type settlementState struct {
	InitialFinalShare int64 `json:"initial_final_share"`
	TotalSettled      int64 `json:"total_settled"`
	Remaining         int64 `json:"remaining"`
}

func (sc *simulationClient) getSettlement(accountID string) (*settlementState, error) {
	data, err := sc.get(fmt.Sprintf("/api/v1/accounts/%s/settlement", accountID))
	if err != nil {
		return nil, err
	}
	var state settlementState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

type paymentResult struct {
	IsSettlement        bool  `json:"is_settlement"`
	SettlementCompleted bool  `json:"settlement_completed"`
	RefundIssued        bool  `json:"refund_issued"`
	Remaining           int64 `json:"remaining"`
	SignedAmount        int64 `json:"signed_amount"`
}

func (sc *simulationClient) recordPayment(accountID string, amount int64, direction string) (*paymentResult, error) {
	data, err := sc.post(fmt.Sprintf("/api/v1/accounts/%s/payment", accountID), map[string]interface{}{
		"amount":    amount,
		"direction": direction,
		"notes":     "simulated settlement payment",
	}, true)
	if err != nil {
		return nil, err
	}
	var result paymentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type accountView struct {
	AccountID       string `json:"account_id"`
	Funding         int64  `json:"funding"`
	ExchangeBalance int64  `json:"exchange_balance"`
	Pnl             int64  `json:"pnl"`
	MyShare         int64  `json:"my_share"`
}

func (sc *simulationClient) getAccount(accountID string) (*accountView, error) {
	data, err := sc.get("/api/v1/accounts/" + accountID)
	if err != nil {
		return nil, err
	}
	var view accountView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// main runs the settlement lifecycle simulation
// It starts a local API server, then drives several client accounts
// through funding, trading and staged settlement
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	exchangeID, err := simClient.createExchange(exchangeNames[rand.Intn(len(exchangeNames))])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exchange")
	}

	stats := struct {
		Accounts        int
		Trades          int
		Payments        int
		CyclesCompleted int
		RefundsIssued   int
		Failures        int
		StartTime       time.Time
	}{StartTime: time.Now()}

	var accountIDs []string
	for i := 0; i < numClients; i++ {
		clientID, err := simClient.createClient(fmt.Sprintf("Simulated Client %d", i+1))
		if err != nil {
			log.Error().Err(err).Msg("Failed to create client")
			stats.Failures++
			continue
		}

		funding := int64(rand.Intn(9000) + 1000)
		accountID, err := simClient.linkAccount(clientID, exchangeID, funding)
		if err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("Failed to link account")
			stats.Failures++
			continue
		}
		accountIDs = append(accountIDs, accountID)
		stats.Accounts++

		log.Info().
			Str("client_id", clientID).
			Str("account_id", accountID).
			Int64("funding", funding).
			Msg("Account linked")
	}

	// Simulate trading sessions: each one moves the exchange balance
	for _, accountID := range accountIDs {
		view, err := simClient.getAccount(accountID)
		if err != nil {
			log.Error().Err(err).Str("account_id", accountID).Msg("Failed to fetch account")
			stats.Failures++
			continue
		}

		balance := view.ExchangeBalance
		for t := 0; t < tradesPerAcct; t++ {
			// Drift the balance up or down by up to 20%
			delta := int64(rand.Intn(int(balance/5)+1)) - balance/10
			balance += delta
			if balance < 0 {
				balance = 0
			}

			if err := simClient.recordTrade(accountID, balance); err != nil {
				log.Error().Err(err).Str("account_id", accountID).Msg("Failed to record trade")
				stats.Failures++
				continue
			}
			stats.Trades++
		}
	}

	// Settle each account in stages until the cycle closes
	for _, accountID := range accountIDs {
		view, err := simClient.getAccount(accountID)
		if err != nil {
			stats.Failures++
			continue
		}
		if view.Pnl == 0 {
			log.Info().Str("account_id", accountID).Msg("Account is flat, nothing to settle")
			continue
		}

		direction := "TO_CLIENT"
		if view.Pnl < 0 {
			direction = "FROM_CLIENT"
		}

		log.Info().
			Str("account_id", accountID).
			Int64("pnl", view.Pnl).
			Int64("my_share", view.MyShare).
			Str("direction", direction).
			Msg("Starting staged settlement")

		// Pay roughly half, then the remainder
		first := view.MyShare / 2
		if first > 0 {
			result, err := simClient.recordPayment(accountID, first, direction)
			if err != nil {
				log.Error().Err(err).Str("account_id", accountID).Msg("Failed to record partial payment")
				stats.Failures++
				continue
			}
			stats.Payments++
			log.Info().
				Str("account_id", accountID).
				Int64("paid", first).
				Int64("remaining", result.Remaining).
				Msg("Partial settlement recorded")
		}

		state, err := simClient.getSettlement(accountID)
		if err != nil {
			stats.Failures++
			continue
		}
		if state.Remaining > 0 {
			result, err := simClient.recordPayment(accountID, state.Remaining, direction)
			if err != nil {
				log.Error().Err(err).Str("account_id", accountID).Msg("Failed to record final payment")
				stats.Failures++
				continue
			}
			stats.Payments++
			if result.SettlementCompleted {
				stats.CyclesCompleted++
			}
			if result.RefundIssued {
				stats.RefundsIssued++
			}
			log.Info().
				Str("account_id", accountID).
				Int64("paid", state.Remaining).
				Bool("cycle_completed", result.SettlementCompleted).
				Bool("refund_issued", result.RefundIssued).
				Msg("Final settlement recorded")
		}
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SETTLEMENT SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Accounts Linked:    %d
Trades Recorded:    %d
Payments Recorded:  %d
Cycles Completed:   %d
Refunds Issued:     %d
Failures:           %d
Duration:           %v
`, stats.Accounts, stats.Trades, stats.Payments, stats.CyclesCompleted,
		stats.RefundsIssued, stats.Failures, duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("accounts", stats.Accounts).
		Int("payments", stats.Payments).
		Int("cycles_completed", stats.CyclesCompleted).
		Dur("duration", duration).
		Msg("Simulation completed")
}

// startServer initializes and starts the ledger API server
// Sets up all required services, handlers and routes
func startServer() error {
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(db, jwtSecret)
	clientService := clients.NewService(db)
	exchangeService := exchanges.NewService(db)
	ledgerService := ledger.NewService(db)
	reportService := reports.NewService(db)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	clientHandlers := clients.NewGinHandlers(clientService)
	exchangeHandlers := exchanges.NewGinHandlers(exchangeService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	reportHandlers := reports.NewGinHandlers(reportService)

	setupRoutes(router, authHandlers, clientHandlers, exchangeHandlers, ledgerHandlers, reportHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	clientHandlers *clients.GinHandlers,
	exchangeHandlers *exchanges.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	reportHandlers *reports.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", authHandlers.SignupHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		clientGroup := v1.Group("/clients")
		clientGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			clientGroup.POST("", clientHandlers.CreateClientHandler())
			clientGroup.GET("", clientHandlers.ListClientsHandler())
		}

		exchangeGroup := v1.Group("/exchanges")
		exchangeGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			exchangeGroup.POST("", exchangeHandlers.CreateExchangeHandler())
			exchangeGroup.GET("", exchangeHandlers.ListExchangesHandler())
		}

		accountGroup := v1.Group("/accounts")
		accountGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			accountGroup.POST("/link", exchangeHandlers.LinkAccountHandler())
			accountGroup.GET("/:account_id", ledgerHandlers.GetAccountHandler())
			accountGroup.POST("/:account_id/funding", ledgerHandlers.AddFundingHandler())
			accountGroup.POST("/:account_id/trade", ledgerHandlers.RecordTradeHandler())
			accountGroup.POST("/:account_id/payment", ledgerHandlers.RecordPaymentHandler())
			accountGroup.GET("/:account_id/settlement", ledgerHandlers.GetSettlementHandler())
		}

		reportGroup := v1.Group("/reports")
		reportGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			reportGroup.GET("/dashboard", reportHandlers.DashboardSummaryHandler())
			reportGroup.GET("/pending-payments", reportHandlers.PendingPaymentsHandler())
		}
	}
}
