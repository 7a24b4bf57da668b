package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/transactionhub/ledger-api/internal/auth"
	"github.com/transactionhub/ledger-api/internal/clients"
	"github.com/transactionhub/ledger-api/internal/config"
	"github.com/transactionhub/ledger-api/internal/database"
	"github.com/transactionhub/ledger-api/internal/exchanges"
	"github.com/transactionhub/ledger-api/internal/ledger"
	"github.com/transactionhub/ledger-api/internal/reports"
	"github.com/transactionhub/ledger-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the ledger API server with graceful shutdown support
// It sets up all required services, database connections, and API routes
func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(db, cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	clientService := clients.NewService(db)
	clientHandlers := clients.NewGinHandlers(clientService)

	exchangeService := exchanges.NewService(db)
	exchangeHandlers := exchanges.NewGinHandlers(exchangeService)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	reportService := reports.NewService(db)
	reportHandlers := reports.NewGinHandlers(reportService)

	// Create and start the flat-cycle sweeper
	sweeper := ledger.NewSweeper(ledgerService.GetDB())
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()

	go sweeper.Start(sweeperCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, clientHandlers, exchangeHandlers, ledgerHandlers, reportHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for registration and token issuance
// - Everything else: Protected by JWT authentication and scoped to the
//   authenticated broker user
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	clientHandlers *clients.GinHandlers,
	exchangeHandlers *exchanges.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	reportHandlers *reports.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", authHandlers.SignupHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Client registry
		clientGroup := v1.Group("/clients")
		clientGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			clientGroup.POST("", clientHandlers.CreateClientHandler())
			clientGroup.GET("", clientHandlers.ListClientsHandler())
			clientGroup.GET("/:client_id", clientHandlers.GetClientHandler())
			clientGroup.DELETE("/:client_id", clientHandlers.DeleteClientHandler())
		}

		// Exchange registry
		exchangeGroup := v1.Group("/exchanges")
		exchangeGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			exchangeGroup.POST("", exchangeHandlers.CreateExchangeHandler())
			exchangeGroup.GET("", exchangeHandlers.ListExchangesHandler())
			exchangeGroup.DELETE("/:exchange_id", exchangeHandlers.DeleteExchangeHandler())
		}

		// Ledger accounts and the settlement engine
		accountGroup := v1.Group("/accounts")
		accountGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			accountGroup.POST("/link", exchangeHandlers.LinkAccountHandler())
			accountGroup.GET("", ledgerHandlers.ListAccountsHandler())
			accountGroup.GET("/:account_id", ledgerHandlers.GetAccountHandler())
			accountGroup.POST("/:account_id/funding", ledgerHandlers.AddFundingHandler())
			accountGroup.POST("/:account_id/balance", ledgerHandlers.UpdateBalanceHandler())
			accountGroup.POST("/:account_id/trade", ledgerHandlers.RecordTradeHandler())
			accountGroup.POST("/:account_id/payment", ledgerHandlers.RecordPaymentHandler())
			accountGroup.GET("/:account_id/settlement", ledgerHandlers.GetSettlementHandler())
			accountGroup.POST("/:account_id/settings", ledgerHandlers.UpdateSettingsHandler())
			accountGroup.GET("/:account_id/report-config", exchangeHandlers.GetReportConfigHandler())
			accountGroup.POST("/:account_id/report-config", exchangeHandlers.UpdateReportConfigHandler())
			accountGroup.GET("/:account_id/transactions", ledgerHandlers.ListTransactionsHandler())
		}

		// Transaction administration
		txnGroup := v1.Group("/transactions")
		txnGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			txnGroup.POST("/:transaction_id/edit", ledgerHandlers.EditTransactionHandler())
		}

		// Reports
		reportGroup := v1.Group("/reports")
		reportGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			reportGroup.GET("/dashboard", reportHandlers.DashboardSummaryHandler())
			reportGroup.GET("/pending-payments", reportHandlers.PendingPaymentsHandler())
			reportGroup.GET("/summary", reportHandlers.SummaryHandler())
			reportGroup.GET("/custom", reportHandlers.CustomReportHandler())
		}
	}
}
