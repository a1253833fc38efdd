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

	"github.com/ksred/chain-engine/internal/auth"
	"github.com/ksred/chain-engine/internal/chain"
	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/database"
	"github.com/ksred/chain-engine/internal/market"
	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/tokens"
	"github.com/ksred/chain-engine/internal/types"
	"github.com/ksred/chain-engine/pkg/middleware"

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

// main initializes and runs the chain node with graceful shutdown support
// It wires the contract gateway, bootstraps the genesis block, starts the
// block processor and exposes the query and submission API
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "chain.db"
	}

	// Initialize database
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Contract state store and gateway
	cfg := chain.DefaultConfig()
	stateStore := store.New(db)
	gateway := contracts.NewGateway(stateStore, cfg.AuthorizedDeployers)

	ledger := tokens.NewLedger(stateStore)
	gateway.SetTokenLedger(ledger)
	gateway.Register(tokens.NewContract(ledger))
	gateway.Register(tokens.NewInflationContract(ledger))
	gateway.Register(market.NewContract())

	chainService := chain.NewService(cfg, stateStore, gateway, db)

	// Bootstrap the chain on first start
	genesisInput := chain.BlockInput{
		RefChainBlockNumber: 1,
		RefChainBlockID:     "ref-1",
		PrevRefChainBlockID: "ref-0",
		Timestamp:           time.Now().UTC().Format(types.BlockTimestampLayout),
	}
	if _, err := chainService.InitGenesis(genesisInput); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to bootstrap chain")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "chain-engine-secret-key"
	}
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials bound to the chain owner account
	authService.RegisterKey(auth.TestAPIKey, auth.TestAPISecret, cfg.AuthorizedDeployers[0])

	chainHandlers := chain.NewGinHandlers(chainService)
	marketHandlers := market.NewGinHandlers(stateStore)
	tokenHandlers := tokens.NewGinHandlers(stateStore)

	// Create and start block processor
	processor := chain.NewProcessor(chainService)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, chainHandlers, marketHandlers, tokenHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
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
// - Auth routes: Public endpoints for authentication
// - Transaction routes: Protected by JWT authentication
// - Chain, market and token routes: Public read-only queries
// Parameters:
//   - router: The main Gin router instance
//   - jwtSecret: Signing secret shared with the auth service
//   - authHandlers: Handlers for authentication endpoints
//   - chainHandlers: Handlers for block and transaction queries
//   - marketHandlers: Handlers for order book queries
//   - tokenHandlers: Handlers for balance queries
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	chainHandlers *chain.GinHandlers,
	marketHandlers *market.GinHandlers,
	tokenHandlers *tokens.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Transaction submission, protected by JWT with the submit scope
		transactions := v1.Group("/transactions")
		transactions.Use(middleware.JWTAuth(jwtSecret, auth.ScopeSubmit))
		{
			transactions.POST("", chainHandlers.SubmitTransactionHandler())
		}

		// Chain queries
		chainGroup := v1.Group("/chain")
		{
			chainGroup.GET("/blocks/latest", chainHandlers.GetLatestBlockHandler())
			chainGroup.GET("/blocks/:block_number", chainHandlers.GetBlockHandler())
			chainGroup.GET("/transactions/:transaction_id", chainHandlers.GetTransactionHandler())
		}

		// Market queries
		marketGroup := v1.Group("/market")
		{
			marketGroup.GET("/book/:symbol", marketHandlers.GetOrderBookHandler())
			marketGroup.GET("/trades/:symbol", marketHandlers.GetTradesHandler())
			marketGroup.GET("/metrics/:symbol", marketHandlers.GetMetricsHandler())
		}

		// Token queries
		tokenGroup := v1.Group("/tokens")
		{
			tokenGroup.GET("/:symbol", tokenHandlers.GetTokenHandler())
			tokenGroup.GET("/balances/:account", tokenHandlers.GetBalancesHandler())
			tokenGroup.GET("/unstakes/:account", tokenHandlers.GetPendingUnstakesHandler())
		}
	}
}
