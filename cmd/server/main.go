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

	"github.com/dexcore/matching-engine/internal/config"
	"github.com/dexcore/matching-engine/internal/database"
	"github.com/dexcore/matching-engine/internal/engine"
	"github.com/dexcore/matching-engine/internal/orders"
	"github.com/dexcore/matching-engine/internal/stream"
	"github.com/dexcore/matching-engine/pkg/middleware"

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

// main initializes and runs the matching engine server with graceful
// shutdown support. It wires the order ledger, the book registry, the
// matching service and the API routes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize the order and trade ledger
	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router. Raw path routing keeps URL-encoded pair symbols
	// (BTC%2FUSDT) in one path segment.
	router := gin.Default()
	router.UseRawPath = true

	// Initialize services and handlers
	registry := engine.NewRegistry()
	engineService := engine.NewService(db, registry, engine.Options{
		MarketPolicy:    engine.MarketPolicy(cfg.MarketOrderPolicy),
		SelfTradePolicy: engine.SelfTradePolicy(cfg.SelfTradePolicy),
	})
	engineHandlers := engine.NewGinHandlers(engineService)

	ordersService := orders.NewService(db, engineService)
	ordersHandlers := orders.NewGinHandlers(ordersService)

	streamHandler := stream.NewHandler(engineService, time.Second)

	// Optionally run scheduled matching passes alongside explicit triggers
	if cfg.AutoMatchInterval > 0 {
		processor := engine.NewProcessor(engineService, cfg.AutoMatchInterval)
		processorCtx, processorCancel := context.WithCancel(context.Background())
		defer processorCancel()

		go processor.Start(processorCtx)
	}

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, ordersHandlers, engineHandlers, streamHandler)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	zlog.Info().Str("port", cfg.APIPort).Msg("Matching engine listening")

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

// setupRoutes configures all API endpoints and their handlers:
// - Order routes: submission, status and cancellation
// - Match route: explicit batch matching trigger
// - Book routes: aggregated order book and trade ledger queries
// - Stream route: websocket snapshot push
func setupRoutes(
	router *gin.Engine,
	ordersHandlers *orders.GinHandlers,
	engineHandlers *engine.GinHandlers,
	streamHandler *stream.Handler,
) {
	api := router.Group("/api")
	{
		api.POST("/orders", ordersHandlers.CreateOrderHandler())
		api.GET("/orders/:order_id", ordersHandlers.GetOrderHandler())
		api.DELETE("/orders/:order_id", ordersHandlers.CancelOrderHandler())

		api.POST("/match", engineHandlers.MatchHandler())
		api.GET("/orderbook/:pair", engineHandlers.OrderBookHandler())
		api.GET("/trades", engineHandlers.TradesHandler())
	}

	router.GET("/ws", streamHandler.Serve())
}
