package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"forex-trade-engine/internal/config"
	"forex-trade-engine/internal/database"
	"forex-trade-engine/internal/logger"
	"forex-trade-engine/internal/marketdata"
	"forex-trade-engine/internal/performance"
	"forex-trade-engine/internal/predict"
	"forex-trade-engine/internal/trading"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Wire up the components the API serves
	priceTimeout := time.Duration(cfg.Feed.PriceTimeoutMs) * time.Millisecond
	market := marketdata.NewService(db, log.Named("marketdata"), priceTimeout)
	aggregator := performance.NewAggregator(db, log.Named("performance"))
	ledger := trading.NewLedger(db, log.Named("ledger"), market, aggregator)
	predictor := predict.NewPredictor(db, log.Named("predict"), market)

	// Setup HTTP server
	mux := http.NewServeMux()

	apiHandler := NewAPIHandler(log, ledger, market, aggregator, predictor)

	// API endpoints
	mux.HandleFunc("GET /api/trades", apiHandler.ListTradesHandler)
	mux.HandleFunc("POST /api/trades", apiHandler.OpenTradeHandler)
	mux.HandleFunc("POST /api/trades/close", apiHandler.CloseTradeHandler)
	mux.HandleFunc("GET /api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("GET /api/performance", apiHandler.PerformanceHandler)
	mux.HandleFunc("GET /api/prediction", apiHandler.PredictionHandler)
	mux.HandleFunc("GET /api/pairs", apiHandler.PairsHandler)
	mux.HandleFunc("GET /api/health", apiHandler.HealthHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
