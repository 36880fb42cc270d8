package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forex-trade-engine/internal/config"
	"forex-trade-engine/internal/database"
	"forex-trade-engine/internal/logger"
	"forex-trade-engine/internal/marketdata"
	"forex-trade-engine/internal/performance"
	"forex-trade-engine/internal/trading"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Wire up the core components
	priceTimeout := time.Duration(cfg.Feed.PriceTimeoutMs) * time.Millisecond
	market := marketdata.NewService(db, log.Named("marketdata"), priceTimeout)
	aggregator := performance.NewAggregator(db, log.Named("performance"))
	ledger := trading.NewLedger(db, log.Named("ledger"), market, aggregator)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	scheduler := cron.New()

	// Auto-liquidation sweep
	_, err = scheduler.AddFunc(cfg.Trading.SweepSchedule, func() {
		closed, err := ledger.Sweep(ctx)
		if err != nil {
			log.Error("Sweep failed", zap.Error(err))
			return
		}
		if closed > 0 {
			log.Info("Sweep complete", zap.Int("trades_closed", closed))
		}
	})
	if err != nil {
		log.Fatal("Invalid sweep schedule", zap.Error(err))
	}

	// Market data: external feed when enabled, random-walk ticks otherwise.
	if cfg.Feed.Enabled {
		rates := marketdata.NewRatesClient(&cfg.Feed, log.Named("rates"))
		_, err = scheduler.AddFunc(cfg.Feed.RefreshSchedule, func() {
			if err := market.RefreshRates(ctx, rates); err != nil {
				log.Error("Rates refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("Invalid feed refresh schedule", zap.Error(err))
		}
	} else if cfg.Trading.MockTicks {
		_, err = scheduler.AddFunc(cfg.Feed.RefreshSchedule, func() {
			for _, symbol := range cfg.Trading.Pairs {
				if _, err := market.AdvancePrice(ctx, symbol); err != nil {
					log.Warn("Mock tick failed", zap.String("symbol", symbol), zap.Error(err))
				}
			}
		})
		if err != nil {
			log.Fatal("Invalid feed refresh schedule", zap.Error(err))
		}
	}

	log.Info("Starting scheduler",
		zap.String("sweep_schedule", cfg.Trading.SweepSchedule),
		zap.Bool("feed_enabled", cfg.Feed.Enabled),
	)
	scheduler.Start()

	<-ctx.Done()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	log.Info("Engine has been shut down.")
}
