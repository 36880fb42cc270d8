package database

import (
	"fmt"

	"forex-trade-engine/internal/config"
	"forex-trade-engine/internal/marketdata"
	"forex-trade-engine/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the schema and seeds the configured forex pairs.
// Trade history is never dropped; migration is additive only.
func AutoMigrate(db *gorm.DB, cfg *config.Config) error {
	err := db.AutoMigrate(
		&models.Trade{},
		&models.CommissionRecord{},
		&models.ModelPerformance{},
		&models.ModelUsage{},
		&models.ForexPair{},
		&models.Candle{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Populate the 'forex_pairs' table from the config
	for _, symbol := range cfg.Trading.Pairs {
		pair := models.ForexPair{
			Symbol:    symbol,
			BasePrice: marketdata.BasePrice(symbol),
			Active:    true,
		}
		if err := db.FirstOrCreate(&pair, models.ForexPair{Symbol: symbol}).Error; err != nil {
			return fmt.Errorf("failed to populate pair '%s': %w", symbol, err)
		}
	}

	return nil
}
