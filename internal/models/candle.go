package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Candle is one OHLC bar for a currency pair. The newest close for a symbol
// is the price the trading core sees.
type Candle struct {
	gorm.Model
	Symbol    string          `gorm:"index:idx_symbol_ts;not null" json:"symbol"`
	Open      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `gorm:"index:idx_symbol_ts;not null" json:"timestamp"`
	Timeframe string          `gorm:"not null;default:1h" json:"timeframe"`
}
