package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ForexPair is a tradable currency pair. BasePrice is the quote used when
// no candle data exists yet for the symbol.
type ForexPair struct {
	gorm.Model
	Symbol    string          `gorm:"uniqueIndex;not null" json:"symbol"`
	BasePrice decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"base_price"`
	Active    bool            `gorm:"default:true" json:"active"`
}
