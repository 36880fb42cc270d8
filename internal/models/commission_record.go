package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionRecord is the audit entry created alongside every trade.
// It is written exactly once and never mutated or deleted.
type CommissionRecord struct {
	gorm.Model
	UserID  string          `gorm:"index;not null" json:"user_id"`
	TradeID string          `gorm:"uniqueIndex;not null" json:"trade_id"`
	Amount  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Rate    decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"`
}
