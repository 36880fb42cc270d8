package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Direction indicates which way a position profits.
type Direction string

const (
	DirectionLong  Direction = "LONG"  // profits when price rises
	DirectionShort Direction = "SHORT" // profits when price falls
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
	// Reserved status values. No operation currently produces them.
	StatusPending  TradeStatus = "PENDING"
	StatusCanceled TradeStatus = "CANCELED"
)

// Trade represents a single position held by a user.
//
// ExitPrice, ProfitLoss and ClosedAt are either all nil (status OPEN) or
// all set (status CLOSED); no partial state is ever persisted.
type Trade struct {
	ID         string          `gorm:"primaryKey" json:"id"`
	UserID     string          `gorm:"index;not null" json:"user_id"`
	Symbol     string          `gorm:"not null" json:"symbol"`
	Direction  Direction       `gorm:"not null" json:"direction"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	ExitPrice  *decimal.Decimal `gorm:"type:decimal(20,8)" json:"exit_price,omitempty"`
	Status     TradeStatus     `gorm:"index;not null" json:"status"`
	ModelName  *string         `json:"model_name,omitempty"`
	ProfitLoss *decimal.Decimal `gorm:"type:decimal(20,8)" json:"profit_loss,omitempty"`
	Commission decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"commission"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BeforeCreate assigns an opaque id so callers never depend on insertion order.
func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
