package pricing

import (
	"errors"
	"fmt"

	"forex-trade-engine/internal/models"
	"github.com/shopspring/decimal"
)

// Calculator input errors. Both indicate a caller bug and are never retried.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidDirection = errors.New("invalid direction")
)

var (
	// CommissionRate is the flat commission charged on a trade's notional
	// amount at open time.
	CommissionRate = decimal.NewFromFloat(0.02)

	// MinTradeAmount is the smallest notional amount accepted for a new
	// position.
	MinTradeAmount = decimal.NewFromFloat(0.01)
)

// Commission returns the commission owed on the given notional amount.
// Deterministic and safe for concurrent use.
func Commission(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: notional amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	return amount.Mul(CommissionRate), nil
}

// ProfitLoss returns the signed realized P/L for a position closed at
// exitPrice. LONG positions profit when the price rose, SHORT positions
// when it fell.
func ProfitLoss(direction models.Direction, entryPrice, exitPrice, amount decimal.Decimal) (decimal.Decimal, error) {
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: entry price must be positive, got %s", ErrInvalidPrice, entryPrice)
	}
	if exitPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: exit price must be positive, got %s", ErrInvalidPrice, exitPrice)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: notional amount must be positive, got %s", ErrInvalidAmount, amount)
	}

	switch direction {
	case models.DirectionLong:
		return exitPrice.Sub(entryPrice).Mul(amount), nil
	case models.DirectionShort:
		return entryPrice.Sub(exitPrice).Mul(amount), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
}
