package trading

import (
	"context"
	"fmt"

	"forex-trade-engine/internal/models"
	"forex-trade-engine/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LiquidationThreshold is the fraction of a position's notional amount that
// may be lost before the sweep force-closes it.
var LiquidationThreshold = decimal.NewFromFloat(0.05)

// Sweep scans every OPEN position and force-closes any whose unrealized
// loss has reached LiquidationThreshold of the notional amount. A failure
// on one trade is logged and the sweep moves on; it never aborts the scan.
// Returns the number of trades closed.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	var open []models.Trade
	err := l.db.WithContext(ctx).
		Where("status = ?", models.StatusOpen).
		Find(&open).Error
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate open trades: %w", err)
	}

	closed := 0
	for _, trade := range open {
		price, err := l.oracle.GetLatestPrice(ctx, trade.Symbol)
		if err != nil {
			l.logger.Warn("Sweep could not price trade, skipping",
				zap.String("trade_id", trade.ID),
				zap.String("symbol", trade.Symbol),
				zap.Error(err),
			)
			continue
		}

		unrealized, err := pricing.ProfitLoss(trade.Direction, trade.EntryPrice, price, trade.Amount)
		if err != nil {
			l.logger.Error("Sweep could not compute unrealized P/L, skipping",
				zap.String("trade_id", trade.ID),
				zap.Error(err),
			)
			continue
		}

		maxLoss := trade.Amount.Mul(LiquidationThreshold).Neg()
		if unrealized.GreaterThan(maxLoss) {
			continue
		}

		if _, err := l.CloseTrade(ctx, trade.ID, trade.UserID); err != nil {
			l.logger.Error("Sweep failed to close trade",
				zap.String("trade_id", trade.ID),
				zap.Error(err),
			)
			continue
		}
		closed++
		l.logger.Info("Auto-closed trade on stop loss",
			zap.String("trade_id", trade.ID),
			zap.String("symbol", trade.Symbol),
			zap.String("unrealized_pl", unrealized.String()),
		)
	}

	return closed, nil
}
