package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"forex-trade-engine/internal/marketdata"
	"forex-trade-engine/internal/models"
	"forex-trade-engine/internal/performance"
	"forex-trade-engine/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrTradeNotFound: no trade with that id exists for the given owner.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrTradeNotOpen: the trade exists but is not in OPEN status. Closing
	// is not idempotent; a second close is an error, not a no-op.
	ErrTradeNotOpen = errors.New("trade is not open")
)

// DefaultListLimit caps ListTrades when the caller passes no limit.
const DefaultListLimit = 50

// StatusFilter is a closed filter over trade status: either all trades or
// exactly one status value.
type StatusFilter struct {
	status models.TradeStatus
	all    bool
}

// FilterAll matches every trade.
func FilterAll() StatusFilter {
	return StatusFilter{all: true}
}

// FilterStatus matches trades in exactly the given status.
func FilterStatus(s models.TradeStatus) StatusFilter {
	return StatusFilter{status: s}
}

// CloseResult is the outcome of closing a trade. PerfErr carries a failure
// from the performance-recording sub-step; it never means the close itself
// failed - the trade in Trade is CLOSED whenever CloseTrade returns nil.
type CloseResult struct {
	Trade   *models.Trade
	PerfErr error
}

// TradeStats are aggregate figures over all of one user's trades, computed
// from a single consistent snapshot.
type TradeStats struct {
	TotalTrades      int64           `json:"total_trades"`
	OpenTrades       int64           `json:"open_trades"`
	ClosedTrades     int64           `json:"closed_trades"`
	WinningTrades    int64           `json:"winning_trades"`
	TotalProfitLoss  decimal.Decimal `json:"total_profit_loss"`
	AvgProfitLoss    decimal.Decimal `json:"avg_profit_loss"`
	TotalCommissions decimal.Decimal `json:"total_commissions"`
	WinRate          decimal.Decimal `json:"win_rate"`
}

// Ledger owns the trade and commission records and enforces the
// OPEN -> CLOSED state machine.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
	oracle marketdata.PriceOracle
	perf   *performance.Aggregator

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-trade close serialization
}

// NewLedger creates a trade ledger.
func NewLedger(db *gorm.DB, logger *zap.Logger, oracle marketdata.PriceOracle, perf *performance.Aggregator) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
		oracle: oracle,
		perf:   perf,
		locks:  make(map[string]*sync.Mutex),
	}
}

// tradeLock returns the mutex serializing operations on one trade id.
func (l *Ledger) tradeLock(tradeID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[tradeID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[tradeID] = lock
	}
	return lock
}

// OpenTrade opens a new position at the oracle's current price. The trade
// and its commission record are written in one transaction; either both
// exist afterwards or neither does.
func (l *Ledger) OpenTrade(ctx context.Context, userID, symbol string, direction models.Direction, amount decimal.Decimal, modelName *string) (*models.Trade, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: %q", pricing.ErrInvalidDirection, direction)
	}
	if amount.LessThan(pricing.MinTradeAmount) {
		return nil, fmt.Errorf("%w: notional amount %s is below the minimum position size %s",
			pricing.ErrInvalidAmount, amount, pricing.MinTradeAmount)
	}

	entryPrice, err := l.oracle.GetLatestPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	commission, err := pricing.Commission(amount)
	if err != nil {
		return nil, err
	}

	trade := models.Trade{
		UserID:     userID,
		Symbol:     symbol,
		Direction:  direction,
		Amount:     amount,
		EntryPrice: entryPrice,
		Status:     models.StatusOpen,
		ModelName:  modelName,
		Commission: commission,
		OpenedAt:   time.Now(),
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		record := models.CommissionRecord{
			UserID:  userID,
			TradeID: trade.ID,
			Amount:  commission,
			Rate:    pricing.CommissionRate,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create commission record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Opened trade",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", userID),
		zap.String("symbol", symbol),
		zap.String("direction", string(direction)),
		zap.String("amount", amount.String()),
		zap.String("entry_price", entryPrice.String()),
	)
	return &trade, nil
}

// CloseTrade closes an OPEN trade at the oracle's current price and books
// the realized P/L. A performance-recording failure for model-attributed
// trades is reported in the result, never propagated as a close failure.
func (l *Ledger) CloseTrade(ctx context.Context, tradeID, userID string) (*CloseResult, error) {
	lock := l.tradeLock(tradeID)
	lock.Lock()
	defer lock.Unlock()

	var trade models.Trade
	err := l.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", tradeID, userID).
		First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trade %s: %w", tradeID, err)
	}
	if trade.Status != models.StatusOpen {
		return nil, fmt.Errorf("%w: %s is %s", ErrTradeNotOpen, tradeID, trade.Status)
	}

	exitPrice, err := l.oracle.GetLatestPrice(ctx, trade.Symbol)
	if err != nil {
		return nil, err
	}

	profitLoss, err := pricing.ProfitLoss(trade.Direction, trade.EntryPrice, exitPrice, trade.Amount)
	if err != nil {
		return nil, err
	}

	closedAt := time.Now()
	// The status guard makes double-close impossible even across processes
	// that do not share the in-memory lock.
	res := l.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ? AND status = ?", tradeID, models.StatusOpen).
		Updates(map[string]any{
			"exit_price":  exitPrice,
			"profit_loss": profitLoss,
			"status":      models.StatusClosed,
			"closed_at":   closedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to close trade %s: %w", tradeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s was closed concurrently", ErrTradeNotOpen, tradeID)
	}

	trade.ExitPrice = &exitPrice
	trade.ProfitLoss = &profitLoss
	trade.Status = models.StatusClosed
	trade.ClosedAt = &closedAt

	l.logger.Info("Closed trade",
		zap.String("trade_id", trade.ID),
		zap.String("user_id", userID),
		zap.String("symbol", trade.Symbol),
		zap.String("exit_price", exitPrice.String()),
		zap.String("profit_loss", profitLoss.String()),
	)

	result := &CloseResult{Trade: &trade}
	if trade.ModelName != nil {
		isProfit := profitLoss.GreaterThan(decimal.Zero)
		if err := l.perf.RecordOutcome(ctx, *trade.ModelName, trade.Symbol, isProfit, profitLoss); err != nil {
			// The close has already committed; record the failure and move on.
			l.logger.Error("Failed to record model outcome for closed trade",
				zap.String("trade_id", trade.ID),
				zap.String("model", *trade.ModelName),
				zap.Error(err),
			)
			result.PerfErr = err
		}
	}
	return result, nil
}

// GetTrade returns one trade owned by the user.
func (l *Ledger) GetTrade(ctx context.Context, tradeID, userID string) (*models.Trade, error) {
	var trade models.Trade
	err := l.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", tradeID, userID).
		First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trade %s: %w", tradeID, err)
	}
	return &trade, nil
}

// ListTrades returns the user's trades, newest first, optionally filtered
// by status. limit <= 0 selects DefaultListLimit.
func (l *Ledger) ListTrades(ctx context.Context, userID string, filter StatusFilter, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := l.db.WithContext(ctx).Where("user_id = ?", userID)
	if !filter.all {
		query = query.Where("status = ?", filter.status)
	}

	var trades []models.Trade
	err := query.Order("created_at desc").Limit(limit).Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for user %s: %w", userID, err)
	}
	return trades, nil
}

// Stats aggregates the user's trade history. All figures come from one
// read transaction so counts and sums always describe the same snapshot.
func (l *Ledger) Stats(ctx context.Context, userID string) (*TradeStats, error) {
	stats := &TradeStats{
		TotalProfitLoss:  decimal.Zero,
		AvgProfitLoss:    decimal.Zero,
		TotalCommissions: decimal.Zero,
		WinRate:          decimal.Zero,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trades []models.Trade
		if err := tx.Select("status", "profit_loss").
			Where("user_id = ?", userID).
			Find(&trades).Error; err != nil {
			return fmt.Errorf("failed to load trades: %w", err)
		}

		var records []models.CommissionRecord
		if err := tx.Select("amount").
			Where("user_id = ?", userID).
			Find(&records).Error; err != nil {
			return fmt.Errorf("failed to load commission records: %w", err)
		}

		stats.TotalTrades = int64(len(trades))
		for _, t := range trades {
			switch t.Status {
			case models.StatusOpen:
				stats.OpenTrades++
			case models.StatusClosed:
				stats.ClosedTrades++
				if t.ProfitLoss != nil {
					stats.TotalProfitLoss = stats.TotalProfitLoss.Add(*t.ProfitLoss)
					if t.ProfitLoss.GreaterThan(decimal.Zero) {
						stats.WinningTrades++
					}
				}
			}
		}

		for _, r := range records {
			stats.TotalCommissions = stats.TotalCommissions.Add(r.Amount)
		}

		if stats.ClosedTrades > 0 {
			closed := decimal.NewFromInt(stats.ClosedTrades)
			stats.AvgProfitLoss = stats.TotalProfitLoss.Div(closed)
			stats.WinRate = decimal.NewFromInt(stats.WinningTrades).
				Div(closed).
				Mul(decimal.NewFromInt(100))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats for user %s: %w", userID, err)
	}
	return stats, nil
}
