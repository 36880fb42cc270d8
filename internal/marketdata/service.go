package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"forex-trade-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPriceUnavailable is returned when no price can be produced for a
// symbol, including oracle timeouts. Retryable by the caller.
var ErrPriceUnavailable = errors.New("price unavailable")

// basePrices are the seed quotes used before any candle data exists.
var basePrices = map[string]string{
	"EURUSD": "1.0850",
	"GBPUSD": "1.2650",
	"USDJPY": "149.50",
	"AUDUSD": "0.6750",
	"USDCAD": "1.3450",
}

// BasePrice returns the seed quote for a symbol, or 1.0000 for symbols
// without a known base.
func BasePrice(symbol string) decimal.Decimal {
	if s, ok := basePrices[symbol]; ok {
		return decimal.RequireFromString(s)
	}
	return decimal.NewFromInt(1)
}

// PriceOracle supplies the current tradable price for a symbol.
type PriceOracle interface {
	GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Service answers price queries from stored candles, falling back to the
// seeded pair base price when no candle exists yet.
// It implements the PriceOracle interface.
type Service struct {
	db      *gorm.DB
	logger  *zap.Logger
	timeout time.Duration
}

// ensure Service implements the interface
var _ PriceOracle = (*Service)(nil)

// NewService creates a market data service. timeout bounds every price
// lookup; a lookup that exceeds it surfaces as ErrPriceUnavailable.
func NewService(db *gorm.DB, logger *zap.Logger, timeout time.Duration) *Service {
	return &Service{
		db:      db,
		logger:  logger,
		timeout: timeout,
	}
}

// GetLatestPrice returns the newest candle close for the symbol, or the
// seeded base price when no candles exist.
func (s *Service) GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var candle models.Candle
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc").
		First(&candle).Error
	if err == nil {
		return candle.Close, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, err)
	}

	var pair models.ForexPair
	err = s.db.WithContext(ctx).
		Where("symbol = ? AND active = ?", symbol, true).
		First(&pair).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, err)
	}
	return pair.BasePrice, nil
}

// GetCandles returns up to limit candles for the symbol and timeframe,
// newest first.
func (s *Service) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	var candles []models.Candle
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("timestamp desc").
		Limit(limit).
		Find(&candles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get candles for %s: %w", symbol, err)
	}
	return candles, nil
}

// ListPairs returns all active pairs ordered by symbol.
func (s *Service) ListPairs(ctx context.Context) ([]models.ForexPair, error) {
	var pairs []models.ForexPair
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("symbol asc").
		Find(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	return pairs, nil
}

// GenerateMockCandles seeds hourly OHLC bars for the past `hours` hours,
// random-walking around the symbol's base price. Development helper.
func (s *Service) GenerateMockCandles(ctx context.Context, symbol string, hours int) error {
	now := time.Now()
	base := BasePrice(symbol)

	candles := make([]models.Candle, 0, hours+1)
	for i := hours; i >= 0; i-- {
		ts := now.Add(-time.Duration(i) * time.Hour)

		open := base.Add(decimal.NewFromFloat((rand.Float64() - 0.5) * 0.01))
		spread := decimal.NewFromFloat(rand.Float64() * 0.002)
		high := open.Add(spread)
		low := open.Sub(decimal.NewFromFloat(rand.Float64() * 0.002))
		closePx := low.Add(high.Sub(low).Mul(decimal.NewFromFloat(rand.Float64())))

		candles = append(candles, models.Candle{
			Symbol:    symbol,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    rand.Int63n(1_000_000) + 100_000,
			Timestamp: ts,
			Timeframe: "1h",
		})
	}

	if err := s.db.WithContext(ctx).Create(&candles).Error; err != nil {
		return fmt.Errorf("failed to seed mock candles for %s: %w", symbol, err)
	}
	s.logger.Info("Seeded mock candles", zap.String("symbol", symbol), zap.Int("count", len(candles)))
	return nil
}

// AdvancePrice applies a small random tick to the symbol's latest price and
// persists it as a new candle, so every reader observes the move.
func (s *Service) AdvancePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	latest, err := s.GetLatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	tick := decimal.NewFromFloat((rand.Float64() - 0.5) * 0.001)
	next := latest.Add(tick)
	if next.LessThanOrEqual(decimal.Zero) {
		next = latest
	}

	candle := models.Candle{
		Symbol:    symbol,
		Open:      latest,
		High:      decimal.Max(latest, next),
		Low:       decimal.Min(latest, next),
		Close:     next,
		Volume:    rand.Int63n(1_000_000) + 100_000,
		Timestamp: time.Now(),
		Timeframe: "1h",
	}
	if err := s.db.WithContext(ctx).Create(&candle).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to persist price tick for %s: %w", symbol, err)
	}
	return next, nil
}

// RatesFetcher fetches spot rates for a set of symbols from an external
// provider.
type RatesFetcher interface {
	FetchRates(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// RefreshRates pulls fresh quotes for every active pair and stores each as
// a new candle. Symbols the provider does not quote are skipped.
func (s *Service) RefreshRates(ctx context.Context, fetcher RatesFetcher) error {
	pairs, err := s.ListPairs(ctx)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols = append(symbols, p.Symbol)
	}

	rates, err := fetcher.FetchRates(ctx, symbols)
	if err != nil {
		return fmt.Errorf("failed to fetch rates: %w", err)
	}

	now := time.Now()
	for _, symbol := range symbols {
		price, ok := rates[symbol]
		if !ok {
			s.logger.Warn("Provider returned no rate for symbol", zap.String("symbol", symbol))
			continue
		}
		candle := models.Candle{
			Symbol:    symbol,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Timestamp: now,
			Timeframe: "1h",
		}
		if err := s.db.WithContext(ctx).Create(&candle).Error; err != nil {
			s.logger.Error("Failed to store refreshed rate",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return nil
}
