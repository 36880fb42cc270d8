package trading

import (
	"context"
	"sync"
	"testing"

	"forex-trade-engine/internal/marketdata"
	"forex-trade-engine/internal/models"
	"forex-trade-engine/internal/performance"
	"forex-trade-engine/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockPriceOracle is a mock implementation of the PriceOracle interface.
type MockPriceOracle struct {
	mock.Mock
}

func (m *MockPriceOracle) GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

var _ marketdata.PriceOracle = (*MockPriceOracle)(nil)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setupTest creates a ledger backed by a mock oracle and an in-memory DB.
func setupTest(t *testing.T) (*Ledger, *MockPriceOracle, *gorm.DB) {
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A second pool connection to ::memory: would see its own empty
	// database, so pin the pool to one connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.Trade{}, &models.CommissionRecord{}, &models.ModelPerformance{})
	require.NoError(t, err)

	oracle := new(MockPriceOracle)
	aggregator := performance.NewAggregator(db, zap.NewNop())
	ledger := NewLedger(db, zap.NewNop(), oracle, aggregator)

	return ledger, oracle, db
}

func TestOpenTrade_RoundTrip(t *testing.T) {
	// Arrange
	ledger, oracle, _ := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()

	// Act
	trade, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, models.StatusOpen, trade.Status)
	assert.True(t, d("1.0850").Equal(trade.EntryPrice))
	assert.Nil(t, trade.ExitPrice)
	assert.Nil(t, trade.ProfitLoss)
	assert.Nil(t, trade.ClosedAt)

	// A listing filtered to OPEN must include the new trade exactly once.
	open, err := ledger.ListTrades(context.Background(), "user-1", FilterStatus(models.StatusOpen), 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, trade.ID, open[0].ID)
	assert.True(t, d("1.0850").Equal(open[0].EntryPrice))

	oracle.AssertExpectations(t)
}

func TestOpenTrade_CreatesCommissionRecordAtomically(t *testing.T) {
	// Arrange
	ledger, oracle, db := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()

	// Act
	trade, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)

	// Assert
	require.NoError(t, err)
	assert.True(t, d("20").Equal(trade.Commission), "commission is 2%% of notional, got %s", trade.Commission)

	var record models.CommissionRecord
	require.NoError(t, db.Where("trade_id = ?", trade.ID).First(&record).Error)
	assert.True(t, d("20").Equal(record.Amount))
	assert.True(t, d("0.02").Equal(record.Rate))
	assert.Equal(t, "user-1", record.UserID)
}

func TestOpenTrade_BelowMinimumAmount(t *testing.T) {
	// Arrange
	ledger, oracle, db := setupTest(t)

	// Act
	_, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("0.001"), nil)

	// Assert
	assert.ErrorIs(t, err, pricing.ErrInvalidAmount)

	var count int64
	db.Model(&models.Trade{}).Count(&count)
	assert.Zero(t, count, "no trade may be persisted on a rejected open")
	oracle.AssertNotCalled(t, "GetLatestPrice")
}

func TestOpenTrade_PriceUnavailableLeavesNoPartialState(t *testing.T) {
	// Arrange
	ledger, oracle, db := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "XAUXAG").
		Return(decimal.Zero, marketdata.ErrPriceUnavailable).Once()

	// Act
	_, err := ledger.OpenTrade(context.Background(), "user-1", "XAUXAG", models.DirectionLong, d("1000"), nil)

	// Assert
	assert.ErrorIs(t, err, marketdata.ErrPriceUnavailable)

	var trades, records int64
	db.Model(&models.Trade{}).Count(&trades)
	db.Model(&models.CommissionRecord{}).Count(&records)
	assert.Zero(t, trades)
	assert.Zero(t, records)
}

func TestCloseTrade_ProfitableLong(t *testing.T) {
	// Arrange
	ledger, oracle, _ := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0920"), nil).Once()

	trade, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)
	require.NoError(t, err)

	// Act
	result, err := ledger.CloseTrade(context.Background(), trade.ID, "user-1")

	// Assert
	require.NoError(t, err)
	closed := result.Trade
	assert.Equal(t, models.StatusClosed, closed.Status)
	require.NotNil(t, closed.ExitPrice)
	require.NotNil(t, closed.ProfitLoss)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, d("1.0920").Equal(*closed.ExitPrice))
	assert.True(t, d("7.00").Equal(*closed.ProfitLoss), "got %s", closed.ProfitLoss)
	assert.True(t, d("20").Equal(closed.Commission))
	oracle.AssertExpectations(t)
}

func TestCloseTrade_LosingShort(t *testing.T) {
	// Arrange
	ledger, oracle, _ := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "GBPUSD").Return(d("1.2650"), nil).Once()
	oracle.On("GetLatestPrice", mock.Anything, "GBPUSD").Return(d("1.2750"), nil).Once()

	trade, err := ledger.OpenTrade(context.Background(), "user-1", "GBPUSD", models.DirectionShort, d("1500"), nil)
	require.NoError(t, err)

	// Act
	result, err := ledger.CloseTrade(context.Background(), trade.ID, "user-1")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result.Trade.ProfitLoss)
	assert.True(t, d("-15.00").Equal(*result.Trade.ProfitLoss), "got %s", result.Trade.ProfitLoss)
}

func TestCloseTrade_SecondCloseFailsAndChangesNothing(t *testing.T) {
	// Arrange
	ledger, oracle, db := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0920"), nil)

	trade, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)
	require.NoError(t, err)

	first, err := ledger.CloseTrade(context.Background(), trade.ID, "user-1")
	require.NoError(t, err)

	// Act: close is not idempotent, the second attempt must fail.
	_, err = ledger.CloseTrade(context.Background(), trade.ID, "user-1")

	// Assert
	assert.ErrorIs(t, err, ErrTradeNotOpen)

	var persisted models.Trade
	require.NoError(t, db.First(&persisted, "id = ?", trade.ID).Error)
	assert.Equal(t, models.StatusClosed, persisted.Status)
	assert.True(t, first.Trade.ExitPrice.Equal(*persisted.ExitPrice))
	assert.True(t, first.Trade.ProfitLoss.Equal(*persisted.ProfitLoss))
	assert.Equal(t, first.Trade.ClosedAt.Unix(), persisted.ClosedAt.Unix())
}

func TestCloseTrade_NotFoundForOtherOwner(t *testing.T) {
	// Arrange
	ledger, oracle, _ := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()

	trade, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)
	require.NoError(t, err)

	// Act
	_, err = ledger.CloseTrade(context.Background(), trade.ID, "user-2")

	// Assert
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestCloseTrade_ConcurrentClosesYieldExactlyOneSuccess(t *testing.T) {
	// Arrange
	ledger, oracle, _ := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil)

	trade, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)
	require.NoError(t, err)

	// Act
	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.CloseTrade(context.Background(), trade.ID, "user-1")
		}(i)
	}
	wg.Wait()

	// Assert
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrTradeNotOpen)
		}
	}
	assert.Equal(t, 1, successes, "exactly one close may succeed")
}

func TestCloseTrade_RecordsModelOutcome(t *testing.T) {
	// Arrange
	ledger, oracle, db := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0920"), nil).Once()

	modelName := "model_a"
	trade, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), &modelName)
	require.NoError(t, err)

	// Act
	result, err := ledger.CloseTrade(context.Background(), trade.ID, "user-1")

	// Assert
	require.NoError(t, err)
	assert.NoError(t, result.PerfErr)

	var perf models.ModelPerformance
	require.NoError(t, db.Where("model_name = ? AND symbol = ?", "model_a", "EURUSD").First(&perf).Error)
	assert.Equal(t, 1, perf.TotalPredictions)
	assert.Equal(t, 1, perf.CorrectPredictions)
	assert.True(t, d("1").Equal(perf.SuccessRate))
	require.NotNil(t, perf.AvgProfitLoss)
	assert.True(t, d("7.00").Equal(*perf.AvgProfitLoss))
}

func TestStats_ZeroClosedTrades(t *testing.T) {
	// Arrange
	ledger, oracle, _ := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()

	_, err := ledger.OpenTrade(context.Background(), "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)
	require.NoError(t, err)

	// Act
	stats, err := ledger.Stats(context.Background(), "user-1")

	// Assert: averages over zero closed trades are zero, never NaN.
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.OpenTrades)
	assert.Equal(t, int64(0), stats.ClosedTrades)
	assert.True(t, stats.AvgProfitLoss.IsZero())
	assert.True(t, stats.WinRate.IsZero())
	assert.True(t, d("20").Equal(stats.TotalCommissions))
}

func TestStats_MixedHistory(t *testing.T) {
	// Arrange: one winning long, one losing short, one still open.
	ledger, oracle, _ := setupTest(t)
	ctx := context.Background()

	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil).Once()
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0920"), nil).Once()
	winner, err := ledger.OpenTrade(ctx, "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)
	require.NoError(t, err)
	_, err = ledger.CloseTrade(ctx, winner.ID, "user-1")
	require.NoError(t, err)

	oracle.On("GetLatestPrice", mock.Anything, "GBPUSD").Return(d("1.2650"), nil).Once()
	oracle.On("GetLatestPrice", mock.Anything, "GBPUSD").Return(d("1.2750"), nil).Once()
	loser, err := ledger.OpenTrade(ctx, "user-1", "GBPUSD", models.DirectionShort, d("1500"), nil)
	require.NoError(t, err)
	_, err = ledger.CloseTrade(ctx, loser.ID, "user-1")
	require.NoError(t, err)

	oracle.On("GetLatestPrice", mock.Anything, "USDJPY").Return(d("149.50"), nil).Once()
	_, err = ledger.OpenTrade(ctx, "user-1", "USDJPY", models.DirectionLong, d("500"), nil)
	require.NoError(t, err)

	// Act
	stats, err := ledger.Stats(ctx, "user-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.OpenTrades)
	assert.Equal(t, int64(2), stats.ClosedTrades)
	assert.Equal(t, int64(1), stats.WinningTrades)
	assert.True(t, d("-8.00").Equal(stats.TotalProfitLoss), "7.00 - 15.00, got %s", stats.TotalProfitLoss)
	assert.True(t, d("-4.00").Equal(stats.AvgProfitLoss), "got %s", stats.AvgProfitLoss)
	assert.True(t, d("60").Equal(stats.TotalCommissions), "20 + 30 + 10, got %s", stats.TotalCommissions)
	assert.True(t, d("50").Equal(stats.WinRate), "got %s", stats.WinRate)
}

func TestListTrades_NewestFirstAndCapped(t *testing.T) {
	// Arrange
	ledger, oracle, _ := setupTest(t)
	oracle.On("GetLatestPrice", mock.Anything, "EURUSD").Return(d("1.0850"), nil)

	ctx := context.Background()
	var last *models.Trade
	for i := 0; i < 5; i++ {
		trade, err := ledger.OpenTrade(ctx, "user-1", "EURUSD", models.DirectionLong, d("1000"), nil)
		require.NoError(t, err)
		last = trade
	}

	// Act
	trades, err := ledger.ListTrades(ctx, "user-1", FilterAll(), 3)

	// Assert
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, last.ID, trades[0].ID, "newest created trade comes first")
}
