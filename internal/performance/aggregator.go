package performance

import (
	"context"
	"fmt"
	"time"

	"forex-trade-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ModelVersion is the version tag recorded for every outcome. There is a
// single deployed generation of each model today.
const ModelVersion = "v1.0"

var two = decimal.NewFromInt(2)

// Aggregator maintains rolling per-model accuracy and profitability
// statistics in day buckets. It is the only writer of ModelPerformance
// records.
type Aggregator struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAggregator creates a performance aggregator.
func NewAggregator(db *gorm.DB, logger *zap.Logger) *Aggregator {
	return &Aggregator{db: db, logger: logger}
}

// RecordOutcome books one closed-trade outcome against today's bucket for
// (modelName, symbol), creating the bucket on first use.
//
// The average P/L update is a two-point average of the prior value and the
// new sample, not a true mean over all samples. That matches the historical
// behavior this service replaced and is kept until product decides otherwise.
func (a *Aggregator) RecordOutcome(ctx context.Context, modelName, symbol string, isProfit bool, profitLoss decimal.Decimal) error {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		perf := models.ModelPerformance{
			ModelName:    modelName,
			ModelVersion: ModelVersion,
			Symbol:       symbol,
			PeriodStart:  startOfDay,
			PeriodEnd:    endOfDay,
		}
		if err := tx.FirstOrCreate(&perf, models.ModelPerformance{
			ModelName:    modelName,
			ModelVersion: ModelVersion,
			Symbol:       symbol,
			PeriodStart:  startOfDay,
		}).Error; err != nil {
			return fmt.Errorf("failed to locate performance bucket: %w", err)
		}

		perf.TotalPredictions++
		if isProfit {
			perf.CorrectPredictions++
		}
		perf.SuccessRate = decimal.NewFromInt(int64(perf.CorrectPredictions)).
			Div(decimal.NewFromInt(int64(perf.TotalPredictions)))

		if perf.AvgProfitLoss == nil {
			perf.AvgProfitLoss = &profitLoss
		} else {
			avg := perf.AvgProfitLoss.Add(profitLoss).Div(two)
			perf.AvgProfitLoss = &avg
		}

		if err := tx.Save(&perf).Error; err != nil {
			return fmt.Errorf("failed to update performance bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record outcome for model %s on %s: %w", modelName, symbol, err)
	}
	return nil
}

// QueryPerformance returns up to 10 performance buckets for the model,
// newest period first. symbol narrows the result when non-empty.
func (a *Aggregator) QueryPerformance(ctx context.Context, modelName, symbol string) ([]models.ModelPerformance, error) {
	query := a.db.WithContext(ctx).Where("model_name = ?", modelName)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var records []models.ModelPerformance
	err := query.Order("period_start desc").Limit(10).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query performance for model %s: %w", modelName, err)
	}
	return records, nil
}
