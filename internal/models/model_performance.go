package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ModelPerformance accumulates per-day outcome statistics for a prediction
// model on one symbol. A record is created lazily on the first attributed
// trade close of the day and updated in place afterwards.
type ModelPerformance struct {
	gorm.Model
	ModelName          string          `gorm:"uniqueIndex:idx_model_period;not null" json:"model_name"`
	ModelVersion       string          `gorm:"uniqueIndex:idx_model_period;not null" json:"model_version"`
	Symbol             string          `gorm:"uniqueIndex:idx_model_period;not null" json:"symbol"`
	PeriodStart        time.Time       `gorm:"uniqueIndex:idx_model_period;not null" json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	TotalPredictions   int             `json:"total_predictions"`
	CorrectPredictions int             `json:"correct_predictions"`
	SuccessRate        decimal.Decimal `gorm:"type:decimal(10,8)" json:"success_rate"`
	AvgProfitLoss      *decimal.Decimal `gorm:"type:decimal(20,8)" json:"avg_profit_loss,omitempty"`
}

// ModelUsage logs a single prediction request so usage can be billed and
// audited per user.
type ModelUsage struct {
	gorm.Model
	UserID       string `gorm:"index;not null" json:"user_id"`
	ModelName    string `gorm:"not null" json:"model_name"`
	ModelVersion string `gorm:"not null" json:"model_version"`
	Symbol       string `gorm:"not null" json:"symbol"`
	RequestData  string `json:"request_data"`
	ResponseData string `json:"response_data"`
}
