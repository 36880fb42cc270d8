package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"forex-trade-engine/internal/marketdata"
	"forex-trade-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrModelAccessDenied is returned when the caller's subscription plan does
// not cover the requested model.
var ErrModelAccessDenied = errors.New("model access denied")

// Plan is a subscription tier. Resolving a user to a plan happens upstream;
// the predictor only enforces the model gate.
type Plan string

const (
	PlanPremium     Plan = "PREMIUM"
	PlanPremiumPlus Plan = "PREMIUM_PLUS"
)

// ModelType names a prediction model.
type ModelType string

const (
	ModelA ModelType = "model_a"
	ModelB ModelType = "model_b" // requires PREMIUM_PLUS
)

// Signal is a directional forecast.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Prediction is a single forecast for a currency pair.
type Prediction struct {
	Signal      Signal          `json:"signal"`
	Confidence  float64         `json:"confidence"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	Reasoning   string          `json:"reasoning"`
}

var reasoningFactors = []string{
	"Technical analysis shows strong momentum",
	"Economic indicators favor this direction",
	"Market sentiment analysis suggests",
	"Historical patterns indicate",
	"Central bank policy implications",
	"Cross-currency correlations show",
}

// Predictor generates mocked directional forecasts around the current
// market price. It stands in for a real model-serving backend.
type Predictor struct {
	db     *gorm.DB
	logger *zap.Logger
	oracle marketdata.PriceOracle
}

// NewPredictor creates a predictor backed by the given price oracle.
func NewPredictor(db *gorm.DB, logger *zap.Logger, oracle marketdata.PriceOracle) *Predictor {
	return &Predictor{db: db, logger: logger, oracle: oracle}
}

// GetPrediction returns a forecast for the symbol. model_b is gated to
// PREMIUM_PLUS subscribers.
func (p *Predictor) GetPrediction(ctx context.Context, symbol string, model ModelType, plan Plan) (*Prediction, error) {
	if model == ModelB && plan != PlanPremiumPlus {
		return nil, fmt.Errorf("%w: %s requires a %s subscription", ErrModelAccessDenied, model, PlanPremiumPlus)
	}

	price, err := p.oracle.GetLatestPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("could not price %s for prediction: %w", symbol, err)
	}

	confidence := rand.Float64()*0.4 + 0.6 // 60-100%

	var signal Signal
	switch r := rand.Float64(); {
	case r < 0.4:
		signal = SignalBuy
	case r < 0.8:
		signal = SignalSell
	default:
		signal = SignalHold
	}

	// 0.1-0.3% expected movement around the current price.
	movement := price.Mul(decimal.NewFromFloat(0.002)).
		Mul(decimal.NewFromFloat(rand.Float64() + 0.5))
	halfMove := movement.Div(decimal.NewFromInt(2))

	var target, stop decimal.Decimal
	if signal == SignalBuy {
		target = price.Add(movement)
		stop = price.Sub(halfMove)
	} else {
		target = price.Sub(movement)
		stop = price.Add(halfMove)
	}

	return &Prediction{
		Signal:      signal,
		Confidence:  confidence,
		TargetPrice: target,
		StopLoss:    stop,
		Reasoning:   p.reasoning(symbol, signal, model),
	}, nil
}

// LogUsage persists one prediction request for billing and audit.
func (p *Predictor) LogUsage(ctx context.Context, userID string, model ModelType, symbol string, request, response any) error {
	reqJSON, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to encode usage request: %w", err)
	}
	respJSON, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to encode usage response: %w", err)
	}

	usage := models.ModelUsage{
		UserID:       userID,
		ModelName:    string(model),
		ModelVersion: "v1.0",
		Symbol:       symbol,
		RequestData:  string(reqJSON),
		ResponseData: string(respJSON),
	}
	if err := p.db.WithContext(ctx).Create(&usage).Error; err != nil {
		return fmt.Errorf("failed to log model usage: %w", err)
	}
	return nil
}

func (p *Predictor) reasoning(symbol string, signal Signal, model ModelType) string {
	factor := reasoningFactors[rand.Intn(len(reasoningFactors))]

	detail := "Technical indicators align with this forecast."
	if model == ModelB {
		detail = "Advanced pattern recognition and sentiment analysis support this prediction."
	}

	return fmt.Sprintf("%s a %s opportunity for %s. %s", factor, signal, symbol, detail)
}
