package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"forex-trade-engine/internal/marketdata"
	"forex-trade-engine/internal/models"
	"forex-trade-engine/internal/performance"
	"forex-trade-engine/internal/predict"
	"forex-trade-engine/internal/pricing"
	"forex-trade-engine/internal/trading"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log       *zap.Logger
	ledger    *trading.Ledger
	market    *marketdata.Service
	perf      *performance.Aggregator
	predictor *predict.Predictor
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, ledger *trading.Ledger, market *marketdata.Service, perf *performance.Aggregator, predictor *predict.Predictor) *APIHandler {
	return &APIHandler{
		log:       log,
		ledger:    ledger,
		market:    market,
		perf:      perf,
		predictor: predictor,
	}
}

// writeJSON encodes v as the response body.
func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

// writeError maps ledger errors onto HTTP status codes.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, trading.ErrTradeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, trading.ErrTradeNotOpen),
		errors.Is(err, pricing.ErrInvalidAmount),
		errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, pricing.ErrInvalidDirection):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, marketdata.ErrPriceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, predict.ErrModelAccessDenied):
		status = http.StatusForbidden
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// openTradeRequest is the body of POST /api/trades.
type openTradeRequest struct {
	UserID    string           `json:"user_id"`
	Symbol    string           `json:"symbol"`
	Direction models.Direction `json:"direction"`
	Amount    decimal.Decimal  `json:"amount"`
	ModelName *string          `json:"model_name,omitempty"`
}

// OpenTradeHandler opens a new position.
func (h *APIHandler) OpenTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req openTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	trade, err := h.ledger.OpenTrade(r.Context(), req.UserID, req.Symbol, req.Direction, req.Amount, req.ModelName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, trade)
}

// closeTradeRequest is the body of POST /api/trades/close.
type closeTradeRequest struct {
	UserID  string `json:"user_id"`
	TradeID string `json:"trade_id"`
}

// CloseTradeHandler closes an open position.
func (h *APIHandler) CloseTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req closeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.ledger.CloseTrade(r.Context(), req.TradeID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result.Trade)
}

// ListTradesHandler returns the user's trades, newest first.
func (h *APIHandler) ListTradesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user is required"})
		return
	}

	filter := trading.FilterAll()
	if status := r.URL.Query().Get("status"); status != "" {
		filter = trading.FilterStatus(models.TradeStatus(status))
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	trades, err := h.ledger.ListTrades(r.Context(), userID, filter, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// StatsHandler returns aggregate statistics for the user.
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user is required"})
		return
	}

	stats, err := h.ledger.Stats(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// PerformanceHandler returns recent performance buckets for a model.
func (h *APIHandler) PerformanceHandler(w http.ResponseWriter, r *http.Request) {
	modelName := r.URL.Query().Get("model")
	if modelName == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model is required"})
		return
	}

	records, err := h.perf.QueryPerformance(r.Context(), modelName, r.URL.Query().Get("symbol"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// PredictionHandler returns a forecast for a symbol. The caller's plan is
// taken from the query string; resolving the authenticated user to a plan
// belongs to the auth layer in front of this API.
func (h *APIHandler) PredictionHandler(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	model := predict.ModelType(r.URL.Query().Get("model"))
	if model == "" {
		model = predict.ModelA
	}
	plan := predict.Plan(r.URL.Query().Get("plan"))

	prediction, err := h.predictor.GetPrediction(r.Context(), symbol, model, plan)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if userID := r.URL.Query().Get("user"); userID != "" {
		if err := h.predictor.LogUsage(r.Context(), userID, model, symbol,
			map[string]string{"symbol": symbol, "model": string(model)}, prediction); err != nil {
			h.log.Warn("Failed to log model usage", zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusOK, prediction)
}

// PairsHandler returns the active tradable pairs.
func (h *APIHandler) PairsHandler(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.market.ListPairs(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pairs)
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK\n")); err != nil {
		h.log.Error("Failed to write health response", zap.Error(err))
	}
}
