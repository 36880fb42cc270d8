package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"forex-trade-engine/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RatesClient is a client for an external forex spot-rates REST API.
// It implements the RatesFetcher interface.
type RatesClient struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RatesClient implements the interface
var _ RatesFetcher = (*RatesClient)(nil)

// NewRatesClient creates a rates API client with the configured rate limit.
func NewRatesClient(cfg *config.Feed, logger *zap.Logger) *RatesClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RatesClient{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger,
		limiter: limiter,
	}
}

// ratePoint is a single quoted symbol in the provider's response.
type ratePoint struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// ratesResponse represents the response from the /rates endpoint.
type ratesResponse struct {
	Rates []ratePoint `json:"rates"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RatesClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// FetchRates fetches the latest spot rate for the given symbols.
func (c *RatesClient) FetchRates(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	var rates ratesResponse

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetHeader("X-API-KEY", c.apiKey).
		SetResult(&rates)

	resp, err := c.doRequest(ctx, "GET", "/rates", req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}

	result := resp.Result().(*ratesResponse)
	priceMap := make(map[string]decimal.Decimal, len(result.Rates))
	for _, r := range result.Rates {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			c.logger.Warn("Skipping unparseable rate",
				zap.String("symbol", r.Symbol), zap.String("price", r.Price))
			continue
		}
		priceMap[r.Symbol] = price
	}

	return priceMap, nil
}
