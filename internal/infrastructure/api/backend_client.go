package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/damon-houk/waybill-pricing/internal/domain/service"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
)

const (
	currenciesPath = "/currencies"
	ratesPath      = "/currencies/rates"
	convertPath    = "/currencies/convert"
	costPath       = "/lta/calculate-cost"

	maxErrorBody = 4 << 10
)

// ErrMalformedResponse is returned when a 2xx body does not have the expected shape
var ErrMalformedResponse = errors.New("malformed backend response")

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned error status: %d, body: %s", e.StatusCode, e.Body)
}

// Transient reports whether retrying the request may succeed
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Options configures the backend client
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	FetchRetries   int
	ConvertRetries int
	RetryDelay     time.Duration
	SearchLimit    int
}

// BackendClient talks to the back-office REST API
type BackendClient struct {
	baseURL        string
	httpClient     *http.Client
	userAgent      string
	fetchRetries   int
	convertRetries int
	retryDelay     time.Duration
	searchLimit    int
	logger         logger.Logger
}

var (
	_ service.CurrencyAPI = (*BackendClient)(nil)
	_ service.PricingAPI  = (*BackendClient)(nil)
	_ service.SearchAPI   = (*BackendClient)(nil)
)

// NewBackendClient creates a new backend client
func NewBackendClient(httpClient *http.Client, opts Options, log logger.Logger) *BackendClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
		}
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 10
	}

	return &BackendClient{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     httpClient,
		userAgent:      opts.UserAgent,
		fetchRetries:   opts.FetchRetries,
		convertRetries: opts.ConvertRetries,
		retryDelay:     opts.RetryDelay,
		searchLimit:    opts.SearchLimit,
		logger:         log.WithField("component", "backend_client"),
	}
}

// FetchCurrencies retrieves the currency list
func (c *BackendClient) FetchCurrencies(ctx context.Context) ([]entity.CurrencyInfo, error) {
	var currencies []entity.CurrencyInfo
	if err := c.do(ctx, http.MethodGet, currenciesPath, nil, nil, &currencies, c.fetchRetries); err != nil {
		return nil, fmt.Errorf("failed to fetch currencies: %w", err)
	}
	return currencies, nil
}

// FetchRates retrieves the exchange-rate table
func (c *BackendClient) FetchRates(ctx context.Context) ([]entity.ExchangeRate, error) {
	var rates []entity.ExchangeRate
	if err := c.do(ctx, http.MethodGet, ratesPath, nil, nil, &rates, c.fetchRetries); err != nil {
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}
	return rates, nil
}

type convertRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
}

type convertResponse struct {
	OriginalAmount  decimal.Decimal     `json:"originalAmount"`
	ConvertedAmount decimal.NullDecimal `json:"convertedAmount"`
	Rate            decimal.Decimal     `json:"rate"`
	FormattedAmount string              `json:"formattedAmount"`
}

// Convert asks the backend to convert an amount
func (c *BackendClient) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (*entity.ConversionResult, error) {
	body := convertRequest{Amount: amount, FromCurrency: from, ToCurrency: to}

	var resp convertResponse
	if err := c.do(ctx, http.MethodPost, convertPath, nil, body, &resp, c.convertRetries); err != nil {
		return nil, fmt.Errorf("failed to convert amount: %w", err)
	}
	if !resp.ConvertedAmount.Valid {
		return nil, fmt.Errorf("failed to convert amount: %w: missing convertedAmount", ErrMalformedResponse)
	}

	return &entity.ConversionResult{
		OriginalAmount:  amount,
		ConvertedAmount: resp.ConvertedAmount.Decimal,
		Rate:            resp.Rate,
		FormattedAmount: resp.FormattedAmount,
		From:            from,
		To:              to,
		Source:          entity.SourceLive,
	}, nil
}

type updateRateRequest struct {
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	Rate         decimal.Decimal `json:"rate"`
}

// UpdateRate changes one directional rate
func (c *BackendClient) UpdateRate(ctx context.Context, from, to string, rate decimal.Decimal) (*entity.ExchangeRate, error) {
	body := updateRateRequest{FromCurrency: from, ToCurrency: to, Rate: rate}

	var updated entity.ExchangeRate
	if err := c.do(ctx, http.MethodPut, ratesPath, nil, body, &updated, 0); err != nil {
		return nil, fmt.Errorf("failed to update exchange rate: %w", err)
	}
	return &updated, nil
}

type costResponse struct {
	Cost decimal.NullDecimal `json:"cost"`
}

// CalculateCost prices a route and weight in the given currency
func (c *BackendClient) CalculateCost(ctx context.Context, in entity.QuoteInput) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("originCityId", strconv.FormatInt(in.OriginID, 10))
	query.Set("destinationCityId", strconv.FormatInt(in.DestinationID, 10))
	query.Set("weight", strconv.FormatFloat(in.WeightKg, 'f', -1, 64))
	query.Set("currency", in.Currency)

	var resp costResponse
	if err := c.do(ctx, http.MethodGet, costPath, query, nil, &resp, 0); err != nil {
		return decimal.Zero, fmt.Errorf("failed to calculate cost: %w", err)
	}
	if !resp.Cost.Valid || resp.Cost.Decimal.IsNegative() {
		return decimal.Zero, fmt.Errorf("failed to calculate cost: %w: invalid cost", ErrMalformedResponse)
	}
	return resp.Cost.Decimal, nil
}

// Search returns a bounded list of matches for q
func (c *BackendClient) Search(ctx context.Context, kind entity.SearchKind, q string) ([]entity.SearchResult, error) {
	query := url.Values{}
	query.Set("q", q)

	var results []entity.SearchResult
	if err := c.do(ctx, http.MethodGet, "/"+string(kind)+"/search", query, nil, &results, 0); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", kind, err)
	}
	if len(results) > c.searchLimit {
		results = results[:c.searchLimit]
	}
	return results, nil
}

// do executes a JSON request, retrying transient failures up to retries times
func (c *BackendClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, retries int) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	maxAttempts := retries + 1
	made := 0
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var retryable bool
		made = attempt
		retryable, lastErr = c.attempt(ctx, method, reqURL, payload, out)
		if lastErr == nil {
			return nil
		}
		if !retryable || attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		// Wait with growing backoff before retrying
		backoffTime := time.Duration(attempt*attempt) * c.retryDelay
		c.logger.Warn("Backend request failed, retrying", map[string]interface{}{
			"method":   method,
			"path":     path,
			"attempt":  attempt,
			"attempts": maxAttempts,
			"backoff":  backoffTime.String(),
			"error":    lastErr.Error(),
		})

		if err := sleepContext(ctx, backoffTime); err != nil {
			return err
		}
	}

	if made > 1 {
		return fmt.Errorf("failed to execute request after %d attempts: %w", made, lastErr)
	}
	return lastErr
}

// attempt performs one round trip and reports whether its failure is retryable
func (c *BackendClient) attempt(ctx context.Context, method, reqURL string, payload []byte, out interface{}) (bool, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Error closing response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(errBody)}
		return statusErr.Transient(), statusErr
	}

	if out == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
