package handler

import (
	"time"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// CurrenciesResponse represents the response for the currency list endpoint
type CurrenciesResponse struct {
	Currencies []entity.CurrencyInfo `json:"currencies"`
	Current    string                `json:"current"`
	Source     entity.Source         `json:"source"`
	Generation uint64                `json:"generation"`
}

// RatesResponse represents the response for the rate table endpoint
type RatesResponse struct {
	Rates      []entity.ExchangeRate `json:"rates"`
	Source     entity.Source         `json:"source"`
	Generation uint64                `json:"generation"`
	LoadedAt   time.Time             `json:"loadedAt"`
}

// SnapshotResponse summarizes a published snapshot
type SnapshotResponse struct {
	Generation     uint64        `json:"generation"`
	LoadedAt       time.Time     `json:"loadedAt"`
	CurrencySource entity.Source `json:"currencySource"`
	RateSource     entity.Source `json:"rateSource"`
	Currencies     int           `json:"currencies"`
	Rates          int           `json:"rates"`
	Degraded       bool          `json:"degraded"`
}

// ConvertRequest represents the request body for the conversion endpoint
type ConvertRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
}

// UpdateRateRequest represents the request body for an admin rate edit
type UpdateRateRequest struct {
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	Rate         decimal.Decimal `json:"rate"`
}

// FormatRequest represents the request body for the format endpoint
type FormatRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// FormatResponse represents the response for the format endpoint
type FormatResponse struct {
	Formatted string `json:"formatted"`
}

// CurrentCurrencyRequest represents the request body for changing the display currency
type CurrentCurrencyRequest struct {
	Currency string `json:"currency"`
}

// CurrentCurrencyResponse reports the display currency; Applied is false
// when an unsupported code was ignored
type CurrentCurrencyResponse struct {
	Currency string `json:"currency"`
	Applied  bool   `json:"applied"`
}

// QuoteInputRequest represents a partial change of quote inputs; absent fields are kept
type QuoteInputRequest struct {
	OriginID      *int64   `json:"originId,omitempty"`
	DestinationID *int64   `json:"destinationId,omitempty"`
	WeightKg      *float64 `json:"weightKg,omitempty"`
}

// QuoteResponse represents the state of a quote session
type QuoteResponse struct {
	ID    string            `json:"id"`
	Input entity.QuoteInput `json:"input"`
	Quote *entity.CostQuote `json:"quote"`
}

// CreateSessionResponse represents the response for session creation endpoints
type CreateSessionResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

// SearchInputRequest represents the raw text of an autocomplete box
type SearchInputRequest struct {
	Text string `json:"text"`
}

// NavKeyRequest represents a keyboard key sent to an autocomplete list
type NavKeyRequest struct {
	Key entity.NavKey `json:"key"`
}

// AutocompleteResponse represents the state of an autocomplete session
type AutocompleteResponse struct {
	ID   string            `json:"id"`
	Kind entity.SearchKind `json:"kind"`
	entity.NavState
}
