package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source tags where a reference value came from. It is diagnostic only.
type Source string

const (
	// SourceLive is data returned by the backend
	SourceLive Source = "live"
	// SourceCache is data computed from the cached snapshot
	SourceCache Source = "cache"
	// SourceFallback is data taken from the static fallback table
	SourceFallback Source = "fallback"
	// SourceIdentity marks a same-currency conversion
	SourceIdentity Source = "identity"
)

// CurrencyInfo describes one currency supported by the back office
type CurrencyInfo struct {
	Code          string `json:"code"`
	DisplayName   string `json:"displayName"`
	Symbol        string `json:"symbol"`
	DecimalPlaces int32  `json:"decimalPlaces"`
	IsActive      bool   `json:"isActive"`
	IsDefault     bool   `json:"isDefault"`
}

// ExchangeRate represents a directional conversion rate between two currencies
type ExchangeRate struct {
	FromCurrency  CurrencyInfo    `json:"fromCurrency"`
	ToCurrency    CurrencyInfo    `json:"toCurrency"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate time.Time       `json:"effectiveDate"`
	IsActive      bool            `json:"isActive"`
}

// PairKey returns the lookup key for a directional rate, e.g. USD_CDF
func PairKey(from, to string) string {
	return strings.ToUpper(from) + "_" + strings.ToUpper(to)
}

// Key returns the pair key of the rate
func (r ExchangeRate) Key() string {
	return PairKey(r.FromCurrency.Code, r.ToCurrency.Code)
}

// ConversionResult is the outcome of converting an amount between currencies
type ConversionResult struct {
	OriginalAmount  decimal.Decimal `json:"originalAmount"`
	ConvertedAmount decimal.Decimal `json:"convertedAmount"`
	Rate            decimal.Decimal `json:"rate"`
	FormattedAmount string          `json:"formattedAmount"`
	From            string          `json:"fromCurrency"`
	To              string          `json:"toCurrency"`
	Source          Source          `json:"source"`
}
