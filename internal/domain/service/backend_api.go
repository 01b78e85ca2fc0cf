package service

import (
	"context"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// CurrencyAPI defines the remote reference-data endpoints
type CurrencyAPI interface {
	// FetchCurrencies retrieves the currency list
	FetchCurrencies(ctx context.Context) ([]entity.CurrencyInfo, error)

	// FetchRates retrieves the exchange-rate table
	FetchRates(ctx context.Context) ([]entity.ExchangeRate, error)

	// Convert asks the backend to convert an amount
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (*entity.ConversionResult, error)

	// UpdateRate changes one directional rate
	UpdateRate(ctx context.Context, from, to string, rate decimal.Decimal) (*entity.ExchangeRate, error)
}

// PricingAPI defines the remote shipment pricing endpoint
type PricingAPI interface {
	// CalculateCost prices a route and weight in the given currency
	CalculateCost(ctx context.Context, in entity.QuoteInput) (decimal.Decimal, error)
}

// SearchAPI defines the entity name-search endpoints
type SearchAPI interface {
	// Search returns a bounded list of matches for q
	Search(ctx context.Context, kind entity.SearchKind, q string) ([]entity.SearchResult, error)
}
