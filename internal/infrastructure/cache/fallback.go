package cache

import (
	"sort"
	"strings"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// FallbackTable is the last-resort reference data used when the backend
// cannot be reached. The numbers drift from reality and are configurable.
type FallbackTable struct {
	Currencies []entity.CurrencyInfo
	Rates      map[string]decimal.Decimal
}

// DefaultFallback returns the built-in currency list and rate table
func DefaultFallback() FallbackTable {
	return FallbackTable{
		Currencies: []entity.CurrencyInfo{
			{Code: "USD", DisplayName: "US Dollar", Symbol: "$", DecimalPlaces: 2, IsActive: true, IsDefault: true},
			{Code: "CDF", DisplayName: "Franc congolais", Symbol: "FC", DecimalPlaces: 2, IsActive: true},
			{Code: "EUR", DisplayName: "Euro", Symbol: "€", DecimalPlaces: 2, IsActive: true},
		},
		Rates: map[string]decimal.Decimal{
			"USD_CDF": decimal.NewFromInt(2700),
			"CDF_USD": decimal.RequireFromString("0.00037"),
			"USD_EUR": decimal.RequireFromString("0.92"),
			"EUR_USD": decimal.RequireFromString("1.09"),
			"EUR_CDF": decimal.NewFromInt(2935),
			"CDF_EUR": decimal.RequireFromString("0.00034"),
		},
	}
}

// WithRates returns a copy of the table with the given pairs replaced or added
func (f FallbackTable) WithRates(overrides map[string]decimal.Decimal) FallbackTable {
	rates := make(map[string]decimal.Decimal, len(f.Rates)+len(overrides))
	for k, v := range f.Rates {
		rates[k] = v
	}
	for k, v := range overrides {
		if v.IsPositive() {
			rates[strings.ToUpper(k)] = v
		}
	}

	currencies := make([]entity.CurrencyInfo, len(f.Currencies))
	copy(currencies, f.Currencies)

	return FallbackTable{Currencies: currencies, Rates: rates}
}

// Rate looks up a directional fallback rate
func (f FallbackTable) Rate(from, to string) (decimal.Decimal, bool) {
	r, ok := f.Rates[entity.PairKey(from, to)]
	return r, ok
}

// ExchangeRates expands the table into rate entries between known currencies
func (f FallbackTable) ExchangeRates() []entity.ExchangeRate {
	byCode := make(map[string]entity.CurrencyInfo, len(f.Currencies))
	for _, cur := range f.Currencies {
		byCode[cur.Code] = cur
	}

	out := make([]entity.ExchangeRate, 0, len(f.Rates))
	for key, rate := range f.Rates {
		parts := strings.SplitN(key, "_", 2)
		if len(parts) != 2 {
			continue
		}
		from, ok := byCode[parts[0]]
		if !ok {
			from = entity.CurrencyInfo{Code: parts[0], Symbol: parts[0], DecimalPlaces: 2}
		}
		to, ok := byCode[parts[1]]
		if !ok {
			to = entity.CurrencyInfo{Code: parts[1], Symbol: parts[1], DecimalPlaces: 2}
		}
		out = append(out, entity.ExchangeRate{
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         rate,
			IsActive:     true,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
