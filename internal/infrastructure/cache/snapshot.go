package cache

import (
	"strings"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of the currency list and rate table.
// A refresh publishes a new Snapshot instead of mutating the current one.
type Snapshot struct {
	generation     uint64
	loadedAt       time.Time
	currencies     []entity.CurrencyInfo
	rates          []entity.ExchangeRate
	currencySource entity.Source
	rateSource     entity.Source

	byCode map[string]entity.CurrencyInfo
	byPair map[string]decimal.Decimal
}

func newSnapshot(generation uint64, currencies []entity.CurrencyInfo, currencySource entity.Source,
	rates []entity.ExchangeRate, rateSource entity.Source) *Snapshot {
	s := &Snapshot{
		generation:     generation,
		loadedAt:       time.Now(),
		currencySource: currencySource,
		rateSource:     rateSource,
		byCode:         make(map[string]entity.CurrencyInfo, len(currencies)),
		byPair:         make(map[string]decimal.Decimal, len(rates)),
	}

	for _, cur := range currencies {
		if !cur.IsActive {
			continue
		}
		cur.Code = strings.ToUpper(cur.Code)
		s.currencies = append(s.currencies, cur)
		s.byCode[cur.Code] = cur
	}

	for _, r := range rates {
		if !r.IsActive || !r.Rate.IsPositive() {
			continue
		}
		s.rates = append(s.rates, r)
		s.byPair[r.Key()] = r.Rate
	}

	return s
}

// Generation increases with every published snapshot
func (s *Snapshot) Generation() uint64 { return s.generation }

// LoadedAt is when the snapshot was built
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// CurrencySource tells whether the currency list is live or fallback data
func (s *Snapshot) CurrencySource() entity.Source { return s.currencySource }

// RateSource tells whether the rate table is live or fallback data
func (s *Snapshot) RateSource() entity.Source { return s.rateSource }

// Degraded reports whether any part of the snapshot comes from the fallback table
func (s *Snapshot) Degraded() bool {
	return s.currencySource == entity.SourceFallback || s.rateSource == entity.SourceFallback
}

// Currencies returns a copy of the active currency list
func (s *Snapshot) Currencies() []entity.CurrencyInfo {
	out := make([]entity.CurrencyInfo, len(s.currencies))
	copy(out, s.currencies)
	return out
}

// Rates returns a copy of the active rate table
func (s *Snapshot) Rates() []entity.ExchangeRate {
	out := make([]entity.ExchangeRate, len(s.rates))
	copy(out, s.rates)
	return out
}

// Currency looks up an active currency by code
func (s *Snapshot) Currency(code string) (entity.CurrencyInfo, bool) {
	cur, ok := s.byCode[strings.ToUpper(code)]
	return cur, ok
}

// Supports reports whether code is an active currency
func (s *Snapshot) Supports(code string) bool {
	_, ok := s.Currency(code)
	return ok
}

// Rate looks up a directional rate
func (s *Snapshot) Rate(from, to string) (decimal.Decimal, bool) {
	r, ok := s.byPair[entity.PairKey(from, to)]
	return r, ok
}

// DefaultCode returns the currency flagged as default, else preferred if
// supported, else the first active currency
func (s *Snapshot) DefaultCode(preferred string) string {
	for _, cur := range s.currencies {
		if cur.IsDefault {
			return cur.Code
		}
	}
	if s.Supports(preferred) {
		return strings.ToUpper(preferred)
	}
	if len(s.currencies) > 0 {
		return s.currencies[0].Code
	}
	return strings.ToUpper(preferred)
}
