package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteInput is the tuple a cost quote is derived from
type QuoteInput struct {
	OriginID      int64   `json:"originId"`
	DestinationID int64   `json:"destinationId"`
	WeightKg      float64 `json:"weightKg"`
	Currency      string  `json:"currency"`
}

// Complete reports whether the input is enough to price a shipment.
// Distinct endpoints are validated by the caller.
func (in QuoteInput) Complete() bool {
	return in.OriginID != 0 && in.DestinationID != 0 && in.WeightKg > 0
}

// SameRoute reports whether both inputs describe the same route and weight
func (in QuoteInput) SameRoute(other QuoteInput) bool {
	return in.OriginID == other.OriginID &&
		in.DestinationID == other.DestinationID &&
		in.WeightKg == other.WeightKg
}

// CostQuote is the current derived shipment cost. It is never persisted.
type CostQuote struct {
	OriginID              int64           `json:"originId"`
	DestinationID         int64           `json:"destinationId"`
	WeightKg              float64         `json:"weightKg"`
	Currency              string          `json:"currency"`
	Amount                decimal.Decimal `json:"amount"`
	Formatted             string          `json:"formatted"`
	IsFromFallbackFormula bool            `json:"isFromFallbackFormula"`
	Generation            uint64          `json:"generation"`
	ComputedAt            time.Time       `json:"computedAt"`
}

// Input returns the tuple the quote was computed for
func (q CostQuote) Input() QuoteInput {
	return QuoteInput{
		OriginID:      q.OriginID,
		DestinationID: q.DestinationID,
		WeightKg:      q.WeightKg,
		Currency:      q.Currency,
	}
}
