// Package service internal/application/service/cost_pipeline.go
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/damon-houk/waybill-pricing/internal/domain/service"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/concurrency"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
)

// DisplayCurrency is the source of the preferred display currency and its formatting rules
type DisplayCurrency interface {
	CurrentCurrency() string
	OnCurrencyChange(fn func(code string)) (unsubscribe func())
	FormatAmount(amount decimal.Decimal, code string) string
}

// DefaultBaseRatesPerKg is the per-kg tariff used when remote pricing fails
func DefaultBaseRatesPerKg() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("2.50"),
		"EUR": decimal.RequireFromString("2.30"),
		"CDF": decimal.NewFromInt(6750),
	}
}

// CostPipelineOptions configures a CostPipeline
type CostPipelineOptions struct {
	Debounce        time.Duration
	BaseRatesPerKg  map[string]decimal.Decimal
	DefaultCurrency string
}

// CostPipeline keeps one shipment cost quote in sync with its route, weight
// and display currency. Only the latest issued pricing request may publish.
type CostPipeline struct {
	pricing   service.PricingAPI
	display   DisplayCurrency
	baseRates map[string]decimal.Decimal
	defaultCC string
	logger    logger.Logger

	seq       concurrency.Sequencer
	debouncer *concurrency.Debouncer

	ctx      context.Context
	stop     context.CancelFunc
	inflight sync.WaitGroup

	// notifyMu orders publication so subscribers see quotes in token order
	notifyMu sync.Mutex

	mu              sync.Mutex
	input           entity.QuoteInput
	quote           *entity.CostQuote
	priced          *entity.QuoteInput // input of the visible or in-flight quote
	pending         bool               // latest request has not published yet
	cancelRequest   context.CancelFunc
	subs            map[int]func(*entity.CostQuote)
	nextSubID       int
	closed          bool
	unwatchCurrency func()
}

// NewCostPipeline creates a pipeline priced by pricing and formatted by display
func NewCostPipeline(pricing service.PricingAPI, display DisplayCurrency, opts CostPipelineOptions, log logger.Logger) *CostPipeline {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	baseRates := DefaultBaseRatesPerKg()
	for code, r := range opts.BaseRatesPerKg {
		baseRates[strings.ToUpper(code)] = r
	}

	defaultCC := strings.ToUpper(opts.DefaultCurrency)
	if defaultCC == "" {
		defaultCC = "USD"
	}

	ctx, stop := context.WithCancel(context.Background())

	p := &CostPipeline{
		pricing:   pricing,
		display:   display,
		baseRates: baseRates,
		defaultCC: defaultCC,
		logger:    log.WithField("component", "cost_pipeline"),
		ctx:       ctx,
		stop:      stop,
		subs:      make(map[int]func(*entity.CostQuote)),
	}
	p.input.Currency = display.CurrentCurrency()
	p.debouncer = concurrency.NewDebouncer(opts.Debounce, p.recompute)
	p.unwatchCurrency = display.OnCurrencyChange(p.currencyChanged)

	return p
}

// SetOrigin changes the origin city
func (p *CostPipeline) SetOrigin(id int64) {
	p.update(func(in *entity.QuoteInput) { in.OriginID = id })
}

// SetDestination changes the destination city
func (p *CostPipeline) SetDestination(id int64) {
	p.update(func(in *entity.QuoteInput) { in.DestinationID = id })
}

// SetWeight changes the shipment weight in kilograms
func (p *CostPipeline) SetWeight(kg float64) {
	p.update(func(in *entity.QuoteInput) { in.WeightKg = kg })
}

// SetRoute changes origin, destination and weight as one input change
func (p *CostPipeline) SetRoute(originID, destinationID int64, kg float64) {
	p.update(func(in *entity.QuoteInput) {
		in.OriginID = originID
		in.DestinationID = destinationID
		in.WeightKg = kg
	})
}

// Input returns the current input tuple
func (p *CostPipeline) Input() entity.QuoteInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}

// Quote returns the current quote, if any
func (p *CostPipeline) Quote() (entity.CostQuote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quote == nil {
		return entity.CostQuote{}, false
	}
	return *p.quote, true
}

// Subscribe registers fn for every published quote. A nil quote means cleared.
func (p *CostPipeline) Subscribe(fn func(*entity.CostQuote)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Close stops the pipeline and waits for an in-flight request to finish
func (p *CostPipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unwatch := p.unwatchCurrency
	p.mu.Unlock()

	unwatch()
	p.debouncer.Stop()
	p.seq.Invalidate()
	p.stop()
	p.inflight.Wait()
}

func (p *CostPipeline) update(apply func(in *entity.QuoteInput)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	before := p.input
	apply(&p.input)
	changed := p.input != before
	p.mu.Unlock()

	if changed {
		p.debouncer.Trigger()
	}
}

// recompute runs when the inputs have been quiet for the debounce period
func (p *CostPipeline) recompute() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	in := p.input
	if in.Complete() && p.priced != nil && *p.priced == in {
		p.mu.Unlock()
		p.logger.Debug("Input already priced, skipping", map[string]interface{}{
			"origin_id":      in.OriginID,
			"destination_id": in.DestinationID,
			"weight_kg":      in.WeightKg,
		})
		return
	}

	if p.cancelRequest != nil {
		p.cancelRequest()
		p.cancelRequest = nil
	}
	token := p.seq.Issue()

	if !in.Complete() {
		p.priced = nil
		p.pending = false
		p.mu.Unlock()
		p.publish(token, nil)
		return
	}

	priced := in
	p.priced = &priced
	p.pending = true
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancelRequest = cancel
	p.inflight.Add(1)
	p.mu.Unlock()

	defer p.inflight.Done()
	defer cancel()

	quote := entity.CostQuote{
		OriginID:      in.OriginID,
		DestinationID: in.DestinationID,
		WeightKg:      in.WeightKg,
		Currency:      in.Currency,
		Generation:    uint64(token),
	}

	amount, err := p.pricing.CalculateCost(ctx, in)
	if err != nil {
		if !p.seq.IsCurrent(token) {
			return
		}
		amount = p.fallbackAmount(in)
		quote.IsFromFallbackFormula = true

		p.logger.Warn("Remote pricing failed, using fallback formula", map[string]interface{}{
			"origin_id":      in.OriginID,
			"destination_id": in.DestinationID,
			"weight_kg":      in.WeightKg,
			"currency":       in.Currency,
			"amount":         amount.String(),
			"error":          err.Error(),
		})
	}

	quote.Amount = amount
	quote.ComputedAt = time.Now()

	if !p.publish(token, &quote) {
		p.logger.Debug("Discarding superseded pricing result", map[string]interface{}{
			"generation": uint64(token),
		})
	}
}

// fallbackAmount is weight × base rate per kg; unknown currencies use the default currency's rate
func (p *CostPipeline) fallbackAmount(in entity.QuoteInput) decimal.Decimal {
	baseRate, ok := p.baseRates[strings.ToUpper(in.Currency)]
	if !ok {
		baseRate = p.baseRates[p.defaultCC]
	}
	return decimal.NewFromFloat(in.WeightKg).Mul(baseRate)
}

// currencyChanged reformats the known amount without a remote call. A request
// still in flight was priced in the old currency, so it is reissued instead.
func (p *CostPipeline) currencyChanged(code string) {
	p.mu.Lock()
	if p.closed || p.input.Currency == code {
		p.mu.Unlock()
		return
	}
	p.input.Currency = code

	if p.pending {
		p.seq.Invalidate()
		if p.cancelRequest != nil {
			p.cancelRequest()
			p.cancelRequest = nil
		}
		p.priced = nil
		p.pending = false
		p.mu.Unlock()

		p.logger.Debug("Display currency changed while pricing, repricing", map[string]interface{}{
			"currency": code,
		})
		p.debouncer.Trigger()
		return
	}

	current := p.quote
	p.mu.Unlock()

	if current == nil {
		return
	}

	reformatted := *current
	p.publish(concurrency.Token(current.Generation), &reformatted)
}

// publish installs q if token is still the latest; the display currency
// at publication time decides the formatting
func (p *CostPipeline) publish(token concurrency.Token, q *entity.CostQuote) bool {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.closed || !p.seq.IsCurrent(token) {
		p.mu.Unlock()
		return false
	}

	if q != nil {
		q.Currency = p.input.Currency
		q.Formatted = p.display.FormatAmount(q.Amount, q.Currency)
	}
	p.quote = q
	p.pending = false

	subs := make([]func(*entity.CostQuote), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		if q == nil {
			fn(nil)
			continue
		}
		c := *q
		fn(&c)
	}
	return true
}
