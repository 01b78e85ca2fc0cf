package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/damon-houk/waybill-pricing/internal/domain/repository"
	"github.com/damon-houk/waybill-pricing/internal/domain/service"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/concurrency"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	flightCurrencies = "currencies"
	flightRates      = "rates"
	flightAll        = "all"
)

var (
	// ErrInvalidRate is returned when an admin rate edit is not a positive rate between two currencies
	ErrInvalidRate = errors.New("invalid exchange rate")

	errEmptyCurrencies = errors.New("backend returned no active currency")
)

// Options configures the reference rate cache
type Options struct {
	RefreshInterval time.Duration
	PreferenceKey   string
	DefaultCurrency string
	Fallback        FallbackTable
}

// ReferenceRateCache owns the current currency/rate snapshot, keeps it fresh
// and substitutes the fallback table when the backend is unavailable.
type ReferenceRateCache struct {
	api    service.CurrencyAPI
	prefs  repository.PreferenceRepository
	logger logger.Logger
	opts   Options

	snapshot    atomic.Pointer[Snapshot]
	generation  atomic.Uint64
	writeMu     sync.Mutex
	currencySeq concurrency.Sequencer
	rateSeq     concurrency.Sequencer
	flights     singleflight.Group

	mu           sync.RWMutex
	current      string
	nextSubID    int
	snapshotSubs map[int]func(*Snapshot)
	currencySubs map[int]func(string)

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReferenceRateCache creates a cache serving the fallback snapshot until Start loads live data
func NewReferenceRateCache(api service.CurrencyAPI, prefs repository.PreferenceRepository, opts Options, log logger.Logger) *ReferenceRateCache {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.PreferenceKey == "" {
		opts.PreferenceKey = "preferred_currency"
	}
	if len(opts.Fallback.Currencies) == 0 {
		opts.Fallback = DefaultFallback().WithRates(opts.Fallback.Rates)
	}
	opts.DefaultCurrency = strings.ToUpper(opts.DefaultCurrency)

	c := &ReferenceRateCache{
		api:          api,
		prefs:        prefs,
		logger:       log.WithField("component", "reference_rate_cache"),
		opts:         opts,
		snapshotSubs: make(map[int]func(*Snapshot)),
		currencySubs: make(map[int]func(string)),
	}

	initial := newSnapshot(c.generation.Add(1),
		opts.Fallback.Currencies, entity.SourceFallback,
		opts.Fallback.ExchangeRates(), entity.SourceFallback)
	c.snapshot.Store(initial)
	c.current = initial.DefaultCode(opts.DefaultCurrency)
	if initial.Supports(opts.DefaultCurrency) {
		c.current = opts.DefaultCurrency
	}

	return c
}

// Snapshot returns the last published snapshot. It never blocks.
func (c *ReferenceRateCache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Currencies returns the current currency list. It is never empty.
func (c *ReferenceRateCache) Currencies() []entity.CurrencyInfo {
	return c.Snapshot().Currencies()
}

// Rates returns the current rate table
func (c *ReferenceRateCache) Rates() []entity.ExchangeRate {
	return c.Snapshot().Rates()
}

// Start loads the persisted preference and the initial data, then refreshes
// rates on the configured interval until Stop is called or ctx ends.
func (c *ReferenceRateCache) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return
	}
	c.running = true

	preferred := c.loadPreference(ctx)
	c.Refresh(ctx)

	if preferred != "" {
		if c.Snapshot().Supports(preferred) {
			c.setCurrent(preferred)
		} else {
			c.logger.Info("Ignoring unsupported persisted currency", map[string]interface{}{
				"currency": preferred,
			})
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.refreshLoop(loopCtx)

	c.logger.Info("Reference rate cache started", map[string]interface{}{
		"refresh_interval": c.opts.RefreshInterval.String(),
		"currency":         c.CurrentCurrency(),
	})
}

// Stop ends the periodic refresh and waits for it to exit
func (c *ReferenceRateCache) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.running = false
}

func (c *ReferenceRateCache) refreshLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshRates(ctx)
		}
	}
}

// Refresh reloads currencies and rates and publishes them as one snapshot
func (c *ReferenceRateCache) Refresh(ctx context.Context) *Snapshot {
	v, _, _ := c.flights.Do(flightAll, func() (interface{}, error) {
		currencyToken := c.currencySeq.Issue()
		rateToken := c.rateSeq.Issue()

		currencies, currencyErr := c.fetchCurrencies(ctx)
		rates, rateErr := c.fetchRates(ctx)

		return c.apply(ctx, &load{
			currencies: currencies, currencyErr: currencyErr, currencyToken: currencyToken, withCurrencies: true,
			rates: rates, rateErr: rateErr, rateToken: rateToken, withRates: true,
		}), nil
	})
	return v.(*Snapshot)
}

// RefreshCurrencies reloads the currency list
func (c *ReferenceRateCache) RefreshCurrencies(ctx context.Context) *Snapshot {
	v, _, _ := c.flights.Do(flightCurrencies, func() (interface{}, error) {
		token := c.currencySeq.Issue()
		currencies, err := c.fetchCurrencies(ctx)
		return c.apply(ctx, &load{
			currencies: currencies, currencyErr: err, currencyToken: token, withCurrencies: true,
		}), nil
	})
	return v.(*Snapshot)
}

// RefreshRates reloads the exchange-rate table
func (c *ReferenceRateCache) RefreshRates(ctx context.Context) *Snapshot {
	v, _, _ := c.flights.Do(flightRates, func() (interface{}, error) {
		token := c.rateSeq.Issue()
		rates, err := c.fetchRates(ctx)
		return c.apply(ctx, &load{
			rates: rates, rateErr: err, rateToken: token, withRates: true,
		}), nil
	})
	return v.(*Snapshot)
}

func (c *ReferenceRateCache) fetchCurrencies(ctx context.Context) ([]entity.CurrencyInfo, error) {
	currencies, err := c.api.FetchCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateCurrencies(currencies); err != nil {
		return nil, err
	}
	return currencies, nil
}

func (c *ReferenceRateCache) fetchRates(ctx context.Context) ([]entity.ExchangeRate, error) {
	rates, err := c.api.FetchRates(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateRates(rates); err != nil {
		return nil, err
	}
	return rates, nil
}

func validateCurrencies(currencies []entity.CurrencyInfo) error {
	seen := make(map[string]struct{}, len(currencies))
	active := 0
	for _, cur := range currencies {
		code := strings.ToUpper(cur.Code)
		if code == "" {
			return fmt.Errorf("currency without code")
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("duplicate currency code %s", code)
		}
		seen[code] = struct{}{}
		if cur.IsActive {
			active++
		}
	}
	if active == 0 {
		return errEmptyCurrencies
	}
	return nil
}

func validateRates(rates []entity.ExchangeRate) error {
	for _, r := range rates {
		if !r.IsActive {
			continue
		}
		if r.FromCurrency.Code == "" || r.ToCurrency.Code == "" {
			return fmt.Errorf("rate without currency code")
		}
		if !r.Rate.IsPositive() {
			return fmt.Errorf("non-positive rate for %s", r.Key())
		}
	}
	return nil
}

// load carries the outcome of one refresh
type load struct {
	currencies     []entity.CurrencyInfo
	currencyErr    error
	currencyToken  concurrency.Token
	withCurrencies bool

	rates     []entity.ExchangeRate
	rateErr   error
	rateToken concurrency.Token
	withRates bool
}

// apply publishes a new snapshot built from the latest results. Halves whose
// token was superseded keep the current data; failed halves use the fallback.
func (c *ReferenceRateCache) apply(ctx context.Context, l *load) *Snapshot {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.snapshot.Load()
	currencies, currencySource := cur.currencies, cur.currencySource
	rates, rateSource := cur.rates, cur.rateSource
	changed := false

	if l.withCurrencies {
		switch {
		case !c.currencySeq.IsCurrent(l.currencyToken):
			c.logger.Debug("Discarding superseded currency load", nil)
		case l.currencyErr != nil && ctx.Err() != nil:
			c.logger.Debug("Currency load cancelled", map[string]interface{}{"error": l.currencyErr.Error()})
		case l.currencyErr != nil:
			c.logger.Warn("Currency load failed, using fallback table", map[string]interface{}{
				"error": l.currencyErr.Error(),
			})
			currencies, currencySource = c.opts.Fallback.Currencies, entity.SourceFallback
			changed = true
		default:
			currencies, currencySource = l.currencies, entity.SourceLive
			changed = true
		}
	}

	if l.withRates {
		switch {
		case !c.rateSeq.IsCurrent(l.rateToken):
			c.logger.Debug("Discarding superseded rate load", nil)
		case l.rateErr != nil && ctx.Err() != nil:
			c.logger.Debug("Rate load cancelled", map[string]interface{}{"error": l.rateErr.Error()})
		case l.rateErr != nil:
			c.logger.Warn("Rate load failed, using fallback table", map[string]interface{}{
				"error": l.rateErr.Error(),
			})
			rates, rateSource = c.opts.Fallback.ExchangeRates(), entity.SourceFallback
			changed = true
		default:
			rates, rateSource = l.rates, entity.SourceLive
			changed = true
		}
	}

	if !changed {
		return cur
	}

	next := newSnapshot(c.generation.Add(1), currencies, currencySource, rates, rateSource)
	c.snapshot.Store(next)

	c.logger.Info("Reference data published", map[string]interface{}{
		"generation":      next.Generation(),
		"currencies":      len(next.currencies),
		"rates":           len(next.rates),
		"currency_source": string(next.currencySource),
		"rate_source":     string(next.rateSource),
	})

	// the current currency must stay within the supported set
	if !next.Supports(c.CurrentCurrency()) {
		c.setCurrent(next.DefaultCode(c.opts.DefaultCurrency))
	}

	c.mu.RLock()
	subs := make([]func(*Snapshot), 0, len(c.snapshotSubs))
	for _, fn := range c.snapshotSubs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(next)
	}

	return next
}

// Subscribe registers fn for every published snapshot. fn must not refresh the cache.
func (c *ReferenceRateCache) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.snapshotSubs[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.snapshotSubs, id)
		c.mu.Unlock()
	}
}

// Convert converts amount between currencies. It never fails: when the
// backend is unavailable the cached rate, then the fallback rate, then 1 is used.
func (c *ReferenceRateCache) Convert(ctx context.Context, amount decimal.Decimal, from, to string) entity.ConversionResult {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if from == to {
		return entity.ConversionResult{
			OriginalAmount:  amount,
			ConvertedAmount: amount,
			Rate:            decimal.NewFromInt(1),
			FormattedAmount: c.FormatAmount(amount, to),
			From:            from,
			To:              to,
			Source:          entity.SourceIdentity,
		}
	}

	// joined callers share the call, so one caller's cancellation must not end it
	key := "convert:" + amount.String() + ":" + entity.PairKey(from, to)
	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		return c.api.Convert(context.WithoutCancel(ctx), amount, from, to)
	})
	if err == nil {
		res := *v.(*entity.ConversionResult)
		if res.FormattedAmount == "" {
			res.FormattedAmount = c.FormatAmount(res.ConvertedAmount, to)
		}
		return res
	}

	rate, source := c.localRate(from, to)
	converted := amount.Mul(rate)

	c.logger.Warn("Remote conversion failed, converting locally", map[string]interface{}{
		"from":   from,
		"to":     to,
		"rate":   rate.String(),
		"source": string(source),
		"error":  err.Error(),
	})

	return entity.ConversionResult{
		OriginalAmount:  amount,
		ConvertedAmount: converted,
		Rate:            rate,
		FormattedAmount: c.FormatAmount(converted, to),
		From:            from,
		To:              to,
		Source:          source,
	}
}

// localRate resolves a rate from the cached table, then the fallback table, then identity
func (c *ReferenceRateCache) localRate(from, to string) (decimal.Decimal, entity.Source) {
	snap := c.Snapshot()
	if r, ok := snap.Rate(from, to); ok {
		if snap.RateSource() == entity.SourceFallback {
			return r, entity.SourceFallback
		}
		return r, entity.SourceCache
	}
	if r, ok := c.opts.Fallback.Rate(from, to); ok {
		return r, entity.SourceFallback
	}
	return decimal.NewFromInt(1), entity.SourceFallback
}

// UpdateRate edits one rate on the backend and then reloads the whole table
func (c *ReferenceRateCache) UpdateRate(ctx context.Context, from, to string, rate decimal.Decimal) (*entity.ExchangeRate, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if from == "" || to == "" || from == to || !rate.IsPositive() {
		return nil, ErrInvalidRate
	}

	updated, err := c.api.UpdateRate(ctx, from, to, rate)
	if err != nil {
		c.logger.Error("Failed to update exchange rate", map[string]interface{}{
			"from":  from,
			"to":    to,
			"error": err.Error(),
		})
		return nil, err
	}

	// an in-flight reload started before the edit must not be joined
	c.flights.Forget(flightRates)
	c.RefreshRates(ctx)

	return updated, nil
}

// CurrentCurrency returns the preferred display currency
func (c *ReferenceRateCache) CurrentCurrency() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SetCurrentCurrency changes and persists the preferred display currency.
// Unsupported codes are ignored and false is returned.
func (c *ReferenceRateCache) SetCurrentCurrency(ctx context.Context, code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))

	if !c.Snapshot().Supports(code) {
		c.logger.Debug("Rejected unsupported currency", map[string]interface{}{"currency": code})
		return false
	}

	c.setCurrent(code)

	if c.prefs != nil {
		if err := c.prefs.Set(ctx, c.opts.PreferenceKey, code); err != nil {
			c.logger.Warn("Failed to persist currency preference", map[string]interface{}{
				"currency": code,
				"error":    err.Error(),
			})
		}
	}
	return true
}

// OnCurrencyChange registers fn for changes of the preferred display currency
func (c *ReferenceRateCache) OnCurrencyChange(fn func(code string)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.currencySubs[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.currencySubs, id)
		c.mu.Unlock()
	}
}

func (c *ReferenceRateCache) setCurrent(code string) {
	c.mu.Lock()
	if c.current == code {
		c.mu.Unlock()
		return
	}
	c.current = code
	subs := make([]func(string), 0, len(c.currencySubs))
	for _, fn := range c.currencySubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(code)
	}
}

func (c *ReferenceRateCache) loadPreference(ctx context.Context) string {
	if c.prefs == nil {
		return ""
	}

	code, err := c.prefs.Get(ctx, c.opts.PreferenceKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.logger.Warn("Failed to load currency preference", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(code))
}
