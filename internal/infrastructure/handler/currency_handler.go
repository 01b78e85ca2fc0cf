// Package handler internal/infrastructure/handler/currency_handler.go
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/damon-houk/waybill-pricing/internal/infrastructure/cache"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/middleware"
	"github.com/gorilla/mux"
)

// CurrencyHandler exposes the reference rate cache over HTTP
type CurrencyHandler struct {
	rates  *cache.ReferenceRateCache
	logger logger.Logger
}

// NewCurrencyHandler creates a new currency handler
func NewCurrencyHandler(rates *cache.ReferenceRateCache, log logger.Logger) *CurrencyHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &CurrencyHandler{
		rates:  rates,
		logger: log,
	}
}

// ListCurrencies returns the active currency list
func (h *CurrencyHandler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	snap := h.rates.Snapshot()

	sendJSON(w, http.StatusOK, CurrenciesResponse{
		Currencies: snap.Currencies(),
		Current:    h.rates.CurrentCurrency(),
		Source:     snap.CurrencySource(),
		Generation: snap.Generation(),
	})
}

// ListRates returns the active rate table
func (h *CurrencyHandler) ListRates(w http.ResponseWriter, r *http.Request) {
	snap := h.rates.Snapshot()

	sendJSON(w, http.StatusOK, RatesResponse{
		Rates:      snap.Rates(),
		Source:     snap.RateSource(),
		Generation: snap.Generation(),
		LoadedAt:   snap.LoadedAt(),
	})
}

// Convert converts an amount; it degrades to local rates rather than failing
func (h *CurrencyHandler) Convert(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req ConvertRequest
	if err := decodeBody(r, &req); err != nil {
		h.logger.Warn("Invalid request body", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	if strings.TrimSpace(req.FromCurrency) == "" || strings.TrimSpace(req.ToCurrency) == "" {
		sendErrorResponse(w, h.logger, "Missing currency",
			"Both fromCurrency and toCurrency are required", http.StatusBadRequest, requestID)
		return
	}

	res := h.rates.Convert(r.Context(), req.Amount, req.FromCurrency, req.ToCurrency)

	h.logger.Debug("Amount converted", map[string]interface{}{
		"request_id": requestID,
		"from":       res.From,
		"to":         res.To,
		"source":     string(res.Source),
	})

	sendJSON(w, http.StatusOK, res)
}

// UpdateRate applies an admin rate edit and reloads the table
func (h *CurrencyHandler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req UpdateRateRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	updated, err := h.rates.UpdateRate(r.Context(), req.FromCurrency, req.ToCurrency, req.Rate)
	if err != nil {
		if errors.Is(err, cache.ErrInvalidRate) {
			sendErrorResponse(w, h.logger, "Invalid exchange rate",
				"Rate must be positive and between two different currencies", http.StatusBadRequest, requestID)
			return
		}
		h.logger.Error("Rate update failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Rate update failed",
			"The backend rejected or could not apply the rate update", http.StatusBadGateway, requestID)
		return
	}

	h.logger.Info("Exchange rate updated", map[string]interface{}{
		"request_id": requestID,
		"pair":       updated.Key(),
		"rate":       updated.Rate.String(),
	})

	sendJSON(w, http.StatusOK, updated)
}

// Refresh reloads currencies and rates now
func (h *CurrencyHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap := h.rates.Refresh(r.Context())

	sendJSON(w, http.StatusOK, SnapshotResponse{
		Generation:     snap.Generation(),
		LoadedAt:       snap.LoadedAt(),
		CurrencySource: snap.CurrencySource(),
		RateSource:     snap.RateSource(),
		Currencies:     len(snap.Currencies()),
		Rates:          len(snap.Rates()),
		Degraded:       snap.Degraded(),
	})
}

// Format renders an amount with a currency's display rules
func (h *CurrencyHandler) Format(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req FormatRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	currency := req.Currency
	if strings.TrimSpace(currency) == "" {
		currency = h.rates.CurrentCurrency()
	}

	sendJSON(w, http.StatusOK, FormatResponse{Formatted: h.rates.FormatAmount(req.Amount, currency)})
}

// GetCurrent returns the preferred display currency
func (h *CurrencyHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, CurrentCurrencyResponse{Currency: h.rates.CurrentCurrency(), Applied: true})
}

// SetCurrent changes the preferred display currency. Unsupported codes are ignored.
func (h *CurrencyHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req CurrentCurrencyRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	applied := h.rates.SetCurrentCurrency(r.Context(), req.Currency)

	h.logger.Info("Display currency change requested", map[string]interface{}{
		"request_id": requestID,
		"currency":   req.Currency,
		"applied":    applied,
	})

	sendJSON(w, http.StatusOK, CurrentCurrencyResponse{Currency: h.rates.CurrentCurrency(), Applied: applied})
}

// RegisterRoutes registers the currency handler routes
func (h *CurrencyHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/currencies", h.ListCurrencies).Methods(http.MethodGet)
	router.HandleFunc("/currencies/rates", h.ListRates).Methods(http.MethodGet)
	router.HandleFunc("/currencies/rates", h.UpdateRate).Methods(http.MethodPut)
	router.HandleFunc("/currencies/convert", h.Convert).Methods(http.MethodPost)
	router.HandleFunc("/currencies/refresh", h.Refresh).Methods(http.MethodPost)
	router.HandleFunc("/currencies/format", h.Format).Methods(http.MethodPost)
	router.HandleFunc("/currencies/current", h.GetCurrent).Methods(http.MethodGet)
	router.HandleFunc("/currencies/current", h.SetCurrent).Methods(http.MethodPut)

	h.logger.Info("Currency routes registered", map[string]interface{}{
		"routes": []string{
			"GET /currencies",
			"GET /currencies/rates",
			"PUT /currencies/rates",
			"POST /currencies/convert",
			"POST /currencies/refresh",
			"POST /currencies/format",
			"GET /currencies/current",
			"PUT /currencies/current",
		},
	})
}
