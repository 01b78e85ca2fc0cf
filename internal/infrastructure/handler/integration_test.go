// internal/infrastructure/handler/integration_test.go
package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/application/service"
	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/api"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/cache"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/db"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/handler"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/middleware"
	"github.com/dgraph-io/badger/v3"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 20 * time.Millisecond

// fakeBackOffice stands in for the back-office REST API
type fakeBackOffice struct {
	costFails   atomic.Bool
	searchCalls atomic.Int32
}

func (f *fakeBackOffice) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/currencies", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"code":"USD","displayName":"US Dollar","symbol":"$","decimalPlaces":2,"isActive":true,"isDefault":true},
			{"code":"CDF","displayName":"Franc congolais","symbol":"FC","decimalPlaces":2,"isActive":true},
			{"code":"EUR","displayName":"Euro","symbol":"€","decimalPlaces":2,"isActive":true}
		]`))
	}).Methods(http.MethodGet)
	r.HandleFunc("/currencies/rates", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"fromCurrency":{"code":"USD"},"toCurrency":{"code":"CDF"},"rate":2800,"isActive":true}]`))
	}).Methods(http.MethodGet)
	r.HandleFunc("/lta/calculate-cost", func(w http.ResponseWriter, r *http.Request) {
		if f.costFails.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"cost":25.00}`))
	}).Methods(http.MethodGet)
	r.HandleFunc("/cities/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		w.Write([]byte(`[{"id":1,"name":"Kinshasa"},{"id":3,"name":"Kisangani"},{"id":4,"name":"Kikwit"}]`))
	}).Methods(http.MethodGet)
	return r
}

type testEnv struct {
	server  *httptest.Server
	backend *fakeBackOffice
	prefs   *db.BadgerPreferenceRepository
}

// setupTestServer wires the full stack against a fake back office
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	backend := &fakeBackOffice{}
	backendServer := httptest.NewServer(backend.handler())
	t.Cleanup(backendServer.Close)

	badgerOpts := badger.DefaultOptions(t.TempDir())
	badgerOpts.Logger = nil
	badgerOpts.SyncWrites = false

	badgerDB, err := badger.Open(badgerOpts)
	require.NoError(t, err)
	t.Cleanup(func() { badgerDB.Close() })

	log := logger.NewJSONLogger(io.Discard, logger.ErrorLevel)
	prefs := db.NewBadgerPreferenceRepository(badgerDB)

	client := api.NewBackendClient(nil, api.Options{
		BaseURL:     backendServer.URL,
		Timeout:     5 * time.Second,
		SearchLimit: 10,
	}, log)

	rates := cache.NewReferenceRateCache(client, prefs, cache.Options{
		RefreshInterval: time.Hour,
		DefaultCurrency: "USD",
	}, log)
	rates.Start(context.Background())
	t.Cleanup(rates.Stop)

	currencyHandler := handler.NewCurrencyHandler(rates, log)
	quoteHandler := handler.NewQuoteHandler(client, rates, service.CostPipelineOptions{Debounce: testDebounce}, time.Minute, log)
	autocompleteHandler := handler.NewAutocompleteHandler(client, testDebounce, time.Minute, log)
	t.Cleanup(quoteHandler.Close)
	t.Cleanup(autocompleteHandler.Close)

	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware, middleware.LoggingMiddleware(log))
	apiRouter := router.PathPrefix("/api").Subrouter()
	currencyHandler.RegisterRoutes(apiRouter)
	quoteHandler.RegisterRoutes(apiRouter)
	autocompleteHandler.RegisterRoutes(apiRouter)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, backend: backend, prefs: prefs}
}

func (e *testEnv) do(t *testing.T, method, path, body string, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCurrencyEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestServer(t)

	t.Run("List currencies", func(t *testing.T) {
		var resp handler.CurrenciesResponse
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/currencies", "", &resp))
		assert.Len(t, resp.Currencies, 3)
		assert.Equal(t, entity.SourceLive, resp.Source)
		assert.Equal(t, "USD", resp.Current)
	})

	t.Run("List rates", func(t *testing.T) {
		var resp handler.RatesResponse
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/currencies/rates", "", &resp))
		require.Len(t, resp.Rates, 1)
		assert.Equal(t, "USD_CDF", resp.Rates[0].Key())
	})

	t.Run("Identity conversion", func(t *testing.T) {
		var resp entity.ConversionResult
		status := env.do(t, http.MethodPost, "/api/currencies/convert",
			`{"amount":"12.5","fromCurrency":"USD","toCurrency":"USD"}`, &resp)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, entity.SourceIdentity, resp.Source)
		assert.Equal(t, "$12.50", resp.FormattedAmount)
	})

	t.Run("Conversion falls back to cached rate", func(t *testing.T) {
		// the fake back office has no convert endpoint
		var resp entity.ConversionResult
		status := env.do(t, http.MethodPost, "/api/currencies/convert",
			`{"amount":10,"fromCurrency":"USD","toCurrency":"CDF"}`, &resp)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, entity.SourceCache, resp.Source)
		assert.True(t, resp.ConvertedAmount.Equal(decimal.NewFromInt(28000)))
	})

	t.Run("Format", func(t *testing.T) {
		var resp handler.FormatResponse
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/currencies/format",
			`{"amount":"1234.5","currency":"USD"}`, &resp))
		assert.Equal(t, "$1,234.50", resp.Formatted)
	})

	t.Run("Unsupported display currency is ignored", func(t *testing.T) {
		var resp handler.CurrentCurrencyResponse
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/currencies/current", `{"currency":"XYZ"}`, &resp))
		assert.False(t, resp.Applied)
		assert.Equal(t, "USD", resp.Currency)

		_, err := env.prefs.Get(context.Background(), "preferred_currency")
		assert.Error(t, err)
	})

	t.Run("Display currency is persisted", func(t *testing.T) {
		var resp handler.CurrentCurrencyResponse
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/currencies/current", `{"currency":"cdf"}`, &resp))
		assert.True(t, resp.Applied)
		assert.Equal(t, "CDF", resp.Currency)

		stored, err := env.prefs.Get(context.Background(), "preferred_currency")
		require.NoError(t, err)
		assert.Equal(t, "CDF", stored)
	})

	t.Run("Invalid rate edit", func(t *testing.T) {
		status := env.do(t, http.MethodPut, "/api/currencies/rates",
			`{"fromCurrency":"USD","toCurrency":"CDF","rate":-1}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Malformed body", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/currencies/convert", `{`, nil))
	})
}

func waitForQuote(t *testing.T, env *testEnv, id string) handler.QuoteResponse {
	t.Helper()
	var resp handler.QuoteResponse
	require.Eventually(t, func() bool {
		resp = handler.QuoteResponse{}
		return env.do(t, http.MethodGet, "/api/quotes/"+id, "", &resp) == http.StatusOK && resp.Quote != nil
	}, 2*time.Second, 10*time.Millisecond)
	return resp
}

func TestQuoteSession(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestServer(t)

	t.Run("Kinshasa to Lubumbashi", func(t *testing.T) {
		var created handler.CreateSessionResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/quotes",
			`{"originId":1,"destinationId":2,"weightKg":10}`, &created))

		resp := waitForQuote(t, env, created.ID)
		assert.Equal(t, "$25.00", resp.Quote.Formatted)
		assert.False(t, resp.Quote.IsFromFallbackFormula)
	})

	t.Run("Fallback formula when pricing fails", func(t *testing.T) {
		env.backend.costFails.Store(true)
		defer env.backend.costFails.Store(false)

		var created handler.CreateSessionResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/quotes",
			`{"originId":1,"destinationId":2,"weightKg":10}`, &created))

		resp := waitForQuote(t, env, created.ID)
		assert.True(t, resp.Quote.IsFromFallbackFormula)
		assert.Equal(t, "$25.00", resp.Quote.Formatted)
	})

	t.Run("Same origin and destination is rejected", func(t *testing.T) {
		var created handler.CreateSessionResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/quotes", `{"originId":1}`, &created))

		status := env.do(t, http.MethodPatch, "/api/quotes/"+created.ID, `{"destinationId":1}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)

		status = env.do(t, http.MethodPost, "/api/quotes", `{"originId":4,"destinationId":4}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Zero weight clears the quote", func(t *testing.T) {
		var created handler.CreateSessionResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/quotes",
			`{"originId":1,"destinationId":2,"weightKg":10}`, &created))
		waitForQuote(t, env, created.ID)

		assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPatch, "/api/quotes/"+created.ID, `{"weightKg":0}`, nil))

		assert.Eventually(t, func() bool {
			var resp handler.QuoteResponse
			env.do(t, http.MethodGet, "/api/quotes/"+created.ID, "", &resp)
			return resp.Quote == nil
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("Delete and not found", func(t *testing.T) {
		var created handler.CreateSessionResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/quotes", "", &created))

		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/quotes/"+created.ID, "", nil))
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/quotes/"+created.ID, "", nil))
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/quotes/"+created.ID, "", nil))
	})
}

func TestAutocompleteSession(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestServer(t)

	t.Run("Unsupported kind", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/autocomplete/planets", "", nil))
	})

	t.Run("Search, navigate and choose", func(t *testing.T) {
		var created handler.CreateSessionResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/autocomplete/cities", "", &created))
		assert.Equal(t, "cities", created.Kind)

		assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPut,
			"/api/autocomplete/"+created.ID+"/input", `{"text":"ki"}`, nil))

		require.Eventually(t, func() bool {
			var resp handler.AutocompleteResponse
			env.do(t, http.MethodGet, "/api/autocomplete/"+created.ID, "", &resp)
			return len(resp.Results) == 3
		}, 2*time.Second, 10*time.Millisecond)

		var resp handler.AutocompleteResponse
		env.do(t, http.MethodPost, "/api/autocomplete/"+created.ID+"/keys", `{"key":"down"}`, &resp)
		assert.Equal(t, 0, resp.SelectedIndex)
		env.do(t, http.MethodPost, "/api/autocomplete/"+created.ID+"/keys", `{"key":"enter"}`, &resp)
		require.NotNil(t, resp.Chosen)
		assert.Equal(t, "Kinshasa", resp.Chosen.Name)

		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost,
			"/api/autocomplete/"+created.ID+"/keys", `{"key":"tab"}`, nil))
	})

	t.Run("Blank input makes no call", func(t *testing.T) {
		before := env.backend.searchCalls.Load()

		var created handler.CreateSessionResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/autocomplete/cities", "", &created))

		var resp handler.AutocompleteResponse
		env.do(t, http.MethodPut, "/api/autocomplete/"+created.ID+"/input", `{"text":"   "}`, &resp)
		assert.Empty(t, resp.Results)

		time.Sleep(5 * testDebounce)
		assert.Equal(t, before, env.backend.searchCalls.Load())
	})
}
