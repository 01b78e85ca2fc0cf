// internal/infrastructure/api/backend_client_test.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *BackendClient {
	return NewBackendClient(nil, Options{
		BaseURL:        url,
		UserAgent:      "waybill-pricing-test",
		FetchRetries:   2,
		ConvertRetries: 1,
		SearchLimit:    2,
	}, logger.NewJSONLogger(nil, logger.ErrorLevel))
}

func TestFetchCurrencies(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/currencies", r.URL.Path)
		assert.Equal(t, "waybill-pricing-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"code":"USD","displayName":"US Dollar","symbol":"$","decimalPlaces":2,"isActive":true,"isDefault":true},
			{"code":"CDF","displayName":"Franc congolais","symbol":"FC","decimalPlaces":2,"isActive":true}
		]`))
	}))
	defer mockServer.Close()

	client := newTestClient(mockServer.URL + "/api/")
	currencies, err := client.FetchCurrencies(context.Background())

	require.NoError(t, err)
	require.Len(t, currencies, 2)
	assert.Equal(t, "USD", currencies[0].Code)
	assert.True(t, currencies[0].IsDefault)
	assert.Equal(t, "FC", currencies[1].Symbol)
}

func TestFetchRatesRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"fromCurrency":{"code":"USD"},"toCurrency":{"code":"CDF"},"rate":2750.5,"isActive":true}]`))
	}))
	defer mockServer.Close()

	rates, err := newTestClient(mockServer.URL).FetchRates(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	require.Len(t, rates, 1)
	assert.Equal(t, "USD_CDF", rates[0].Key())
	assert.True(t, rates[0].Rate.Equal(decimal.RequireFromString("2750.5")))
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer mockServer.Close()

	_, err := newTestClient(mockServer.URL).FetchCurrencies(context.Background())

	assert.Error(t, err)
	assert.Equal(t, int32(3), hits.Load(), "one attempt plus two retries")
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer mockServer.Close()

	_, err := newTestClient(mockServer.URL).FetchCurrencies(context.Background())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestConvert(t *testing.T) {
	t.Run("Successful conversion", func(t *testing.T) {
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/currencies/convert", r.URL.Path)

			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "USD", body["fromCurrency"])
			assert.Equal(t, "CDF", body["toCurrency"])

			w.Write([]byte(`{"originalAmount":10,"convertedAmount":27000,"rate":2700,"formattedAmount":"27 000,00 FC"}`))
		}))
		defer mockServer.Close()

		res, err := newTestClient(mockServer.URL).Convert(context.Background(), decimal.NewFromInt(10), "USD", "CDF")

		require.NoError(t, err)
		assert.True(t, res.ConvertedAmount.Equal(decimal.NewFromInt(27000)))
		assert.Equal(t, entity.SourceLive, res.Source)
	})

	t.Run("Single retry", func(t *testing.T) {
		var hits atomic.Int32
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer mockServer.Close()

		_, err := newTestClient(mockServer.URL).Convert(context.Background(), decimal.NewFromInt(10), "USD", "CDF")

		assert.Error(t, err)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("Missing converted amount is malformed", func(t *testing.T) {
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rate":2700}`))
		}))
		defer mockServer.Close()

		_, err := newTestClient(mockServer.URL).Convert(context.Background(), decimal.NewFromInt(10), "USD", "CDF")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestCalculateCost(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lta/calculate-cost", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("originCityId"))
		assert.Equal(t, "2", q.Get("destinationCityId"))
		assert.Equal(t, "10.5", q.Get("weight"))
		assert.Equal(t, "USD", q.Get("currency"))

		w.Write([]byte(`{"cost":25.00}`))
	}))
	defer mockServer.Close()

	cost, err := newTestClient(mockServer.URL).CalculateCost(context.Background(), entity.QuoteInput{
		OriginID: 1, DestinationID: 2, WeightKg: 10.5, Currency: "USD",
	})

	require.NoError(t, err)
	assert.True(t, cost.Equal(decimal.NewFromInt(25)))
}

func TestCalculateCostRejectsMissingCost(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price":25}`))
	}))
	defer mockServer.Close()

	_, err := newTestClient(mockServer.URL).CalculateCost(context.Background(), entity.QuoteInput{
		OriginID: 1, DestinationID: 2, WeightKg: 10, Currency: "USD",
	})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSearchIsBounded(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cities/search", r.URL.Path)
		assert.Equal(t, "ki", r.URL.Query().Get("q"))
		w.Write([]byte(`[{"id":1,"name":"Kinshasa"},{"id":3,"name":"Kisangani"},{"id":4,"name":"Kikwit"}]`))
	}))
	defer mockServer.Close()

	results, err := newTestClient(mockServer.URL).Search(context.Background(), entity.SearchCities, "ki")

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "Kinshasa", results[0].Name)
}
