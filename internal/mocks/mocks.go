// internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockCurrencyAPI mocks the CurrencyAPI interface
type MockCurrencyAPI struct {
	mock.Mock
}

func (m *MockCurrencyAPI) FetchCurrencies(ctx context.Context) ([]entity.CurrencyInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.CurrencyInfo), args.Error(1)
}

func (m *MockCurrencyAPI) FetchRates(ctx context.Context) ([]entity.ExchangeRate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ExchangeRate), args.Error(1)
}

func (m *MockCurrencyAPI) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (*entity.ConversionResult, error) {
	args := m.Called(ctx, amount, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ConversionResult), args.Error(1)
}

func (m *MockCurrencyAPI) UpdateRate(ctx context.Context, from, to string, rate decimal.Decimal) (*entity.ExchangeRate, error) {
	args := m.Called(ctx, from, to, rate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExchangeRate), args.Error(1)
}

// MockPricingAPI mocks the PricingAPI interface
type MockPricingAPI struct {
	mock.Mock
}

func (m *MockPricingAPI) CalculateCost(ctx context.Context, in entity.QuoteInput) (decimal.Decimal, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockSearchAPI mocks the SearchAPI interface
type MockSearchAPI struct {
	mock.Mock
}

func (m *MockSearchAPI) Search(ctx context.Context, kind entity.SearchKind, q string) ([]entity.SearchResult, error) {
	args := m.Called(ctx, kind, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.SearchResult), args.Error(1)
}

// MockPreferenceRepository mocks the PreferenceRepository interface
type MockPreferenceRepository struct {
	mock.Mock
}

func (m *MockPreferenceRepository) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockPreferenceRepository) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// MockLogger mocks the logger interface
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Info(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) Fatal(msg string, fields map[string]interface{}) {
	m.Called(msg, fields)
}

func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	args := m.Called(key, value)
	return args.Get(0).(logger.Logger)
}

func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	args := m.Called(fields)
	return args.Get(0).(logger.Logger)
}
