package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/application/service"
	"github.com/damon-houk/waybill-pricing/internal/config"
	"github.com/damon-houk/waybill-pricing/internal/domain/repository"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/api"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/cache"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/db"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/handler"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/middleware"
	"github.com/dgraph-io/badger/v3"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log := logger.NewJSONLogger(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	logger.SetDefaultLogger(log)
	defer log.Sync()

	log.Info("Starting waybill pricing service", map[string]interface{}{
		"backend":            cfg.BackendBaseURL,
		"preference_backend": cfg.PreferenceBackend,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prefs, closePrefs := openPreferences(ctx, cfg, log)
	defer closePrefs()

	fallbackRates, _ := config.ParseDecimalMap(cfg.FallbackRates)
	baseRates, _ := config.ParseDecimalMap(cfg.BaseRatesPerKg)

	client := api.NewBackendClient(nil, api.Options{
		BaseURL:        cfg.BackendBaseURL,
		Timeout:        cfg.BackendTimeout,
		UserAgent:      cfg.UserAgent,
		FetchRetries:   cfg.FetchRetries,
		ConvertRetries: cfg.ConvertRetries,
		RetryDelay:     cfg.RetryDelay,
		SearchLimit:    cfg.SearchLimit,
	}, log)

	rates := cache.NewReferenceRateCache(client, prefs, cache.Options{
		RefreshInterval: cfg.RateRefreshInterval,
		PreferenceKey:   cfg.PreferenceKey,
		DefaultCurrency: cfg.DefaultCurrency,
		Fallback:        cache.DefaultFallback().WithRates(fallbackRates),
	}, log)
	rates.Start(ctx)
	defer rates.Stop()

	currencyHandler := handler.NewCurrencyHandler(rates, log)
	quoteHandler := handler.NewQuoteHandler(client, rates, service.CostPipelineOptions{
		Debounce:        cfg.QuoteDebounce,
		BaseRatesPerKg:  baseRates,
		DefaultCurrency: cfg.DefaultCurrency,
	}, cfg.SessionIdleTTL, log)
	autocompleteHandler := handler.NewAutocompleteHandler(client, cfg.SearchDebounce, cfg.SessionIdleTTL, log)
	defer quoteHandler.Close()
	defer autocompleteHandler.Close()

	router := mux.NewRouter()
	router.Use(
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(log),
		middleware.RecoveryMiddleware(log),
	)
	router.HandleFunc("/health", healthHandler(rates)).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	currencyHandler.RegisterRoutes(apiRouter)
	quoteHandler.RegisterRoutes(apiRouter)
	autocompleteHandler.RegisterRoutes(apiRouter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Server exited gracefully", nil)
}

// openPreferences opens the configured preference store and returns its closer
func openPreferences(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.PreferenceRepository, func()) {
	if cfg.PreferenceBackend == config.BackendRedis {
		client, err := db.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("Failed to open preference store", map[string]interface{}{"error": err.Error()})
		}
		return db.NewRedisPreferenceRepository(client), func() {
			if err := client.Close(); err != nil {
				log.Error("Error closing redis client", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("Failed to create data directory", map[string]interface{}{"error": err.Error()})
	}

	badgerOpts := badger.DefaultOptions(cfg.DataDir)
	badgerOpts.Logger = nil // Disable Badger's default logger

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		log.Fatal("Failed to open database", map[string]interface{}{"error": err.Error()})
	}

	return db.NewBadgerPreferenceRepository(badgerDB), func() {
		if err := badgerDB.Close(); err != nil {
			log.Error("Error closing BadgerDB", map[string]interface{}{"error": err.Error()})
		}
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Degraded   bool   `json:"degraded"`
	Generation uint64 `json:"generation"`
}

// healthHandler reports whether the service runs on live or fallback reference data
func healthHandler(rates *cache.ReferenceRateCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := rates.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:     "ok",
			Degraded:   snap.Degraded(),
			Generation: snap.Generation(),
		})
	}
}
