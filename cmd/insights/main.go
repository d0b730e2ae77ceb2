package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/atharva9604/conversational-insights-generator/internal/app"
	"github.com/atharva9604/conversational-insights-generator/internal/config"
	"github.com/atharva9604/conversational-insights-generator/internal/ratelimit"
	"github.com/atharva9604/conversational-insights-generator/internal/server"
	"github.com/atharva9604/conversational-insights-generator/internal/util"
	"github.com/atharva9604/conversational-insights-generator/pkg/ai"
	"github.com/atharva9604/conversational-insights-generator/pkg/extractor"
	"github.com/atharva9604/conversational-insights-generator/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var generator ai.StructuredGenerator
	switch cfg.GenerationProvider {
	case config.ProviderGemini:
		client, err := ai.NewGeminiClient(cfg.GenerationAPIKey)
		if err != nil {
			util.Fatal("failed to init gemini client", "err", err)
		}
		generator = ai.NewGeminiGenerator(client, cfg.GenerationModel)
	case config.ProviderOpenAICompat:
		generator = ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel)
	default:
		util.Fatal("unknown generation provider", "provider", cfg.GenerationProvider)
	}

	insightExtractor, err := extractor.New(generator,
		extractor.WithMaxAttempts(cfg.MaxAttempts),
		extractor.WithTemperature(cfg.Temperature),
		extractor.WithRetryDelay(time.Duration(cfg.RetryDelayMs)*time.Millisecond),
	)
	if err != nil {
		util.Fatal("failed to init extractor", "err", err)
	}
	slog.Info("llm extractor initialized", "provider", cfg.GenerationProvider, "model", cfg.GenerationModel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL,
		store.WithPoolBounds(cfg.PoolMinConns, cfg.PoolMaxConns),
		store.WithCommandTimeout(time.Duration(cfg.CommandTimeoutSeconds)*time.Second),
	)
	if err != nil {
		util.Fatal("failed to init postgres store", "err", err)
	}
	slog.Info("database connected and schema initialized")

	var cache *store.RecordCache
	if cfg.RedisAddr != "" {
		cache, err = store.NewRecordCache(cfg.RedisAddr, cfg.RedisPassword,
			time.Duration(cfg.RecordCacheTTLSeconds)*time.Second)
		if err != nil {
			util.Fatal("failed to init record cache", "err", err)
		}
		slog.Info("record cache enabled", "addr", cfg.RedisAddr)
	}

	var analyzeLimiter *ratelimit.FixedWindowLimiter
	if cfg.AnalyzeRateLimitPerMinute > 0 {
		analyzeLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword,
			"insights:ratelimit:analyze", cfg.AnalyzeRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
		slog.Info("analyze rate limit enabled", "perMinute", cfg.AnalyzeRateLimitPerMinute)
	}

	appCore, err := app.New(app.Config{
		Extractor: insightExtractor,
		Store:     dataStore,
		Cache:     cache,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer, err := server.New(server.Config{App: appCore, AnalyzeLimiter: analyzeLimiter})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("insights server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
