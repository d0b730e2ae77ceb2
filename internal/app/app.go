package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
	"github.com/atharva9604/conversational-insights-generator/pkg/store"
)

// InsightExtractor converts a transcript into a validated Insight.
// Implemented by pkg/extractor; stubbed in tests.
type InsightExtractor interface {
	Extract(ctx context.Context, transcript string) (domain.Insight, error)
}

// Config wires the orchestrator's dependencies. Lifecycle is owned by the
// caller: construct at process start, discard at process stop.
type Config struct {
	Extractor InsightExtractor
	Store     store.Store
	Cache     *store.RecordCache // optional read-through cache for lookups
}

// App sequences validation → extraction → persistence for one request and
// exposes record lookups. It holds no mutable state of its own; the store's
// connection pool is the only shared resource behind it.
type App struct {
	extractor InsightExtractor
	store     store.Store
	cache     *store.RecordCache
}

// New constructs the orchestrator.
func New(cfg Config) (*App, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	return &App{
		extractor: cfg.Extractor,
		store:     cfg.Store,
		cache:     cfg.Cache,
	}, nil
}

// AnalyzeCall runs the extraction-and-persistence pipeline for one transcript.
// The transcript must already have passed boundary validation. Failures keep
// their typed cause (extractor exhaustion, store unavailable, duplicate,
// persistence failure) so the boundary can map them to response semantics.
func (a *App) AnalyzeCall(ctx context.Context, transcript string, metadata map[string]any) (domain.AnalysisResult, error) {
	start := time.Now()

	ins, err := a.extractor.Extract(ctx, transcript)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("extract insights: %w", err)
	}

	id, uniqueID, err := a.store.PersistRecord(ctx, transcript, ins, metadata)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("persist insights: %w", err)
	}

	return domain.AnalysisResult{
		ID:               id,
		UniqueID:         uniqueID,
		CustomerIntent:   ins.CustomerIntent,
		Sentiment:        ins.Sentiment,
		ActionRequired:   ins.ActionRequired,
		Summary:          ins.Summary,
		RawTranscript:    transcript,
		Metadata:         metadata,
		ProcessedAt:      time.Now().UTC(),
		ProcessingTimeMS: roundMillis(time.Since(start)),
	}, nil
}

// GetRecord fetches one persisted record by unique id, consulting the cache
// first and filling it on a store hit.
func (a *App) GetRecord(ctx context.Context, uniqueID string) (domain.CallRecord, bool, error) {
	if a.cache != nil {
		if record, ok := a.cache.Get(ctx, uniqueID); ok {
			return record, true, nil
		}
	}
	record, ok, err := a.store.GetRecordByUniqueID(ctx, uniqueID)
	if err != nil || !ok {
		return domain.CallRecord{}, false, err
	}
	if a.cache != nil {
		a.cache.Set(ctx, record)
	}
	return record, true, nil
}

// ListRecords returns persisted records newest first.
func (a *App) ListRecords(ctx context.Context, filter store.ListFilter) ([]domain.CallRecord, error) {
	return a.store.ListRecords(ctx, filter)
}

// StoreHealthy reports whether the store round trip succeeds.
func (a *App) StoreHealthy(ctx context.Context) bool {
	return a.store.HealthCheck(ctx)
}

// ExtractorReady reports whether the extractor was initialized.
func (a *App) ExtractorReady() bool {
	return a.extractor != nil
}

// roundMillis converts a duration to milliseconds rounded to two decimals.
func roundMillis(d time.Duration) float64 {
	ms := float64(d.Nanoseconds()) / 1e6
	return math.Round(ms*100) / 100
}
