package store

import (
	"context"
	"errors"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

var (
	// ErrUnavailable indicates the backing pool is not initialized or reachable.
	// It is returned before any I/O is attempted.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDuplicate indicates a uniqueness constraint violation on insert.
	ErrDuplicate = errors.New("duplicate record")
)

// ListFilter narrows ListRecords by the indexed operational columns.
// Nil pointer fields mean "no filter". Limit <= 0 falls back to a default.
type ListFilter struct {
	Sentiment      *domain.Sentiment
	ActionRequired *bool
	Limit          int
}

// Store defines durable persistence for analyzed call records.
type Store interface {
	// PersistRecord generates a fresh unique identifier, inserts the record in
	// a single transaction, and returns the backend-assigned sequence id paired
	// with the generated unique id.
	PersistRecord(ctx context.Context, transcript string, ins domain.Insight, metadata map[string]any) (int64, string, error)
	// GetRecordByUniqueID fetches one record by its external reference key.
	GetRecordByUniqueID(ctx context.Context, uniqueID string) (domain.CallRecord, bool, error)
	// ListRecords returns records newest first, optionally filtered.
	ListRecords(ctx context.Context, filter ListFilter) ([]domain.CallRecord, error)
	// HealthCheck reports whether a trivial round trip succeeds. It never
	// returns an error; an absent pool or failed round trip yields false.
	HealthCheck(ctx context.Context) bool
}
