package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

// MemoryStore is an in-process Store with the same uniqueness semantics as the
// Postgres store. Used by tests and local development without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []domain.CallRecord
	byUnique map[string]int
	nextID   int64

	// GenerateID overrides unique id generation; tests use it to simulate
	// collisions. Defaults to uuid.NewString.
	GenerateID func() string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUnique: make(map[string]int),
		nextID:   1,
	}
}

// PersistRecord appends a record, enforcing unique id uniqueness.
func (m *MemoryStore) PersistRecord(_ context.Context, transcript string, ins domain.Insight, metadata map[string]any) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	generate := m.GenerateID
	if generate == nil {
		generate = uuid.NewString
	}
	uniqueID := generate()
	if _, exists := m.byUnique[uniqueID]; exists {
		return 0, "", fmt.Errorf("%w: unique_id %s", ErrDuplicate, uniqueID)
	}

	now := time.Now().UTC()
	record := domain.CallRecord{
		ID:             m.nextID,
		UniqueID:       uniqueID,
		Transcript:     transcript,
		CustomerIntent: ins.CustomerIntent,
		Sentiment:      ins.Sentiment,
		ActionRequired: ins.ActionRequired,
		Summary:        ins.Summary,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.nextID++
	m.byUnique[uniqueID] = len(m.records)
	m.records = append(m.records, record)
	return record.ID, uniqueID, nil
}

// GetRecordByUniqueID fetches one record by unique id.
func (m *MemoryStore) GetRecordByUniqueID(_ context.Context, uniqueID string) (domain.CallRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byUnique[uniqueID]
	if !ok {
		return domain.CallRecord{}, false, nil
	}
	return m.records[idx], true, nil
}

// ListRecords returns records newest first with the same filter semantics as
// the Postgres store.
func (m *MemoryStore) ListRecords(_ context.Context, filter ListFilter) ([]domain.CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	out := make([]domain.CallRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		record := m.records[i]
		if filter.Sentiment != nil && record.Sentiment != *filter.Sentiment {
			continue
		}
		if filter.ActionRequired != nil && record.ActionRequired != *filter.ActionRequired {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// HealthCheck always succeeds for the in-memory store.
func (m *MemoryStore) HealthCheck(context.Context) bool { return m != nil }
