package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

const recordCachePrefix = "insights:record:"

// RecordCache is a Redis-backed read-through cache for persisted records,
// keyed by unique id. It fails open: any Redis error is treated as a miss and
// the caller falls back to the store.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecordCache connects to Redis at addr. TTL <= 0 defaults to one hour.
func NewRecordCache(addr, password string, ttl time.Duration) (*RecordCache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("record cache redis addr required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RecordCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl:    ttl,
	}, nil
}

// Get returns the cached record for uniqueID, or false on miss or error.
func (c *RecordCache) Get(ctx context.Context, uniqueID string) (domain.CallRecord, bool) {
	if c == nil || c.client == nil {
		return domain.CallRecord{}, false
	}
	raw, err := c.client.Get(ctx, recordCachePrefix+uniqueID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("record cache get failed", "unique_id", uniqueID, "err", err)
		}
		return domain.CallRecord{}, false
	}
	var record domain.CallRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.CallRecord{}, false
	}
	return record, true
}

// Set stores the record best-effort. Errors are logged and swallowed.
func (c *RecordCache) Set(ctx context.Context, record domain.CallRecord) {
	if c == nil || c.client == nil || record.UniqueID == "" {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, recordCachePrefix+record.UniqueID, raw, c.ttl).Err(); err != nil {
		slog.Debug("record cache set failed", "unique_id", record.UniqueID, "err", err)
	}
}
