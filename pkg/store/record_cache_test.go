package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

func testRecord() domain.CallRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.CallRecord{
		ID:             7,
		UniqueID:       "3d1c2f4e-aaaa-bbbb-cccc-000000000007",
		Transcript:     "Agent: reminder Customer: will pay",
		CustomerIntent: "Promise to Pay (PTP) - Wednesday",
		Sentiment:      domain.SentimentNeutral,
		ActionRequired: true,
		Summary:        "Customer committed to paying by Wednesday after reminder.",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestRecordCacheRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	cache, err := NewRecordCache(redis.Addr(), "", time.Minute)
	if err != nil {
		t.Fatalf("new record cache: %v", err)
	}
	ctx := context.Background()
	record := testRecord()

	if _, ok := cache.Get(ctx, record.UniqueID); ok {
		t.Fatalf("expected miss before set")
	}
	cache.Set(ctx, record)
	got, ok := cache.Get(ctx, record.UniqueID)
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if got.ID != record.ID || got.UniqueID != record.UniqueID || got.Sentiment != record.Sentiment {
		t.Fatalf("cached record mismatch: %+v", got)
	}
}

func TestRecordCacheExpires(t *testing.T) {
	redis := miniredis.RunT(t)
	cache, err := NewRecordCache(redis.Addr(), "", time.Second)
	if err != nil {
		t.Fatalf("new record cache: %v", err)
	}
	ctx := context.Background()
	cache.Set(ctx, testRecord())
	redis.FastForward(2 * time.Second)
	if _, ok := cache.Get(ctx, testRecord().UniqueID); ok {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestRecordCacheFailsOpenWhenRedisDown(t *testing.T) {
	redis := miniredis.RunT(t)
	cache, err := NewRecordCache(redis.Addr(), "", time.Minute)
	if err != nil {
		t.Fatalf("new record cache: %v", err)
	}
	redis.Close()
	ctx := context.Background()
	cache.Set(ctx, testRecord())
	if _, ok := cache.Get(ctx, testRecord().UniqueID); ok {
		t.Fatalf("expected miss when redis is unreachable")
	}
}

func TestNewRecordCacheRequiresAddr(t *testing.T) {
	if _, err := NewRecordCache("", "", time.Minute); err == nil {
		t.Fatalf("expected constructor error for empty addr")
	}
}
