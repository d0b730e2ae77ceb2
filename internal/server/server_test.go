package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/atharva9604/conversational-insights-generator/internal/app"
	"github.com/atharva9604/conversational-insights-generator/internal/ratelimit"
	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
	"github.com/atharva9604/conversational-insights-generator/pkg/extractor"
	"github.com/atharva9604/conversational-insights-generator/pkg/insight"
	"github.com/atharva9604/conversational-insights-generator/pkg/store"
)

const validTranscript = "Agent: This is a reminder that your EMI is overdue. Customer: I will pay by Wednesday."

type stubExtractor struct {
	ins   domain.Insight
	err   error
	calls int
}

func (s *stubExtractor) Extract(context.Context, string) (domain.Insight, error) {
	s.calls++
	if s.err != nil {
		return domain.Insight{}, s.err
	}
	return s.ins, nil
}

type unavailableStore struct{}

func (unavailableStore) PersistRecord(context.Context, string, domain.Insight, map[string]any) (int64, string, error) {
	return 0, "", store.ErrUnavailable
}

func (unavailableStore) GetRecordByUniqueID(context.Context, string) (domain.CallRecord, bool, error) {
	return domain.CallRecord{}, false, store.ErrUnavailable
}

func (unavailableStore) ListRecords(context.Context, store.ListFilter) ([]domain.CallRecord, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) HealthCheck(context.Context) bool { return false }

func scenarioInsight() domain.Insight {
	return domain.Insight{
		CustomerIntent: "Promise to Pay - Wednesday",
		Sentiment:      domain.SentimentNeutral,
		ActionRequired: true,
		Summary:        "Customer committed to paying by Wednesday after reminder.",
	}
}

func newTestServer(t *testing.T, ext app.InsightExtractor, st store.Store) *httptest.Server {
	t.Helper()
	appCore, err := app.New(app.Config{Extractor: ext, Store: st})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: appCore})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postAnalyze(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url+"/analyze_call", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post analyze_call: %v", err)
	}
	return resp
}

func TestAnalyzeCallCreatesRecord(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())

	resp := postAnalyze(t, ts.URL, map[string]any{
		"transcript": validTranscript,
		"metadata":   map[string]any{"agent_id": "A-12"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var result domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ID != 1 {
		t.Fatalf("id = %d, want 1", result.ID)
	}
	if result.UniqueID == "" {
		t.Fatalf("unique_id missing")
	}
	if result.CustomerIntent != "Promise to Pay - Wednesday" {
		t.Fatalf("customer_intent = %q", result.CustomerIntent)
	}
	if result.Sentiment != domain.SentimentNeutral {
		t.Fatalf("sentiment = %q", result.Sentiment)
	}
	if !result.ActionRequired {
		t.Fatalf("action_required = false, want true")
	}
	if result.Summary != "Customer committed to paying by Wednesday after reminder." {
		t.Fatalf("summary = %q", result.Summary)
	}
	if result.RawTranscript != validTranscript {
		t.Fatalf("raw_transcript = %q", result.RawTranscript)
	}
	if result.ProcessingTimeMS < 0 {
		t.Fatalf("processing_time_ms = %v, want non-negative", result.ProcessingTimeMS)
	}
}

func TestAnalyzeCallRejectsBeforeExtraction(t *testing.T) {
	ext := &stubExtractor{ins: scenarioInsight()}
	ts := newTestServer(t, ext, store.NewMemoryStore())

	cases := []struct {
		name       string
		transcript string
	}{
		{"missing customer marker", "Agent: Hello, calling about your overdue loan installment today."},
		{"missing agent marker", "Customer: I already paid the installment two days ago, please check."},
		{"too short", "Agent: Customer:"},
		{"empty", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postAnalyze(t, ts.URL, map[string]any{"transcript": tc.transcript})
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if ext.calls != 0 {
		t.Fatalf("extractor invoked %d times for invalid transcripts, want 0", ext.calls)
	}
}

func TestAnalyzeCallRejectsInvalidJSON(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())
	resp, err := http.Post(ts.URL+"/analyze_call", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalyzeCallMapsExhaustionToBadGateway(t *testing.T) {
	ext := &stubExtractor{err: &extractor.ExhaustedError{Attempts: 3, LastErr: insightParseErr()}}
	ts := newTestServer(t, ext, store.NewMemoryStore())
	resp := postAnalyze(t, ts.URL, map[string]any{"transcript": validTranscript})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func insightParseErr() error {
	_, err := insight.Parse("{malformed")
	return err
}

func TestAnalyzeCallMapsUnavailableToServiceUnavailable(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, unavailableStore{})
	resp := postAnalyze(t, ts.URL, map[string]any{"transcript": validTranscript})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAnalyzeCallMapsDuplicateToConflict(t *testing.T) {
	memStore := store.NewMemoryStore()
	memStore.GenerateID = func() string { return "fixed-id" }
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, memStore)

	resp := postAnalyze(t, ts.URL, map[string]any{"transcript": validTranscript})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", resp.StatusCode)
	}
	resp = postAnalyze(t, ts.URL, map[string]any{"transcript": validTranscript})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", resp.StatusCode)
	}
}

func TestGetRecordByUniqueID(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())

	resp := postAnalyze(t, ts.URL, map[string]any{"transcript": validTranscript})
	var created domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/records/" + created.UniqueID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var record domain.CallRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.UniqueID != created.UniqueID || record.CustomerIntent != created.CustomerIntent {
		t.Fatalf("record mismatch: %+v", record)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())
	resp, err := http.Get(ts.URL + "/records/00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListRecordsWithFilters(t *testing.T) {
	memStore := store.NewMemoryStore()
	negative := scenarioInsight()
	negative.Sentiment = domain.SentimentNegative
	if _, _, err := memStore.PersistRecord(context.Background(), validTranscript, scenarioInsight(), nil); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if _, _, err := memStore.PersistRecord(context.Background(), validTranscript, negative, nil); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, memStore)

	resp, err := http.Get(ts.URL + "/records?sentiment=Negative")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var listing struct {
		Count   int                 `json:"count"`
		Records []domain.CallRecord `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Count != 1 || listing.Records[0].Sentiment != domain.SentimentNegative {
		t.Fatalf("sentiment filter broken: %+v", listing)
	}
}

func TestListRecordsRejectsUnknownSentiment(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())
	resp, err := http.Get(ts.URL + "/records?sentiment=Happy")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthHealthy(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || health.Database != "connected" || health.LLMClient != "initialized" {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestHealthDegradedWhenStoreDown(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, unavailableStore{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health endpoint should stay 200, got %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "degraded" || health.Database != "disconnected" {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestRootReportsServiceInfo(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	var info struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Name != serviceName || info.Status != "operational" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestAnalyzeCallRateLimited(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	appCore, err := app.New(app.Config{Extractor: &stubExtractor{ins: scenarioInsight()}, Store: store.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: appCore, AnalyzeLimiter: limiter})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for i := 0; i < 2; i++ {
		resp := postAnalyze(t, ts.URL, map[string]any{"transcript": validTranscript})
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201", i+1, resp.StatusCode)
		}
	}
	resp := postAnalyze(t, ts.URL, map[string]any{"transcript": validTranscript})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("Retry-After header missing")
	}
}

func TestAnalyzeCallMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &stubExtractor{ins: scenarioInsight()}, store.NewMemoryStore())
	resp, err := http.Get(ts.URL + "/analyze_call")
	if err != nil {
		t.Fatalf("get analyze_call: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
