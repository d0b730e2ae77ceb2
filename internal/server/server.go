package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atharva9604/conversational-insights-generator/internal/app"
	"github.com/atharva9604/conversational-insights-generator/internal/ratelimit"
	"github.com/atharva9604/conversational-insights-generator/internal/util"
	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
	"github.com/atharva9604/conversational-insights-generator/pkg/extractor"
	"github.com/atharva9604/conversational-insights-generator/pkg/insight"
	"github.com/atharva9604/conversational-insights-generator/pkg/store"
)

const (
	serviceName    = "conversational-insights-generator"
	serviceVersion = "2.0.0"
)

// Config wires required dependencies for the HTTP server. AnalyzeLimiter is
// optional; when nil the analyze endpoint is not throttled.
type Config struct {
	App            *app.App
	AnalyzeLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes the HTTP boundary: request deserialization, structural
// validation, and mapping of pipeline failure categories to status codes.
type Server struct {
	app            *app.App
	analyzeLimiter *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	s := &Server{
		app:            cfg.App,
		analyzeLimiter: cfg.AnalyzeLimiter,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	handler := util.WithSecurityHeaders(util.WithCORS(s.withRecover(s.mux)))
	return util.WithRequestID(util.WithRequestLog(handler))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/analyze_call", s.handleAnalyzeCall)
	s.mux.HandleFunc("/records", s.handleListRecords)
	s.mux.HandleFunc("/records/", s.handleGetRecord)
}

// withRecover is the top-level handler for uncategorized panics: the concrete
// cause is logged, the caller sees only a generic failure.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				util.LoggerFromContext(r.Context()).Error("unhandled panic",
					"type", fmt.Sprintf("%T", rec),
					"cause", fmt.Sprint(rec),
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"version": serviceVersion,
		"status":  "operational",
		"endpoints": map[string]string{
			"health":  "/health",
			"analyze": "/analyze_call",
			"records": "/records",
		},
	})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	LLMClient string    `json:"llm_client"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	dbHealthy := s.app.StoreHealthy(r.Context())
	llmReady := s.app.ExtractorReady()

	resp := healthResponse{
		Status:    "healthy",
		Database:  "connected",
		LLMClient: "initialized",
		Timestamp: time.Now().UTC(),
	}
	if !dbHealthy {
		resp.Database = "disconnected"
	}
	if !llmReady {
		resp.LLMClient = "not_initialized"
	}
	if !dbHealthy || !llmReady {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

type analyzeRequest struct {
	Transcript string         `json:"transcript"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleAnalyzeCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAnalyze(r) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many analysis requests")
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Structural checks happen here, before the pipeline is touched.
	if err := insight.ValidateTranscript(req.Transcript); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.app.AnalyzeCall(r.Context(), strings.TrimSpace(req.Transcript), req.Metadata)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// writePipelineError maps pipeline failure categories to transport status:
// extraction exhaustion → 502, store unavailable → 503, duplicate → 409,
// everything else → 500 with a generic detail.
func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var exhausted *extractor.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		writeError(w, http.StatusBadGateway,
			fmt.Sprintf("failed to extract insights after %d attempts", exhausted.Attempts))
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "database connection not available")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate record detected")
	default:
		util.LoggerFromContext(r.Context()).Error("pipeline failed",
			"type", fmt.Sprintf("%T", errors.Unwrap(err)),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
	}
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uniqueID := strings.TrimPrefix(r.URL.Path, "/records/")
	if uniqueID == "" || strings.ContainsRune(uniqueID, '/') {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	record, ok, err := s.app.GetRecord(r.Context(), uniqueID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter := store.ListFilter{}
	query := r.URL.Query()
	if v := strings.TrimSpace(query.Get("sentiment")); v != "" {
		sentiment, err := domain.ParseSentiment(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Sentiment = &sentiment
	}
	if v := strings.TrimSpace(query.Get("action_required")); v != "" {
		actionRequired, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "action_required must be a boolean")
			return
		}
		filter.ActionRequired = &actionRequired
	}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	records, err := s.app.ListRecords(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "database connection not available")
		return
	}
	util.LoggerFromContext(r.Context()).Error("record lookup failed",
		"type", fmt.Sprintf("%T", errors.Unwrap(err)),
		"err", err,
	)
	writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
}

func (s *Server) allowAnalyze(r *http.Request) bool {
	if s.analyzeLimiter == nil {
		return true
	}
	return s.analyzeLimiter.Allow(r.Context(), clientIP(r))
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		if ip := strings.TrimSpace(strings.Split(xfwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
