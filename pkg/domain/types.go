package domain

import (
	"fmt"
	"time"
)

// Sentiment classifies the customer's disposition on a call.
// The set is closed; anything else is a validation failure, never a default.
type Sentiment string

const (
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentPositive Sentiment = "Positive"
)

// ParseSentiment returns the matching Sentiment or an error for any other value.
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(s) {
	case SentimentNegative, SentimentNeutral, SentimentPositive:
		return Sentiment(s), nil
	}
	return "", fmt.Errorf("invalid sentiment %q: must be one of Negative, Neutral, Positive", s)
}

// Insight is the structured extraction derived from one transcript.
// It has been validated but not yet persisted.
type Insight struct {
	CustomerIntent string    `json:"customer_intent"`
	Sentiment      Sentiment `json:"sentiment"`
	ActionRequired bool      `json:"action_required"`
	Summary        string    `json:"summary"`
}

// CallRecord is a persisted analysis. ID is the backend-assigned sequence id;
// UniqueID is the externally referenced identifier generated at persistence time.
type CallRecord struct {
	ID             int64          `json:"id"`
	UniqueID       string         `json:"unique_id"`
	Transcript     string         `json:"transcript"`
	CustomerIntent string         `json:"customer_intent"`
	Sentiment      Sentiment      `json:"sentiment"`
	ActionRequired bool           `json:"action_required"`
	Summary        string         `json:"summary"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AnalysisResult is the composite outcome of one pipeline run.
type AnalysisResult struct {
	ID               int64          `json:"id"`
	UniqueID         string         `json:"unique_id"`
	CustomerIntent   string         `json:"customer_intent"`
	Sentiment        Sentiment      `json:"sentiment"`
	ActionRequired   bool           `json:"action_required"`
	Summary          string         `json:"summary"`
	RawTranscript    string         `json:"raw_transcript"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ProcessedAt      time.Time      `json:"processed_at"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
}
