package insight

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

// Field bounds shared by the schema definition and the validator.
const (
	IntentMinLen  = 5
	IntentMaxLen  = 200
	SummaryMinLen = 20
	SummaryMaxLen = 500
)

// Transcript bounds enforced at the request boundary.
const (
	TranscriptMinLen = 20
	TranscriptMaxLen = 10000
)

// responseSchema is the machine-readable shape handed to the model as an output
// constraint. Parse validates against the same definition so what is requested
// and what is accepted cannot drift.
var responseSchema = json.RawMessage(fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "customer_intent": {
      "type": "string",
      "minLength": %d,
      "maxLength": %d,
      "description": "Primary customer intent, specific and action-oriented"
    },
    "sentiment": {
      "type": "string",
      "enum": ["Negative", "Neutral", "Positive"],
      "description": "Customer sentiment classification"
    },
    "action_required": {
      "type": "boolean",
      "description": "True if follow-up action is needed"
    },
    "summary": {
      "type": "string",
      "minLength": %d,
      "maxLength": %d,
      "description": "Concise summary of the call"
    }
  },
  "required": ["customer_intent", "sentiment", "action_required", "summary"],
  "additionalProperties": false
}`, IntentMinLen, IntentMaxLen, SummaryMinLen, SummaryMaxLen))

// ResponseSchema returns the JSON Schema constraining model output.
func ResponseSchema() json.RawMessage {
	return responseSchema
}

// ValidationError reports every violated constraint, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "insight validation failed: " + strings.Join(e.Violations, "; ")
}

type wireInsight struct {
	CustomerIntent *string `json:"customer_intent"`
	Sentiment      *string `json:"sentiment"`
	ActionRequired *bool   `json:"action_required"`
	Summary        *string `json:"summary"`
}

// Parse decodes raw model output and validates it against the schema.
// It tolerates markdown code fences around the JSON body. On any constraint
// violation it returns a *ValidationError enumerating all of them.
func Parse(raw string) (domain.Insight, error) {
	body := stripCodeFences(raw)
	var wire wireInsight
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return domain.Insight{}, fmt.Errorf("decode insight JSON: %w", err)
	}

	var violations []string
	out := domain.Insight{}

	switch {
	case wire.CustomerIntent == nil:
		violations = append(violations, "customer_intent is required")
	default:
		intent := strings.TrimSpace(*wire.CustomerIntent)
		if n := utf8.RuneCountInString(intent); intent == "" {
			violations = append(violations, "customer_intent cannot be empty or whitespace")
		} else if n < IntentMinLen || n > IntentMaxLen {
			violations = append(violations, fmt.Sprintf("customer_intent length %d out of range [%d, %d]", n, IntentMinLen, IntentMaxLen))
		} else {
			out.CustomerIntent = intent
		}
	}

	if wire.Sentiment == nil {
		violations = append(violations, "sentiment is required")
	} else if sentiment, err := domain.ParseSentiment(strings.TrimSpace(*wire.Sentiment)); err != nil {
		violations = append(violations, err.Error())
	} else {
		out.Sentiment = sentiment
	}

	if wire.ActionRequired == nil {
		violations = append(violations, "action_required is required")
	} else {
		out.ActionRequired = *wire.ActionRequired
	}

	switch {
	case wire.Summary == nil:
		violations = append(violations, "summary is required")
	default:
		summary := strings.TrimSpace(*wire.Summary)
		if n := utf8.RuneCountInString(summary); summary == "" {
			violations = append(violations, "summary cannot be empty or whitespace")
		} else if n < SummaryMinLen || n > SummaryMaxLen {
			violations = append(violations, fmt.Sprintf("summary length %d out of range [%d, %d]", n, SummaryMinLen, SummaryMaxLen))
		} else {
			out.Summary = summary
		}
	}

	if len(violations) > 0 {
		return domain.Insight{}, &ValidationError{Violations: violations}
	}
	return out, nil
}

// ValidateTranscript applies the request-side structural checks: length bounds
// and presence of both dialogue-role markers. All violations are reported.
func ValidateTranscript(transcript string) error {
	trimmed := strings.TrimSpace(transcript)
	var violations []string
	if trimmed == "" {
		violations = append(violations, "transcript cannot be empty")
	} else if n := utf8.RuneCountInString(trimmed); n < TranscriptMinLen || n > TranscriptMaxLen {
		violations = append(violations, fmt.Sprintf("transcript length %d out of range [%d, %d]", n, TranscriptMinLen, TranscriptMaxLen))
	}
	if !strings.Contains(transcript, "Agent:") {
		violations = append(violations, "transcript must contain Agent: dialogue")
	}
	if !strings.Contains(transcript, "Customer:") {
		violations = append(violations, "transcript must contain Customer: dialogue")
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop a language tag such as ```json.
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
