package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/atharva9604/conversational-insights-generator/internal/util"
	"github.com/atharva9604/conversational-insights-generator/pkg/ai"
	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
	"github.com/atharva9604/conversational-insights-generator/pkg/insight"
)

const (
	// DefaultMaxAttempts bounds the sequential retry loop.
	DefaultMaxAttempts = 3
	// DefaultTemperature keeps extraction near-deterministic.
	DefaultTemperature = 0.1
)

// ExhaustedError reports that every extraction attempt failed. It carries the
// last underlying cause and the number of attempts made.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("insight extraction failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Extractor converts a transcript into a validated Insight, tolerating
// transient model failures with a bounded, strictly sequential retry loop.
type Extractor struct {
	gen          ai.StructuredGenerator
	systemPrompt string
	maxAttempts  int
	retryDelay   time.Duration
	temperature  float64
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithMaxAttempts overrides the retry bound. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Extractor) {
		if n >= 1 {
			e.maxAttempts = n
		}
	}
}

// WithRetryDelay inserts a pause between failed attempts. Zero (the default)
// retries immediately.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Extractor) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// WithTemperature overrides the generation temperature.
func WithTemperature(t float64) Option {
	return func(e *Extractor) {
		if t >= 0 {
			e.temperature = t
		}
	}
}

// New constructs an Extractor. The system instruction is built once here and
// does not vary per call.
func New(gen ai.StructuredGenerator, opts ...Option) (*Extractor, error) {
	if gen == nil {
		return nil, fmt.Errorf("structured generator required")
	}
	e := &Extractor{
		gen:          gen,
		systemPrompt: buildSystemPrompt(),
		maxAttempts:  DefaultMaxAttempts,
		temperature:  DefaultTemperature,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// MaxAttempts returns the configured retry bound.
func (e *Extractor) MaxAttempts() int { return e.maxAttempts }

// Extract runs the generate/parse/validate cycle until one attempt yields a
// clean Insight or the attempt budget is spent. It never returns a partially
// valid Insight: exhaustion yields an *ExhaustedError wrapping the last cause.
func (e *Extractor) Extract(ctx context.Context, transcript string) (domain.Insight, error) {
	logger := util.LoggerFromContext(ctx)
	schema := insight.ResponseSchema()
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		raw, err := e.gen.GenerateStructured(ctx, e.systemPrompt, transcript, schema, e.temperature)
		if err == nil {
			var parsed domain.Insight
			parsed, err = insight.Parse(raw)
			if err == nil {
				return parsed, nil
			}
		}
		lastErr = err
		logger.Warn("insight extraction attempt failed", "attempt", attempt, "err", err)
		if e.retryDelay > 0 && attempt < e.maxAttempts {
			select {
			case <-ctx.Done():
				return domain.Insight{}, &ExhaustedError{Attempts: attempt, LastErr: ctx.Err()}
			case <-time.After(e.retryDelay):
			}
		}
	}
	return domain.Insight{}, &ExhaustedError{Attempts: e.maxAttempts, LastErr: lastErr}
}

func buildSystemPrompt() string {
	return `You are an expert financial and debt collection analyst. Analyze customer service call transcripts (often in Hinglish) and extract structured insights with EXTREME PRECISION.

=== CRITICAL INSTRUCTIONS ===
1. Output ONLY valid JSON matching the exact schema provided
2. NO additional text, commentary, or markdown formatting
3. Analyze from the CUSTOMER's perspective for intent and sentiment

=== FIELD DEFINITIONS ===

**customer_intent** (String):
- Be SPECIFIC and ACTION-ORIENTED
- Examples: "Promise to Pay (PTP) - Wednesday", "Dispute Fraudulent Transaction", "Request Loan Restructuring due to Hardship"

**sentiment** (Must be EXACTLY one of: Negative, Neutral, Positive):
- **Positive**: Customer is cooperative, proactive, confirms timely payment
- **Neutral**: Customer agrees after explanation, sets clear PTP, responds calmly
- **Negative**: Customer is confrontational, disputes debt, expresses distress/hardship

**action_required** (Boolean):
- **true** if: PTP set, dispute raised, hardship request, legal action mentioned, form to be sent
- **false** if: Simple reminder with vague response, no concrete commitment

**summary** (Text):
- Structure: [Debt Status] + [Customer Response] + [Outcome]
- Length: 1-3 concise sentences

Return ONLY the JSON object.`
}
