package insight

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/atharva9604/conversational-insights-generator/pkg/domain"
)

const validOutput = `{"customer_intent":"Promise to Pay (PTP) - Wednesday","sentiment":"Neutral","action_required":true,"summary":"Customer committed to paying by Wednesday after reminder."}`

func TestParseValidOutput(t *testing.T) {
	ins, err := Parse(validOutput)
	if err != nil {
		t.Fatalf("parse valid output: %v", err)
	}
	if ins.CustomerIntent != "Promise to Pay (PTP) - Wednesday" {
		t.Fatalf("customer_intent = %q", ins.CustomerIntent)
	}
	if ins.Sentiment != domain.SentimentNeutral {
		t.Fatalf("sentiment = %q, want Neutral", ins.Sentiment)
	}
	if !ins.ActionRequired {
		t.Fatalf("action_required = false, want true")
	}
	if ins.Summary != "Customer committed to paying by Wednesday after reminder." {
		t.Fatalf("summary = %q", ins.Summary)
	}
}

func TestParseStripsCodeFences(t *testing.T) {
	fenced := "```json\n" + validOutput + "\n```"
	if _, err := Parse(fenced); err != nil {
		t.Fatalf("parse fenced output: %v", err)
	}
}

func TestParseTrimsWhitespaceFields(t *testing.T) {
	raw := `{"customer_intent":"  Dispute Fraudulent Transaction  ","sentiment":"Negative","action_required":true,"summary":"  Customer disputes a transaction and requests an investigation.  "}`
	ins, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ins.CustomerIntent != "Dispute Fraudulent Transaction" {
		t.Fatalf("customer_intent not trimmed: %q", ins.CustomerIntent)
	}
	if strings.HasPrefix(ins.Summary, " ") || strings.HasSuffix(ins.Summary, " ") {
		t.Fatalf("summary not trimmed: %q", ins.Summary)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse("not json at all"); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func TestParseRejectsUnknownSentiment(t *testing.T) {
	raw := `{"customer_intent":"Request payment plan","sentiment":"Happy","action_required":false,"summary":"Customer asked for an installment plan for the overdue amount."}`
	_, err := Parse(raw)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(vErr.Violations) != 1 || !strings.Contains(vErr.Violations[0], "Happy") {
		t.Fatalf("violations = %v", vErr.Violations)
	}
}

func TestParseCollectsAllViolations(t *testing.T) {
	raw := `{"customer_intent":"   ","sentiment":"angry","action_required":true,"summary":"too short"}`
	_, err := Parse(raw)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(vErr.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(vErr.Violations), vErr.Violations)
	}
}

func TestParseReportsMissingFields(t *testing.T) {
	_, err := Parse(`{}`)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(vErr.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(vErr.Violations), vErr.Violations)
	}
}

func TestResponseSchemaMatchesValidator(t *testing.T) {
	var schema struct {
		Required   []string `json:"required"`
		Properties map[string]struct {
			Enum []string `json:"enum"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(ResponseSchema(), &schema); err != nil {
		t.Fatalf("response schema is not valid JSON: %v", err)
	}
	if len(schema.Required) != 4 {
		t.Fatalf("required fields = %v, want 4", schema.Required)
	}
	enum := schema.Properties["sentiment"].Enum
	if len(enum) != 3 {
		t.Fatalf("sentiment enum = %v, want 3 values", enum)
	}
	for _, value := range enum {
		if _, err := domain.ParseSentiment(value); err != nil {
			t.Fatalf("schema enum value %q rejected by validator: %v", value, err)
		}
	}
}

func TestValidateTranscript(t *testing.T) {
	valid := "Agent: Your EMI is overdue, when can you pay? Customer: I will pay by Wednesday."
	if err := ValidateTranscript(valid); err != nil {
		t.Fatalf("valid transcript rejected: %v", err)
	}
}

func TestValidateTranscriptMissingRoleMarkers(t *testing.T) {
	cases := []struct {
		name       string
		transcript string
	}{
		{"no markers", "This is just a block of text long enough to pass the length check."},
		{"agent only", "Agent: Hello, this is a reminder about your pending loan installment."},
		{"customer only", "Customer: I already paid the installment two days ago, please check."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTranscript(tc.transcript)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
		})
	}
}

func TestValidateTranscriptLengthBounds(t *testing.T) {
	if err := ValidateTranscript("Agent: Customer:"); err == nil {
		t.Fatalf("expected error for too-short transcript")
	}
	long := "Agent: Customer: " + strings.Repeat("x", TranscriptMaxLen)
	if err := ValidateTranscript(long); err == nil {
		t.Fatalf("expected error for too-long transcript")
	}
}

func TestValidateTranscriptEmpty(t *testing.T) {
	err := ValidateTranscript("   ")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}
