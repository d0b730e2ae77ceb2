package ai

import (
	"context"
	"encoding/json"
)

// StructuredGenerator produces schema-constrained output from a model.
// The schema is an opaque JSON Schema document forwarded to the provider;
// temperature controls randomness (near-zero for deterministic extraction).
// All providers (Gemini, OpenAI-compatible) implement this interface.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, systemPrompt, content string, schema json.RawMessage, temperature float64) (string, error)
}
