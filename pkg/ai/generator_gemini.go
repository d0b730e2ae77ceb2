package ai

import (
	"context"
	"encoding/json"
)

// GeminiGenerator wraps GeminiClient with a fixed model.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based StructuredGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// GenerateStructured implements StructuredGenerator using Gemini.
func (g *GeminiGenerator) GenerateStructured(ctx context.Context, systemPrompt, content string, schema json.RawMessage, temperature float64) (string, error) {
	return g.client.GenerateStructured(ctx, g.model, systemPrompt, content, schema, temperature)
}
