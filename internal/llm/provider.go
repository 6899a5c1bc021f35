// Package llm wraps the generative text backends the service can talk to.
//
// Providers return raw text. They never interpret or validate it: callers own
// the contract for what the text must contain.
package llm

import "context"

// Provider sends one prompt to a text generation backend.
type Provider interface {
	// Generate performs exactly one call to the backend.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes a single-turn prompt.
type Request struct {
	// System sets the model's role and constraints.
	System string

	// Prompt is the user message.
	Prompt string

	// Schema, when set, asks backends with native structured output to emit
	// JSON shaped like the schema. It is a hint; nothing here enforces it.
	Schema *Schema

	MaxTokens   int
	Temperature float64
}

// Schema names a JSON schema definition.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Response holds the backend's raw output.
type Response struct {
	Text  string
	Usage Usage
	Model string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
