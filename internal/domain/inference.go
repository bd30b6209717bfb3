package domain

import "context"

// Generator is the inference capability the core consumes.
// Implementations return the raw structured text; validation happens in the caller.
type Generator interface {
	Generate(ctx context.Context, req InferenceRequest) (InferenceResponse, error)
}

// HealthChecker verifies inference provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// InferenceRequest is one prompt submitted with an enforced response schema.
type InferenceRequest struct {
	Prompt            string
	SystemInstruction string
	Temperature       float32
	Schema            *Schema
}

// InferenceResponse carries the model's text and token usage through the decorator chain.
type InferenceResponse struct {
	Text         string
	PromptTokens int
	TotalTokens  int
	Cached       bool
}
