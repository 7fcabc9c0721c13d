package summarizer

import "context"

// GenerateRequest is a single text generation call.
type GenerateRequest struct {
	Prompt          string
	MaxOutputTokens int
	Temperature     float64
	TopP            float64
}

// Generator is a generative model backend.
type Generator interface {
	// Generate returns the model's text. An empty response is an error.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// Name identifies the backend in logs.
	Name() string
}
