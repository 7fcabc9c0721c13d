package summarizer

import (
	"context"
	"errors"
	"fmt"

	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"
)

// VertexConfig selects a Gemini model on Vertex AI.
type VertexConfig struct {
	ProjectID string
	Location  string
	Model     string
}

// VertexGenerator calls Gemini through the Vertex AI generateContent API.
// Credentials come from Application Default Credentials.
type VertexGenerator struct {
	service *aiplatform.Service
	model   string
}

// NewVertexGenerator creates the Vertex AI client for the configured region.
func NewVertexGenerator(ctx context.Context, cfg VertexConfig, opts ...option.ClientOption) (*VertexGenerator, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("vertex: project id is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}

	opts = append([]option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("https://%s-aiplatform.googleapis.com/", cfg.Location)),
	}, opts...)
	svc, err := aiplatform.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vertex: failed to create service: %w", err)
	}

	return &VertexGenerator{
		service: svc,
		model: fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
			cfg.ProjectID, cfg.Location, cfg.Model),
	}, nil
}

// Name implements Generator.
func (v *VertexGenerator) Name() string {
	return "VertexAI"
}

// Generate implements Generator.
func (v *VertexGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	call := v.service.Projects.Locations.Publishers.Models.GenerateContent(v.model,
		&aiplatform.GoogleCloudAiplatformV1GenerateContentRequest{
			Contents: []*aiplatform.GoogleCloudAiplatformV1Content{{
				Role:  "user",
				Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: req.Prompt}},
			}},
			GenerationConfig: &aiplatform.GoogleCloudAiplatformV1GenerationConfig{
				MaxOutputTokens: int64(req.MaxOutputTokens),
				Temperature:     req.Temperature,
				TopP:            req.TopP,
			},
		})

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("vertex: generateContent failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("vertex: no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 ||
		candidate.Content.Parts[0] == nil || candidate.Content.Parts[0].Text == "" {
		return "", errors.New("vertex: invalid response structure")
	}
	return candidate.Content.Parts[0].Text, nil
}
