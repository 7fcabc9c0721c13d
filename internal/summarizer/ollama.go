package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// OllamaGenerator calls a local model served by Ollama.
type OllamaGenerator struct {
	client *ollama.Client
	model  string
}

// NewOllamaGenerator creates a client for the Ollama server at host.
func NewOllamaGenerator(host, model string, httpClient *http.Client) (*OllamaGenerator, error) {
	if model == "" {
		return nil, errors.New("ollama: model is required")
	}
	base, err := url.Parse(host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama: invalid host %q", host)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaGenerator{
		client: ollama.NewClient(base, httpClient),
		model:  model,
	}, nil
}

// Name implements Generator.
func (o *OllamaGenerator) Name() string {
	return "Ollama"
}

// Generate implements Generator.
func (o *OllamaGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	stream := false
	var response strings.Builder
	err := o.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		Stream: &stream,
		Format: []byte(`"json"`),
		Options: map[string]any{
			"temperature": req.Temperature,
			"top_p":       req.TopP,
			"num_predict": req.MaxOutputTokens,
		},
	}, func(res ollama.GenerateResponse) error {
		response.WriteString(res.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama: generate failed: %w", err)
	}
	if strings.TrimSpace(response.String()) == "" {
		return "", errors.New("ollama: empty response")
	}
	return response.String(), nil
}
