// provider.go implements the OpenAIProvider molecule that generates images
// through an OpenAI-compatible image model API.
//
// This molecule composes:
//   - core.Config: for API configuration
//   - go-openai client: for API calls
package imagegen

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"charforge/core"
)

// DefaultImageModel is used when no model is configured.
const DefaultImageModel = "dall-e-3"

// Provider is the interface for image generation backends.
//
// The Generate method takes a prompt and returns the URL of the generated
// image. The URL is temporary; downloading is handled separately by the
// Generator organism.
type Provider interface {
	// Generate creates an image from the given prompt and returns its URL.
	// The context controls cancellation and timeout.
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIProvider implements Provider against the OpenAI images API or any
// compatible endpoint.
//
// Thread Safety: OpenAIProvider is safe for concurrent use. The underlying
// client handles connection pooling.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an image generation provider from config.
//
// Returns an error if the config is nil or the API key is empty.
func NewOpenAIProvider(cfg *core.Config) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("imagegen: OpenAI API key is required for image generation")
	}

	endpoint := cfg.ImageModelURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientConfig.BaseURL = endpoint
	clientConfig.HTTPClient = core.GetHTTPClient(cfg.AITimeout)

	model := cfg.OpenAIImageModel
	if model == "" {
		model = DefaultImageModel
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Generate creates an image from the given prompt.
//
// Returns the URL of the generated image. The URL is hosted by the model
// provider and expires after about an hour, so callers should download it
// promptly.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("imagegen: prompt cannot be empty")
	}

	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.model,
		ResponseFormat: openai.CreateImageResponseFormatURL,
		N:              1,
	}
	if p.model == "dall-e-3" {
		req.Style = openai.CreateImageStyleVivid
	}

	response, err := p.client.CreateImage(ctx, req)
	if err != nil {
		return "", fmt.Errorf("imagegen: image generation failed: %w", err)
	}

	if len(response.Data) == 0 {
		return "", fmt.Errorf("imagegen: model returned no images")
	}
	if response.Data[0].URL == "" {
		return "", fmt.Errorf("imagegen: model returned an empty image URL")
	}
	return response.Data[0].URL, nil
}

// Model returns the configured image model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

var _ Provider = (*OpenAIProvider)(nil)
