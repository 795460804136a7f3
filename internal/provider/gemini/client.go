package gemini

import (
	"context"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// ModelInfo contains metadata about a Gemini model from the SDK
type ModelInfo struct {
	Name             string
	InputTokenLimit  int
	OutputTokenLimit int
}

// GeminiClient defines the subset of the Gemini API the provider uses.
type GeminiClient interface {
	// GenerateContentStream streams a response as a sequence of partial responses.
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

	// ListModels returns a list of available model information
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// RealGeminiClient wraps the official SDK client to satisfy GeminiClient.
type RealGeminiClient struct {
	client *genai.Client
}

// NewRealGeminiClient creates a new RealGeminiClient from an SDK client.
func NewRealGeminiClient(client *genai.Client) *RealGeminiClient {
	return &RealGeminiClient{client: client}
}

// NewClient builds an SDK client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string) (*RealGeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, mapGeminiError(err)
	}
	return NewRealGeminiClient(client), nil
}

// GenerateContentStream calls the SDK's streaming endpoint.
func (c *RealGeminiClient) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return c.client.Models.GenerateContentStream(ctx, model, contents, config)
}

// ListModels returns gemini-* text models, excluding embedding, image,
// audio, live, and robotic variants.
func (c *RealGeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	for model, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, mapGeminiError(err)
		}
		if strings.HasPrefix(model.Name, "models/gemini-") &&
			!strings.Contains(model.Name, "embedding") &&
			!strings.Contains(model.Name, "image") &&
			!strings.Contains(model.Name, "audio") &&
			!strings.Contains(model.Name, "live") &&
			!strings.Contains(model.Name, "robotic") {
			models = append(models, ModelInfo{
				Name:             model.Name,
				InputTokenLimit:  int(model.InputTokenLimit),
				OutputTokenLimit: int(model.OutputTokenLimit),
			})
		}
	}
	return models, nil
}
