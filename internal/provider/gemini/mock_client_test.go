package gemini

import (
	"context"
	"errors"
	"iter"

	"google.golang.org/genai"
)

// MockGeminiClient is a mock implementation of GeminiClient for testing.
type MockGeminiClient struct {
	Responses []*genai.GenerateContentResponse
	Err       error // yielded after Responses

	ListModelsFunc func(ctx context.Context) ([]ModelInfo, error)

	GotModel    string
	GotContents []*genai.Content
	GotConfig   *genai.GenerateContentConfig
}

func (m *MockGeminiClient) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	m.GotModel = model
	m.GotContents = contents
	m.GotConfig = config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range m.Responses {
			if !yield(r, nil) {
				return
			}
		}
		if m.Err != nil {
			yield(nil, m.Err)
		}
	}
}

func (m *MockGeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return nil, errors.New("ListModelsFunc not set")
}

func textResponse(text string, thought bool) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text, Thought: thought}}},
		}},
	}
}
