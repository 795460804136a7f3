package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/Cyclone1070/coda/internal/provider"
	"google.golang.org/genai"
)

// GeminiProvider implements provider.Provider for Google Gemini.
type GeminiProvider struct {
	client    GeminiClient
	mu        sync.RWMutex
	modelName string
}

// New creates a new GeminiProvider with the specified client and model.
func New(client GeminiClient, modelName string) *GeminiProvider {
	if client == nil {
		panic("client is required")
	}
	return &GeminiProvider{
		client:    client,
		modelName: modelName,
	}
}

// Stream starts a streaming completion.
func (p *GeminiProvider) Stream(ctx context.Context, req *provider.Request) (provider.Stream, error) {
	model := p.Model()

	system, contents := toGeminiContents(req.Messages)
	if len(contents) == 0 {
		return nil, &provider.ProviderError{
			Code:    provider.ErrorCodeInvalidRequest,
			Message: "no content to send",
		}
	}
	config := toGeminiConfig(model, req, system)

	seq := p.client.GenerateContentStream(ctx, model, contents, config)
	next, stop := iter.Pull2(seq)
	return &stream{next: next, stop: stop}, nil
}

// Model returns the currently active model name.
func (p *GeminiProvider) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modelName
}

// SetModel changes the active model at runtime.
func (p *GeminiProvider) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model name must not be empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modelName = strings.TrimPrefix(model, "models/")
	return nil
}

// ListModels returns available model names without the "models/" prefix.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	infos, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, strings.TrimPrefix(info.Name, "models/"))
	}
	return names, nil
}

// stream adapts the SDK's push iterator to the pull-based provider.Stream.
// Usage metadata is repeated on every partial response, so only the last
// one is kept and delivered as a terminal usage chunk.
type stream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()

	usage *genai.GenerateContentResponseUsageMetadata
	done  bool
}

func (s *stream) Next() (*provider.Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	resp, err, ok := s.next()
	if !ok {
		s.done = true
		if s.usage != nil {
			return &provider.Chunk{
				FinishReason: provider.FinishReasonUsage,
				Usage:        toUsage(s.usage),
			}, nil
		}
		return nil, io.EOF
	}
	if err != nil {
		s.done = true
		return nil, mapGeminiError(err)
	}
	if resp == nil {
		return &provider.Chunk{}, nil
	}
	if resp.UsageMetadata != nil {
		s.usage = resp.UsageMetadata
	}

	chunk, err := toChunk(resp)
	if err != nil {
		s.done = true
		return nil, err
	}
	return chunk, nil
}

func (s *stream) Close() error {
	s.done = true
	s.stop()
	return nil
}
