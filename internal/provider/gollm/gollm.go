// Package gollm adapts github.com/teilomillet/gollm to provider.Provider,
// giving access to OpenAI, Anthropic, Groq, Mistral, Ollama and the other
// vendors gollm supports.
package gollm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/teilomillet/gollm"
)

// completer produces the full text of one completion.
type completer interface {
	complete(ctx context.Context, prompt *gollm.Prompt) (string, error)
	setOption(key string, value any)
}

// llmCompleter drives a gollm.LLM, streaming when the backend supports it.
type llmCompleter struct {
	llm gollm.LLM
}

func (c llmCompleter) complete(ctx context.Context, prompt *gollm.Prompt) (string, error) {
	if !c.llm.SupportsStreaming() {
		return c.llm.Generate(ctx, prompt)
	}

	stream, err := c.llm.Stream(ctx, prompt)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var text strings.Builder
	for {
		token, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return text.String(), err
		}
		if token == nil {
			continue
		}
		text.WriteString(token.Text)
	}
	return text.String(), nil
}

func (c llmCompleter) setOption(key string, value any) {
	c.llm.SetOption(key, value)
}

// Adapter implements provider.Provider on top of gollm.
type Adapter struct {
	name string
	llm  completer

	mu    sync.RWMutex
	model string
}

// Options configures a new adapter.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// New creates an adapter for the given vendor.
func New(opts Options) (*Adapter, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(opts.Provider),
		gollm.SetModel(opts.Model),
		gollm.SetMaxTokens(opts.MaxTokens),
		gollm.SetTemperature(opts.Temperature),
		gollm.SetMaxRetries(0), // the engine owns retry decisions
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if opts.APIKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(opts.APIKey))
	}

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", opts.Provider, err)
	}

	return &Adapter{
		name:  opts.Provider,
		llm:   llmCompleter{llm: llm},
		model: opts.Model,
	}, nil
}

// Name returns the vendor identifier.
func (a *Adapter) Name() string {
	return a.name
}

// Model returns the active model name.
func (a *Adapter) Model() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// SetModel changes the active model at runtime.
func (a *Adapter) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model name must not be empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model = model
	a.llm.setOption("model", model)
	return nil
}

// Stream runs the completion. gollm returns tool calls embedded in the
// response text, so the whole response is collected before it is split
// into text and calls; the stream then replays it as chunks.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (provider.Stream, error) {
	prompt := translateRequest(req)

	a.mu.Lock()
	if req.Temperature > 0 {
		a.llm.setOption("temperature", req.Temperature)
	}
	if req.MaxTokens > 0 {
		a.llm.setOption("max_tokens", req.MaxTokens)
	}
	a.mu.Unlock()

	return &stream{
		run: func() (string, error) { return a.llm.complete(ctx, prompt) },
		req: req,
	}, nil
}

type stream struct {
	run func() (string, error)
	req *provider.Request

	pending []*provider.Chunk
	started bool
}

func (s *stream) Next() (*provider.Chunk, error) {
	if !s.started {
		s.started = true
		text, err := s.run()
		if err != nil {
			return nil, translateError(err)
		}
		s.pending = buildChunks(s.req, text)
	}
	if len(s.pending) == 0 {
		return nil, io.EOF
	}
	c := s.pending[0]
	s.pending = s.pending[1:]
	return c, nil
}

func (s *stream) Close() error {
	s.pending = nil
	return nil
}

// buildChunks splits the response into a content chunk and a terminal
// usage chunk.
func buildChunks(req *provider.Request, text string) []*provider.Chunk {
	calls, cleaned := parseToolCalls(text)

	content := &provider.Chunk{Delta: cleaned, ToolCalls: calls, FinishReason: provider.FinishReasonStop}
	if len(calls) > 0 {
		content.FinishReason = provider.FinishReasonToolCalls
	}

	// gollm does not expose provider usage; estimate from text length.
	prompt := estimateTokens(req)
	completion := len(text) / 4
	usage := &provider.Chunk{
		FinishReason: provider.FinishReasonUsage,
		Usage: &provider.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}
	return []*provider.Chunk{content, usage}
}

// translateRequest flattens the history into a single gollm prompt.
func translateRequest(req *provider.Request) *gollm.Prompt {
	var systemPrompt strings.Builder
	var parts []string

	for i, msg := range req.Messages {
		switch msg.Role {
		case provider.RoleSystem:
			if i == 0 {
				systemPrompt.WriteString(msg.Content)
				continue
			}
			parts = append(parts, "[System]: "+msg.Content)
		case provider.RoleUser:
			parts = append(parts, msg.Content)
		case provider.RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Assistant called %s with %s]", tc.Function.Name, string(tc.Function.Arguments)))
			}
		case provider.RoleTool:
			parts = append(parts, fmt.Sprintf("[Tool Result %s]: %s", msg.Name, msg.Content))
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var opts []gollm.PromptOption
	if systemPrompt.Len() > 0 {
		opts = append(opts, gollm.WithSystemPrompt(systemPrompt.String(), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, gollm.WithMaxLength(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, d := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        d.Name,
					Description: d.Description,
					Parameters:  d.JSONSchema(),
				},
			})
		}
		opts = append(opts, gollm.WithTools(tools))
	}

	return gollm.NewPrompt(promptText, opts...)
}

// openAIToolCalls is the OpenAI-style envelope some backends return.
type openAIToolCalls struct {
	ToolCalls []struct {
		ID       string `json:"id"`
		Function struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

// bareToolCall is the flat {"name", "arguments"} form.
type bareToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseToolCalls extracts embedded tool calls and returns the text that
// precedes them.
func parseToolCalls(text string) ([]provider.ToolCall, string) {
	if start := strings.Index(text, `{"tool_calls"`); start != -1 {
		var envelope openAIToolCalls
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&envelope); err == nil && len(envelope.ToolCalls) > 0 {
			calls := make([]provider.ToolCall, 0, len(envelope.ToolCalls))
			for _, tc := range envelope.ToolCalls {
				calls = append(calls, provider.ToolCall{
					ID:       tc.ID,
					Function: provider.FunctionCall{Name: tc.Function.Name, Arguments: normalizeArguments(tc.Function.Arguments)},
				})
			}
			return calls, strings.TrimSpace(text[:start])
		}
	}

	if start := strings.Index(text, `[{"name"`); start != -1 {
		var bare []bareToolCall
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&bare); err == nil && len(bare) > 0 {
			calls := make([]provider.ToolCall, 0, len(bare))
			for _, tc := range bare {
				calls = append(calls, provider.ToolCall{
					Function: provider.FunctionCall{Name: tc.Name, Arguments: normalizeArguments(tc.Arguments)},
				})
			}
			return calls, strings.TrimSpace(text[:start])
		}
	}

	return nil, text
}

// normalizeArguments unwraps arguments that were sent as a JSON string.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return json.RawMessage(s)
	}
	return raw
}

// translateError classifies a gollm error by its message, since gollm
// does not surface typed errors.
func translateError(err error) error {
	msg := strings.ToLower(err.Error())

	pe := &provider.ProviderError{Message: err.Error(), Underlying: err}
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "invalid key"):
		pe.Code = provider.ErrorCodeAuth
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden"):
		pe.Code = provider.ErrorCodePermission
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		pe.Code, pe.Retryable = provider.ErrorCodeRateLimit, true
	case strings.Contains(msg, "context length") || strings.Contains(msg, "too many tokens"):
		pe.Code = provider.ErrorCodeContextLength
	case strings.Contains(msg, "404") || strings.Contains(msg, "model not found"):
		pe.Code = provider.ErrorCodeInvalidModel
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "internal server"):
		pe.Code, pe.Retryable = provider.ErrorCodeUnavailable, true
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		pe.Code, pe.Retryable = provider.ErrorCodeTimeout, true
	case strings.Contains(msg, "content filter") || strings.Contains(msg, "safety"):
		pe.Code = provider.ErrorCodeContentBlocked
	default:
		pe.Code, pe.Retryable = provider.ErrorCodeNetwork, true
	}
	return pe
}

// estimateTokens provides a rough token count estimate from the request.
func estimateTokens(req *provider.Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
