package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/tool"
	"google.golang.org/genai"
)

// toGeminiContents converts history to Gemini contents. The first system
// message becomes the system instruction; later system notes are sent as
// user text so the model still sees them in order. Consecutive tool
// messages are grouped into one function-response turn.
func toGeminiContents(messages []provider.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case provider.RoleSystem:
			if i == 0 {
				system = genai.NewContentFromText(msg.Content, genai.RoleUser)
				continue
			}
			contents = append(contents, genai.NewContentFromText("[system] "+msg.Content, genai.RoleUser))

		case provider.RoleUser:
			if msg.Content == "" {
				continue
			}
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case provider.RoleAssistant:
			parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
						Args: decodeArgs(tc.Function.Arguments),
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		case provider.RoleTool:
			part := &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.Name,
					Response: map[string]any{"content": msg.Content},
				},
			}
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		}
	}

	return system, contents
}

func isFunctionResponseTurn(c *genai.Content) bool {
	return c.Role == genai.RoleUser && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// decodeArgs parses raw tool arguments, falling back to an empty object.
func decodeArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	return args
}

// toGeminiConfig builds the request config.
func toGeminiConfig(model string, req *provider.Request, system *genai.Content) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		SafetySettings:    defaultSafetySettings(),
		Tools:             toGeminiTools(req.Tools),
		Temperature:       genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if supportsThinking(model) {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	return config
}

// supportsThinking reports whether the model accepts a thinking config.
// Older generations reject the field.
func supportsThinking(model string) bool {
	name := strings.TrimPrefix(model, "models/")
	return strings.HasPrefix(name, "gemini-2.5") || strings.HasPrefix(name, "gemini-3")
}

// defaultSafetySettings returns safety settings with BLOCK_NONE for all categories.
func defaultSafetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdOff},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdOff},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdOff},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdOff},
	}
}

// toGeminiTools converts declarations to Gemini tools. Schemas are passed
// as raw JSON Schema so server-provided MCP schemas survive unchanged.
func toGeminiTools(decls []tool.Declaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}

	functionDeclarations := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		functionDeclarations = append(functionDeclarations, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.JSONSchema(),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: functionDeclarations}}
}

// toChunk converts one streamed response into a chunk.
func toChunk(resp *genai.GenerateContentResponse) (*provider.Chunk, error) {
	chunk := &provider.Chunk{}
	if len(resp.Candidates) == 0 {
		return chunk, nil
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return nil, &provider.ProviderError{
			Code:    provider.ErrorCodeContentBlocked,
			Message: "content blocked by safety filters",
		}
	case genai.FinishReasonMaxTokens:
		chunk.FinishReason = provider.FinishReasonLength
	case genai.FinishReasonStop:
		chunk.FinishReason = provider.FinishReasonStop
	}

	if candidate.Content == nil {
		return chunk, nil
	}

	var text, thought strings.Builder
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			chunk.ToolCalls = append(chunk.ToolCalls, provider.ToolCall{
				ID: part.FunctionCall.ID,
				Function: provider.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: args,
				},
			})
		case part.Thought:
			thought.WriteString(part.Text)
		default:
			text.WriteString(part.Text)
		}
	}
	chunk.Delta = text.String()
	chunk.Reasoning = thought.String()
	if len(chunk.ToolCalls) > 0 {
		chunk.FinishReason = provider.FinishReasonToolCalls
	}
	return chunk, nil
}

// toUsage converts usage metadata.
func toUsage(usage *genai.GenerateContentResponseUsageMetadata) *provider.Usage {
	if usage == nil {
		return nil
	}
	return &provider.Usage{
		PromptTokens:     int(usage.PromptTokenCount),
		CompletionTokens: int(usage.CandidatesTokenCount + usage.ThoughtsTokenCount),
		TotalTokens:      int(usage.TotalTokenCount),
	}
}

// asAPIError extracts a genai.APIError, which the SDK returns by value.
func asAPIError(err error) (*genai.APIError, bool) {
	var byValue genai.APIError
	if errors.As(err, &byValue) {
		return &byValue, true
	}
	var byPointer *genai.APIError
	if errors.As(err, &byPointer) && byPointer != nil {
		return byPointer, true
	}
	return nil, false
}

// mapGeminiError maps Gemini API errors to provider errors.
func mapGeminiError(err error) error {
	if err == nil {
		return nil
	}

	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) {
		return err
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return &provider.ProviderError{
			Code:       provider.ErrorCodeNetwork,
			Message:    "network error",
			Underlying: err,
			Retryable:  true,
		}
	}

	switch apiErr.Code {
	case 401:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeAuth,
			Message:    "authentication failed",
			Underlying: err,
		}
	case 403:
		return &provider.ProviderError{
			Code:       provider.ErrorCodePermission,
			Message:    "permission denied",
			Underlying: err,
		}
	case 429:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeRateLimit,
			Message:    "rate limit exceeded",
			Underlying: err,
			Retryable:  true,
			RetryAfter: parseRetryAfter(apiErr),
		}
	case 400:
		code := provider.ErrorCodeInvalidRequest
		if strings.Contains(strings.ToLower(apiErr.Message), "api key") {
			code = provider.ErrorCodeAuth
		}
		return &provider.ProviderError{
			Code:       code,
			Message:    fmt.Sprintf("invalid request: %s", apiErr.Message),
			Underlying: err,
		}
	case 404:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeInvalidModel,
			Message:    fmt.Sprintf("model not found: %s", apiErr.Message),
			Underlying: err,
		}
	case 500, 502, 503, 504:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeUnavailable,
			Message:    "service unavailable",
			Underlying: err,
			Retryable:  true,
		}
	default:
		return &provider.ProviderError{
			Code:       provider.ErrorCodeNetwork,
			Message:    fmt.Sprintf("API error: %s", apiErr.Message),
			Underlying: err,
			Retryable:  true,
		}
	}
}

var retryKeys = []string{"retryDelay", "retry_after", "retryAfter", "Retry-After"}

// parseRetryAfter looks for a retry hint in the error details, including
// one nested under "metadata".
func parseRetryAfter(apiErr *genai.APIError) *time.Duration {
	if apiErr == nil {
		return nil
	}
	for _, detail := range apiErr.Details {
		if d := retryFromMap(detail); d != nil {
			return d
		}
		if meta, ok := detail["metadata"].(map[string]any); ok {
			if d := retryFromMap(meta); d != nil {
				return d
			}
		}
	}
	return nil
}

func retryFromMap(m map[string]any) *time.Duration {
	for _, key := range retryKeys {
		if v, ok := m[key]; ok {
			if d := parseRetryValue(v); d != nil {
				return d
			}
		}
	}
	return nil
}

// parseRetryValue accepts seconds as a number, a numeric string, a Go or
// protobuf duration string ("30s"), or a {seconds, nanos} object.
func parseRetryValue(v any) *time.Duration {
	var d time.Duration
	switch val := v.(type) {
	case int:
		d = time.Duration(val) * time.Second
	case int64:
		d = time.Duration(val) * time.Second
	case float64:
		d = time.Duration(val * float64(time.Second))
	case string:
		if val == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			d = time.Duration(f * float64(time.Second))
		} else if parsed, err := time.ParseDuration(val); err == nil {
			d = parsed
		} else {
			return nil
		}
	case map[string]any:
		secs, hasSecs := val["seconds"]
		nanos, hasNanos := val["nanos"]
		if !hasSecs && !hasNanos {
			return nil
		}
		if hasSecs {
			s := parseRetryValue(secs)
			if s == nil {
				return nil
			}
			d += *s
		}
		if hasNanos {
			switch n := nanos.(type) {
			case int:
				d += time.Duration(n)
			case int64:
				d += time.Duration(n)
			case float64:
				d += time.Duration(n)
			}
		}
	default:
		return nil
	}
	return &d
}
