package gemini

import (
	"errors"
	"testing"
	"time"

	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGeminiContents(t *testing.T) {
	history := []provider.Message{
		{Role: provider.RoleSystem, Content: "base prompt"},
		{Role: provider.RoleUser, Content: "list files"},
		{Role: provider.RoleAssistant, Content: "sure", ToolCalls: []provider.ToolCall{
			{ID: "c1", Function: provider.FunctionCall{Name: "list_files", Arguments: []byte(`{"path":"."}`)}},
			{ID: "c2", Function: provider.FunctionCall{Name: "todo_read", Arguments: []byte(`not json`)}},
		}},
		{Role: provider.RoleTool, ToolCallID: "c1", Name: "list_files", Content: "a.go"},
		{Role: provider.RoleTool, ToolCallID: "c2", Name: "todo_read", Content: "[]"},
		{Role: provider.RoleSystem, Content: "User has interrupted the request"},
	}

	system, contents := toGeminiContents(history)

	require.NotNil(t, system)
	assert.Equal(t, "base prompt", system.Parts[0].Text)
	require.Len(t, contents, 4)

	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "list files", contents[0].Parts[0].Text)

	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.Len(t, contents[1].Parts, 3)
	assert.Equal(t, "sure", contents[1].Parts[0].Text)
	assert.Equal(t, "c1", contents[1].Parts[1].FunctionCall.ID)
	assert.Equal(t, map[string]any{"path": "."}, contents[1].Parts[1].FunctionCall.Args)
	assert.Equal(t, map[string]any{}, contents[1].Parts[2].FunctionCall.Args)

	require.Len(t, contents[2].Parts, 2, "consecutive tool results are grouped")
	assert.Equal(t, "c1", contents[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "a.go", contents[2].Parts[0].FunctionResponse.Response["content"])
	assert.Equal(t, "todo_read", contents[2].Parts[1].FunctionResponse.Name)

	assert.Equal(t, "[system] User has interrupted the request", contents[3].Parts[0].Text)
}

func TestMapGeminiError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      provider.ErrorCode
		retryable bool
	}{
		{"unauthorized", genai.APIError{Code: 401}, provider.ErrorCodeAuth, false},
		{"forbidden", &genai.APIError{Code: 403}, provider.ErrorCodePermission, false},
		{"invalid key reported as 400", genai.APIError{Code: 400, Message: "API key not valid"}, provider.ErrorCodeAuth, false},
		{"bad request", genai.APIError{Code: 400, Message: "bad field"}, provider.ErrorCodeInvalidRequest, false},
		{"model not found", genai.APIError{Code: 404}, provider.ErrorCodeInvalidModel, false},
		{"rate limit", genai.APIError{Code: 429}, provider.ErrorCodeRateLimit, true},
		{"unavailable", genai.APIError{Code: 503}, provider.ErrorCodeUnavailable, true},
		{"other status", genai.APIError{Code: 418}, provider.ErrorCodeNetwork, true},
		{"transport", errors.New("dial tcp: refused"), provider.ErrorCodeNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapGeminiError(tt.err)
			assert.Equal(t, tt.code, provider.CodeOf(mapped))
			assert.Equal(t, tt.retryable, provider.IsRetryable(mapped))
		})
	}

	assert.Nil(t, mapGeminiError(nil))
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		apiErr   *genai.APIError
		expected *time.Duration
	}{
		{"nil error", nil, nil},
		{"empty details", &genai.APIError{Code: 429}, nil},
		{"retryDelay as int", &genai.APIError{Details: []map[string]any{{"retryDelay": 120}}}, durationPtr(120 * time.Second)},
		{"retryDelay as duration string", &genai.APIError{Details: []map[string]any{{"retryDelay": "42s"}}}, durationPtr(42 * time.Second)},
		{"retry_after snake case", &genai.APIError{Details: []map[string]any{{"retry_after": 90}}}, durationPtr(90 * time.Second)},
		{"Retry-After header style", &genai.APIError{Details: []map[string]any{{"Retry-After": "7"}}}, durationPtr(7 * time.Second)},
		{
			"google duration object",
			&genai.APIError{Details: []map[string]any{{"retryDelay": map[string]any{"seconds": 5, "nanos": 500000000}}}},
			durationPtr(5*time.Second + 500*time.Millisecond),
		},
		{"nested in metadata", &genai.APIError{Details: []map[string]any{{"metadata": map[string]any{"retryDelay": 100}}}}, durationPtr(100 * time.Second)},
		{"second detail", &genai.APIError{Details: []map[string]any{{"x": 1}, {"retryDelay": 50}}}, durationPtr(50 * time.Second)},
		{"no retry field", &genai.APIError{Details: []map[string]any{{"x": "y"}}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRetryAfter(tt.apiErr))
		})
	}
}

func TestParseRetryValue_Invalid(t *testing.T) {
	assert.Nil(t, parseRetryValue(""))
	assert.Nil(t, parseRetryValue("not-a-number"))
	assert.Nil(t, parseRetryValue(true))
	assert.Nil(t, parseRetryValue(nil))
	assert.Nil(t, parseRetryValue(map[string]any{"other": "field"}))
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
