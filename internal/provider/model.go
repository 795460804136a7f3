package provider

import (
	"encoding/json"

	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`

	// ToolCalls is set on assistant messages that invoke tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool messages and refer back to the call.
	ToolCallID   string `json:"tool_call_id,omitempty"`
	Name         string `json:"name,omitempty"`
	UserRejected bool   `json:"user_rejected,omitempty"`
}

// FunctionCall is the function half of a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCall is a model request to run one tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

// NewToolCallID returns an id for backends that do not assign one.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// Request is one completion request.
type Request struct {
	Messages    []Message
	Tools       []tool.Declaration
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for one request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason describes why the stream produced its last chunk.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
	// FinishReasonUsage marks the terminal chunk carrying token usage.
	FinishReasonUsage FinishReason = "usage"
)

// Chunk is one increment of a streaming response.
type Chunk struct {
	Delta        string
	Reasoning    string
	ToolCalls    []ToolCall
	Usage        *Usage
	FinishReason FinishReason
}

// Response is a fully drained stream.
type Response struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Usage     *Usage
}
