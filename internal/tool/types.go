package tool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type represents JSON Schema types.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Schema represents a JSON Schema for tool parameters.
type Schema struct {
	Type        Type               `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Declaration declares a tool's function signature for the LLM.
// Built-in tools describe their parameters with Parameters; tools discovered
// from external servers carry the server's schema verbatim in RawParameters.
type Declaration struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Parameters    *Schema        `json:"parameters,omitempty"`
	RawParameters map[string]any `json:"-"`
}

// JSONSchema returns the parameter schema as a generic JSON object.
func (d Declaration) JSONSchema() map[string]any {
	if d.RawParameters != nil {
		return d.RawParameters
	}
	if d.Parameters == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	data, err := json.Marshal(d.Parameters)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// Result is the uniform outcome of a tool invocation.
// A failure is carried in the value; it is never returned as an error.
type Result struct {
	Success      bool   `json:"success"`
	Content      string `json:"content,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	UserRejected bool   `json:"userRejected,omitempty"`

	// Display is the UI rendering of the result. Not sent to the model.
	Display ToolDisplay `json:"-"`
}

// Succeeded builds a successful result.
func Succeeded(content string) Result {
	return Result{Success: true, Content: content}
}

// Failed builds a failure result from a formatted message.
func Failed(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Rejected builds the result for a call the user declined.
func Rejected(toolName string) Result {
	return Result{
		Success:      false,
		UserRejected: true,
		Error:        fmt.Sprintf("user rejected the %s call", toolName),
	}
}

// LLMContent renders the result as the content of a tool message.
func (r Result) LLMContent() string {
	if r.Success {
		var parts []string
		if r.Message != "" {
			parts = append(parts, r.Message)
		}
		if r.Content != "" {
			parts = append(parts, r.Content)
		}
		if len(parts) == 0 {
			return "ok"
		}
		return strings.Join(parts, "\n\n")
	}
	if r.UserRejected {
		return "Error: " + r.Error + ". Do not retry this call unless the user asks for it."
	}
	return "Error: " + r.Error
}

// ToolDisplay is implemented by all display types returned from tools.
// The UI uses type switches to render each type appropriately.
type ToolDisplay interface {
	isToolDisplay()
}

// StringDisplay is for simple text output (most tools).
type StringDisplay string

func (StringDisplay) isToolDisplay() {}

// DiffDisplay is for file edit operations with unified diff content.
type DiffDisplay struct {
	Diff         string // Unified diff content
	AddedLines   int
	RemovedLines int
}

func (DiffDisplay) isToolDisplay() {}

// ShellDisplay is for a finished shell command.
type ShellDisplay struct {
	Command  string
	ExitCode int
	Output   string
}

func (ShellDisplay) isToolDisplay() {}
