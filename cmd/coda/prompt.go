package main

import (
	"fmt"
	"strings"
)

const basePrompt = `You are coda, a coding assistant working inside the user's project.

Work in small verified steps:
- Read a file before editing it; edits must match the current content exactly.
- Prefer edit_file over rewriting whole files.
- Use search_content and find_files to locate code instead of guessing paths.
- After changing code, check get_diagnostics or run the project's tests when available.
- Keep a todo list with todo_write for tasks with several steps.

If the user rejects a tool call, stop and wait for their next instruction.
Answer concisely. Use Markdown for code.`

// systemPrompt is the base prompt plus the workspace facts the model needs.
func systemPrompt(root string, tools []string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	fmt.Fprintf(&sb, "\n\nWorkspace root: %s\nAll paths are relative to the workspace root.", root)
	if len(tools) > 0 {
		fmt.Fprintf(&sb, "\nBuilt-in tools: %s.", strings.Join(tools, ", "))
	}
	return sb.String()
}
