package services

import (
	"fmt"
	"strings"

	"github.com/Cyclone1070/coda/internal/tool"
)

// maxResultLines caps how much tool output is echoed into the transcript.
const maxResultLines = 20

// FormatToolDescription generates a one-line description from tool args.
func FormatToolDescription(name string, args map[string]any) string {
	str := func(key string) (string, bool) {
		v, ok := args[key].(string)
		return v, ok && v != ""
	}

	switch name {
	case "read_file", "write_file", "edit_file", "get_diagnostics":
		if path, ok := str("path"); ok {
			return fmt.Sprintf("%s %s", name, path)
		}
	case "list_files":
		if path, ok := str("path"); ok {
			return fmt.Sprintf("%s %s", name, path)
		}
		return name + " ."
	case "find_files", "analyze_workspace":
		if pattern, ok := str("pattern"); ok {
			return fmt.Sprintf("%s '%s'", name, pattern)
		}
	case "search_content":
		if query, ok := str("query"); ok {
			return fmt.Sprintf("%s '%s'", name, query)
		}
	case "execute_command":
		if cmd, ok := str("command"); ok {
			return fmt.Sprintf("%s '%s'", name, cmd)
		}
	}
	return name
}

// FormatToolResult renders a finished call for the transcript. Displays
// take precedence over the raw content.
func FormatToolResult(description string, res tool.Result) string {
	var sb strings.Builder
	switch {
	case res.UserRejected:
		fmt.Fprintf(&sb, "✗ %s (rejected)", description)
		return sb.String()
	case !res.Success:
		fmt.Fprintf(&sb, "✗ %s", description)
	default:
		fmt.Fprintf(&sb, "✓ %s", description)
	}

	body := RenderDisplay(res.Display)
	if body == "" && !res.Success {
		body = res.Error
	}
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(truncateLines(body, maxResultLines))
	}
	return sb.String()
}

// RenderDisplay turns a tool display into plain text. Unknown or nil
// displays render as "".
func RenderDisplay(display tool.ToolDisplay) string {
	switch d := display.(type) {
	case tool.StringDisplay:
		return string(d)
	case tool.DiffDisplay:
		header := fmt.Sprintf("+%d -%d", d.AddedLines, d.RemovedLines)
		if d.Diff == "" {
			return header
		}
		return header + "\n" + strings.TrimRight(d.Diff, "\n")
	case tool.ShellDisplay:
		out := fmt.Sprintf("$ %s (exit %d)", d.Command, d.ExitCode)
		if trimmed := strings.TrimRight(d.Output, "\n"); trimmed != "" {
			out += "\n" + trimmed
		}
		return out
	default:
		return ""
	}
}

func truncateLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-n)
}
