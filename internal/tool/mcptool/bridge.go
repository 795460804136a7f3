// Package mcptool exposes tools discovered on MCP servers through the tool
// registry so the model sees them next to the built-in tools.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/mcp"
	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/Cyclone1070/coda/internal/workflow/toolmanager"
)

type registrar interface {
	Register(def toolmanager.Definition)
	Unregister(name string)
}

type toolSource interface {
	GetAllTools() []mcp.Tool
	CallTool(ctx context.Context, prefixedName string, args map[string]any) (tool.Result, error)
}

// Bridge keeps the registry in step with the tools of connected servers.
type Bridge struct {
	registry   registrar
	source     toolSource
	categories map[string]tool.Category
	log        *slog.Logger

	mu         sync.Mutex
	registered map[string]struct{}
}

// NewBridge creates a bridge. Each server's configured category applies to
// all of its tools; servers without one default to approval_required.
func NewBridge(registry registrar, source toolSource, servers []mcp.ServerConfig) *Bridge {
	if registry == nil {
		panic("registry is required")
	}
	if source == nil {
		panic("tool source is required")
	}

	b := &Bridge{
		registry:   registry,
		source:     source,
		categories: make(map[string]tool.Category, len(servers)),
		log:        logger.WithComponent("mcptool"),
		registered: make(map[string]struct{}),
	}
	for _, s := range servers {
		cat, err := tool.ParseCategory(s.Category)
		if err != nil {
			b.log.Warn("invalid category, using approval_required", "server", s.Name, "error", err)
		}
		b.categories[s.Name] = cat
	}
	return b
}

// Sync registers the current server tools and removes the ones that went
// away. It returns the registered names, sorted.
func (b *Bridge) Sync() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := make(map[string]struct{})
	for _, t := range b.source.GetAllTools() {
		b.registry.Register(b.definition(t))
		current[t.PrefixedName] = struct{}{}
	}
	for name := range b.registered {
		if _, ok := current[name]; !ok {
			b.registry.Unregister(name)
			b.log.Debug("unregistered server tool", "tool", name)
		}
	}
	b.registered = current

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)
	b.log.Info("server tools synced", "count", len(names))
	return names
}

func (b *Bridge) category(server string) tool.Category {
	if cat, ok := b.categories[server]; ok {
		return cat
	}
	return tool.ApprovalRequired
}

func (b *Bridge) definition(t mcp.Tool) toolmanager.Definition {
	name := t.PrefixedName
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return toolmanager.Definition{
		Declaration: tool.Declaration{
			Name:          name,
			Description:   describe(t),
			RawParameters: schema,
		},
		Category: b.category(t.ServerName),
		Executor: toolmanager.ExecutorFunc(func(ctx context.Context, args map[string]any) (tool.Result, error) {
			return b.source.CallTool(ctx, name, args)
		}),
		Validate: func(args map[string]any) error {
			return checkRequired(schema, args)
		},
		Preview: func(args map[string]any) string {
			return preview(t, args)
		},
	}
}

func describe(t mcp.Tool) string {
	if t.Description == "" {
		return fmt.Sprintf("Tool %s provided by the %s server.", t.Name, t.ServerName)
	}
	return fmt.Sprintf("[%s] %s", t.ServerName, t.Description)
}

// checkRequired reports the first property the schema requires that args
// lacks.
func checkRequired(schema map[string]any, args map[string]any) error {
	var missing []string
	for _, field := range requiredFields(schema) {
		if _, ok := args[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func preview(t mcp.Tool, args map[string]any) string {
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprint(args))
	}
	return fmt.Sprintf("%s on server %s\n%s", t.Name, t.ServerName, data)
}
