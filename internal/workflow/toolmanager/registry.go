package toolmanager

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/Cyclone1070/coda/internal/logger"
	"github.com/Cyclone1070/coda/internal/tool"
)

// Executor runs a tool.
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (tool.Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, args map[string]any) (tool.Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (tool.Result, error) {
	return f(ctx, args)
}

// Definition binds a declaration to its executor and approval category.
type Definition struct {
	Declaration tool.Declaration
	Category    tool.Category
	Executor    Executor
	// Validate, when set, runs before approval. A non-nil error becomes a
	// failure result and the call is never approved or executed.
	Validate func(args map[string]any) error
	// Preview, when set, describes the call to the approval prompt.
	Preview func(args map[string]any) string
}

// FromTool builds a definition from a tool, picking up its optional
// Validate and Preview methods.
func FromTool(t Tool) Definition {
	def := Definition{
		Declaration: t.Declaration(),
		Category:    t.Category(),
		Executor:    ExecutorFunc(t.Execute),
	}
	if v, ok := t.(validator); ok {
		def.Validate = v.Validate
	}
	if p, ok := t.(previewer); ok {
		def.Preview = p.Preview
	}
	return def
}

// Registry holds tool definitions keyed by name. It is safe for concurrent
// use; readers always see a complete table.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
	log  *slog.Logger
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		defs: make(map[string]Definition),
		log:  logger.WithComponent("toolmanager"),
	}
	for _, t := range tools {
		r.Register(FromTool(t))
	}
	return r
}

// Register adds def, overwriting any definition with the same name.
func (r *Registry) Register(def Definition) {
	if def.Declaration.Name == "" {
		panic("tool name is required")
	}
	if def.Executor == nil {
		panic(fmt.Sprintf("tool %s has no executor", def.Declaration.Name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Declaration.Name]; exists {
		r.log.Debug("overwriting tool", "tool", def.Declaration.Name)
	}
	r.defs[def.Declaration.Name] = def
}

// Unregister removes a tool. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, name)
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Category returns the category of name.
func (r *Registry) Category(name string) (tool.Category, bool) {
	def, ok := r.Lookup(name)
	return def.Category, ok
}

// Declarations returns a snapshot of all declarations sorted by name.
func (r *Registry) Declarations() []tool.Declaration {
	r.mu.RLock()
	decls := make([]tool.Declaration, 0, len(r.defs))
	for _, def := range r.defs {
		decls = append(decls, def.Declaration)
	}
	r.mu.RUnlock()

	sort.Slice(decls, func(i, j int) bool {
		return decls[i].Name < decls[j].Name
	})
	return decls
}

// Names returns all tool names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ByCategory returns the sorted names of tools in cat.
func (r *Registry) ByCategory(cat tool.Category) []string {
	r.mu.RLock()
	var names []string
	for name, def := range r.defs {
		if def.Category == cat {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Execute runs a registered tool. Executor errors and panics come back as
// failure results.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res tool.Result) {
	def, ok := r.Lookup(name)
	if !ok {
		return tool.Failed("tool %q does not exist", name)
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			res = tool.Failed("tool %s crashed: %v", name, p)
		}
	}()

	res, err := def.Executor.Execute(ctx, args)
	if err != nil {
		return tool.Failed("%v", err)
	}
	return res
}
