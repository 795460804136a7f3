// Package todo implements the todo_read and todo_write tools the model uses
// to plan multi-step work.
package todo

import (
	"context"
	"fmt"

	"github.com/Cyclone1070/coda/internal/tool"
)

// ReadTodosTool returns the current list.
type ReadTodosTool struct {
	store *Store
}

// NewReadTodosTool creates a ReadTodosTool backed by store.
func NewReadTodosTool(store *Store) *ReadTodosTool {
	if store == nil {
		panic("store is required")
	}
	return &ReadTodosTool{store: store}
}

func (t *ReadTodosTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "todo_read",
		Description: "Read the current todo list.",
		Parameters:  &tool.Schema{Type: tool.TypeObject, Properties: map[string]*tool.Schema{}},
	}
}

func (t *ReadTodosTool) Category() tool.Category {
	return tool.Safe
}

func (t *ReadTodosTool) Execute(_ context.Context, _ map[string]any) (tool.Result, error) {
	todos := t.store.Read()
	res := tool.Succeeded(Render(todos))
	res.Display = tool.StringDisplay(fmt.Sprintf("%d todo(s)", len(todos)))
	return res, nil
}

// WriteTodosTool replaces the list.
type WriteTodosTool struct {
	store *Store
}

// NewWriteTodosTool creates a WriteTodosTool backed by store.
func NewWriteTodosTool(store *Store) *WriteTodosTool {
	if store == nil {
		panic("store is required")
	}
	return &WriteTodosTool{store: store}
}

func (t *WriteTodosTool) Declaration() tool.Declaration {
	return tool.Declaration{
		Name:        "todo_write",
		Description: "Replace the todo list. Send the complete list every time; items not included are removed.",
		Parameters: &tool.Schema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.Schema{
				"todos": {
					Type: tool.TypeArray,
					Items: &tool.Schema{
						Type: tool.TypeObject,
						Properties: map[string]*tool.Schema{
							"description": {Type: tool.TypeString},
							"status":      {Type: tool.TypeString, Enum: statuses},
						},
						Required: []string{"description", "status"},
					},
				},
			},
			Required: []string{"todos"},
		},
	}
}

func (t *WriteTodosTool) Category() tool.Category {
	return tool.Safe
}

func (t *WriteTodosTool) Validate(args map[string]any) error {
	var req WriteTodosRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return err
	}
	return req.Validate()
}

func (t *WriteTodosTool) Execute(_ context.Context, args map[string]any) (tool.Result, error) {
	var req WriteTodosRequest
	if err := tool.DecodeArgs(args, &req); err != nil {
		return tool.Failed("%v", err), nil
	}
	if err := req.Validate(); err != nil {
		return tool.Failed("%v", err), nil
	}

	t.store.Write(req.Todos)
	res := tool.Succeeded(Render(req.Todos))
	res.Message = fmt.Sprintf("Saved %d todo(s).", len(req.Todos))
	res.Display = tool.StringDisplay(Render(req.Todos))
	return res, nil
}
