package todo

import (
	"fmt"
	"strings"
)

// Status is the state of a todo item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var statuses = []string{
	string(StatusPending),
	string(StatusInProgress),
	string(StatusCompleted),
	string(StatusCancelled),
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) marker() string {
	switch s {
	case StatusInProgress:
		return "[~]"
	case StatusCompleted:
		return "[x]"
	case StatusCancelled:
		return "[-]"
	default:
		return "[ ]"
	}
}

// Todo is a single task item.
type Todo struct {
	Description string `json:"description"`
	Status      Status `json:"status"`
}

// WriteTodosRequest replaces the whole list.
type WriteTodosRequest struct {
	Todos []Todo `json:"todos"`
}

// Validate checks every item. An empty list is allowed and clears the store.
func (r *WriteTodosRequest) Validate() error {
	for i, todo := range r.Todos {
		if !todo.Status.valid() {
			return &ItemError{Index: i, Cause: fmt.Errorf("%w %q", ErrInvalidStatus, todo.Status)}
		}
		if strings.TrimSpace(todo.Description) == "" {
			return &ItemError{Index: i, Cause: ErrEmptyDescription}
		}
	}
	return nil
}

// Render formats todos as a checklist.
func Render(todos []Todo) string {
	if len(todos) == 0 {
		return "No todos."
	}
	var b strings.Builder
	for i, todo := range todos {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s", todo.Status.marker(), todo.Description)
	}
	return b.String()
}
