package todo

import "sync"

// Store holds the session's todo list in memory.
type Store struct {
	mu    sync.RWMutex
	todos []Todo
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Read returns a copy of the current list.
func (s *Store) Read() []Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Todo(nil), s.todos...)
}

// Write replaces the list with a copy of todos.
func (s *Store) Write(todos []Todo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append([]Todo(nil), todos...)
}
