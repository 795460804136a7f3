package provider

import "context"

// Provider is a streaming language-model backend.
type Provider interface {
	// Stream starts a completion. The returned stream is bound to ctx:
	// cancelling ctx aborts the in-flight request.
	Stream(ctx context.Context, req *Request) (Stream, error)

	// Model returns the active model name.
	Model() string

	// SetModel changes the active model at runtime.
	SetModel(model string) error
}

// Stream provides access to streaming response chunks.
type Stream interface {
	// Next returns the next chunk, or io.EOF when done.
	Next() (*Chunk, error)

	// Close releases resources.
	Close() error
}
