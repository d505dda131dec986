package llm

import "context"

// Client is the interface that all AI backends implement.
type Client interface {
	// Name returns the provider identifier (e.g. "openrouter", "ollama").
	Name() string

	// Chat sends a chat completion request and returns the response.
	// Transport failures, non-2xx statuses, and context deadlines are
	// returned as a *BackendError.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
