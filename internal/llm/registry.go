package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ndelin/parley/internal/config"
)

// Registry holds the configured backend clients, keyed by provider name.
// It is populated once at startup and read-only thereafter.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds the client set from configuration. Providers that
// are not configured are simply absent; requests naming them fail with
// an unknown-provider error at dispatch time.
func NewRegistry(cfg config.ProvidersConfig, logger *slog.Logger) *Registry {
	r := &Registry{clients: make(map[string]Client)}

	if cfg.OpenRouter.Configured() {
		r.clients["openrouter"] = NewOpenAIClient("openrouter", cfg.OpenRouter.BaseURL, cfg.OpenRouter.APIKey, logger)
	}
	if cfg.Ollama.Configured() {
		r.clients["ollama"] = NewOllamaClient(cfg.Ollama.URL, logger)
	}

	return r
}

// Register adds or replaces a client. Used by tests to inject mocks.
func (r *Registry) Register(c Client) {
	r.clients[c.Name()] = c
}

// Get returns the client for a provider name.
func (r *Registry) Get(provider string) (Client, error) {
	c, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (configured: %v)", provider, r.Providers())
	}
	return c, nil
}

// PingAll probes every configured provider and reports per-provider
// reachability. A nil map value means the provider answered.
func (r *Registry) PingAll(ctx context.Context) map[string]error {
	out := make(map[string]error, len(r.clients))
	for name, c := range r.clients {
		out[name] = c.Ping(ctx)
	}
	return out
}

// Providers returns the configured provider names, sorted.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
