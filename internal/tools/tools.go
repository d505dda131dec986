// Package tools defines the tool surface the model can call: the
// provider interface, the in-process registry, and the wire shaping of
// tool specs for the llm layer.
package tools

import (
	"context"
	"sort"
	"time"
)

// Spec describes one callable tool. Parameters is a JSON-schema object.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Provider is anything that can list callable tools and execute one by
// name. The in-process Registry implements it; remote tool back-ends are
// adapted to it at the edge.
//
// The orchestrator lists tools fresh at the start of every turn. A
// provider whose ListTools fails contributes zero tools for that turn;
// the turn proceeds with the remaining providers.
type Provider interface {
	// ListTools returns the tools currently available from this provider.
	ListTools(ctx context.Context) ([]Spec, error)

	// Call executes a tool by name. Failures, including timeouts, come
	// back as a *ToolError rather than a panic or a bare error.
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Tool is a registry entry: a spec plus its handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Registry is the in-process tool provider.
type Registry struct {
	tools   map[string]*Tool
	timeout time.Duration
}

// NewRegistry creates an empty registry. Each call is bounded by timeout;
// zero selects 30 seconds.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		timeout: timeout,
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// ListTools returns the specs of all registered tools, sorted by name so
// the model sees a stable ordering.
func (r *Registry) ListTools(ctx context.Context) ([]Spec, error) {
	specs := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, Spec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// Call executes a tool by name with the registry's per-call timeout. A
// handler error or a timeout is returned as a *ToolError.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", &ToolError{Tool: name, Err: ErrToolUnknown}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return "", &ToolError{Tool: name, Err: err}
	}
	if ctx.Err() != nil {
		return "", &ToolError{Tool: name, Err: ctx.Err()}
	}
	return result, nil
}

// FindProvider returns the first provider in providers whose listed
// tools include name, using the per-turn spec listing in listed (indexed
// in step with providers). Returns -1 when no provider exposes the tool.
func FindProvider(listed [][]Spec, name string) int {
	for i, specs := range listed {
		for _, s := range specs {
			if s.Name == name {
				return i
			}
		}
	}
	return -1
}

// ForLLM shapes specs into the `{"type":"function",...}` objects the
// chat APIs expect.
func ForLLM(specs []Spec) []map[string]any {
	if len(specs) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(specs))
	for _, s := range specs {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        s.Name,
				"description": s.Description,
				"parameters":  s.Parameters,
			},
		})
	}
	return out
}
