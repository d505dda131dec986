// Package llm provides the provider-neutral chat types and the client
// implementations for each configured AI backend.
package llm

import "time"

// Message roles. These match the wire values used by every supported
// backend, so no translation layer is needed above the adapters.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single chat message. Messages are treated as
// immutable once constructed; history snapshots clone the ToolCalls slice.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool-role result messages
}

// ToolCall is a tool invocation requested by the model inside an
// assistant message.
type ToolCall struct {
	// ID is the provider-assigned call identifier, echoed back on the
	// corresponding tool result message. Providers that do not assign
	// one leave it empty.
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`

	// ArgumentsErr is set when the backend delivered an arguments
	// payload that could not be decoded. Arguments is nil then, and the
	// call must not be dispatched; the error text becomes the tool
	// result instead.
	ArgumentsErr error `json:"-"`
}

// Request is a single generation request. The system prompt travels
// separately from the history; adapters place it wherever their wire
// format expects it.
type Request struct {
	Model       string
	System      string
	Temperature float64
	Messages    []Message
	Tools       []map[string]any // JSON-schema tool specs, nil when tools are disabled
}

// Usage is the token accounting reported by a backend. Backends that do
// not report usage leave the zero value.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage value into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Response is the unified response from any backend. All fields use
// proper Go types; wire format conversion happens at provider boundaries
// (openai.go, ollama.go).
type Response struct {
	Model   string
	Message Message
	Usage   Usage
	Elapsed time.Duration
}
