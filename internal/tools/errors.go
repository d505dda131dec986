// Package tools provides the tool registry and execution framework.
//
// This file defines the error types for tool execution.
package tools

import (
	"errors"
	"fmt"
)

// ErrToolUnknown is the sentinel wrapped by a ToolError when a call
// targets a tool no provider exposes.
var ErrToolUnknown = errors.New("unknown tool")

// ToolError wraps a single tool invocation failure, including timeouts.
// Tool errors are isolated: the coordinator converts them to tool-role
// error messages instead of failing the turn.
type ToolError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *ToolError) Unwrap() error {
	return e.Err
}
