// Package llm provides LLM client implementations.
//
// This file defines the error type shared by all backend adapters.
package llm

import "fmt"

// BackendError is returned by a Client when the backend is unreachable,
// responds with a non-2xx status, or the call exceeds its deadline.
// It is fatal to the turn that issued the call; callers surface it as an
// error result rather than letting it escape as a panic or a raw error.
type BackendError struct {
	Provider string // provider identifier
	Status   int    // HTTP status, 0 for transport-level failures
	Body     string // truncated response body, if any
	Err      error  // underlying error, if any
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: backend error", e.Provider)
	}
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *BackendError) Unwrap() error {
	return e.Err
}
