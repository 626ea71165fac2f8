package copilot

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotInstalled indicates the language server binary or its
	// version marker is missing.
	ErrNotInstalled = errors.New("copilot: language server not installed")

	// ErrOutdated indicates the installed language server is below
	// the minimum supported version.
	ErrOutdated = errors.New("copilot: language server version unsupported")

	// ErrNotSignedIn indicates the server rejected an operation
	// because no user is authenticated. Callers should prompt for
	// sign-in rather than report a generic failure.
	ErrNotSignedIn = errors.New("copilot: not signed in")
)

// HandlerUnavailableError reports a server notification that no
// registered handler claimed and that is not a known diagnostic
// category.
type HandlerUnavailableError struct {
	Method string
}

// Error implements the error interface.
func (e *HandlerUnavailableError) Error() string {
	return fmt.Sprintf("copilot: no handler for notification %q", e.Method)
}

// DispatchError wraps a handler failure during notification dispatch.
type DispatchError struct {
	Method string
	Err    error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("copilot: dispatching %q: %v", e.Method, e.Err)
}

// Unwrap returns the handler's error.
func (e *DispatchError) Unwrap() error { return e.Err }
