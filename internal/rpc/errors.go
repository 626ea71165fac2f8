package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for connection state.
var (
	// ErrServerUnavailable indicates the connection closed or the
	// process died while a request was in flight.
	ErrServerUnavailable = errors.New("rpc: server unavailable")

	// ErrProtocol indicates a malformed frame or message.
	ErrProtocol = errors.New("rpc: protocol error")
)

// Standard JSON-RPC error codes, plus the server's extensions.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeRequestCancelled = -32800
	CodeContentModified  = -32801

	// CodeNotSignedIn is the server-specific code reported when an
	// operation requires authentication.
	CodeNotSignedIn = 1000
)

// RPCError is a JSON-RPC error object returned by the remote side.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsNotSignedIn reports whether err is a server error indicating the
// user must authenticate first.
func IsNotSignedIn(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeNotSignedIn
}
