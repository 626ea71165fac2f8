// Package copilot implements a typed client for the GitHub Copilot
// language server dialect.
//
// The client owns the server child process and a JSON-RPC connection
// over its stdio. It exposes the dialect's request catalog (editor
// info, authentication, version, completions) and the standard
// document-sync notifications, tracks in-flight completion request
// ids so superseded requests can be cancelled server-side, and routes
// server-initiated notifications through a keyed dispatcher.
//
// Completion requests retry on transient server errors because the
// server's buffer model may lag the didChange notification that
// precedes each request. When a request is abandoned, the client
// restores the server's view of the original buffer content so its
// state does not diverge from the editor's.
package copilot
