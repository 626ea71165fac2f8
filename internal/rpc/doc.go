// Package rpc implements JSON-RPC 2.0 over a length-prefixed stdio
// framing, as spoken by language servers.
//
// A Conn wraps the reader/writer pair of a child process and provides
// request/response correlation, fire-and-forget notifications, and
// hooks for server-initiated requests and notifications. Frames use
// the HTTP-header style preamble:
//
//	Content-Length: <byte-count>\r\n
//	\r\n
//	<byte-count bytes of UTF-8 JSON>
//
// Request ids are preserved byte-for-byte, so servers that reply with
// string ids correlate just as well as those using integers.
package rpc
