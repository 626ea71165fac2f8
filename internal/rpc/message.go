package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the JSON-RPC protocol version string.
const Version = "2.0"

// ID is a JSON-RPC request id. The wire form is preserved exactly:
// a string id stays a string and an integer id stays an integer, so
// responses correlate byte-for-byte with their requests.
type ID struct {
	raw json.RawMessage
}

// IntID returns an integer id.
func IntID(n int64) ID {
	return ID{raw: json.RawMessage(strconv.FormatInt(n, 10))}
}

// StringID returns a string id.
func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: b}
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return len(id.raw) == 0 }

// Equal reports whether two ids have the same wire form.
func (id ID) Equal(other ID) bool { return bytes.Equal(id.raw, other.raw) }

// Key returns a map key for the id's exact wire form.
func (id ID) Key() string { return string(id.raw) }

// String returns the id for logging.
func (id ID) String() string {
	if id.IsZero() {
		return "<none>"
	}
	return string(id.raw)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. Only string and integer
// ids are accepted.
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		id.raw = nil
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("%w: invalid string id: %v", ErrProtocol, err)
		}
	default:
		if _, err := strconv.ParseInt(string(trimmed), 10, 64); err != nil {
			return fmt.Errorf("%w: invalid id %q", ErrProtocol, trimmed)
		}
	}
	id.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// Request is an outbound or server-initiated JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response correlated to a request by id.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is a JSON-RPC message without an id; no reply is
// expected.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return b, nil
}
