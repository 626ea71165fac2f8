package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const defaultOllamaBase = "http://localhost:11434"

// Ollama streams completions from a local Ollama server. The stream
// is JSON objects, one per line, with no SSE framing.
type Ollama struct {
	baseURL string
}

// NewOllama creates an Ollama vendor. An empty baseURL targets the
// default local server.
func NewOllama(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaBase
	}
	return &Ollama{baseURL: baseURL}
}

// Name implements Vendor.
func (o *Ollama) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

// BuildRequest implements Vendor. Tool results are sent as user
// messages; the local API has no tool role.
func (o *Ollama) BuildRequest(ctx context.Context, req Request) (*http.Request, error) {
	messages := make([]ollamaMessage, len(req.Messages))
	for i, m := range req.Messages {
		role := m.Role
		if role == RoleTool {
			role = RoleUser
		}
		messages[i] = ollamaMessage{Role: role, Content: m.Content}
	}

	body, err := json.Marshal(ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			Stop:        req.Stop,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

type ollamaChunk struct {
	Model   string `json:"model"`
	Message *struct {
		Role    Role   `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// ParseLine implements Vendor. The server does not assign chunk ids,
// so one is generated per chunk.
func (o *Ollama) ParseLine(line []byte) (*Chunk, bool, error) {
	if msg := gjson.GetBytes(line, "error"); msg.Exists() {
		return nil, false, &VendorError{Vendor: o.Name(), Message: msg.String()}
	}

	var parsed ollamaChunk
	if err := json.Unmarshal(line, &parsed); err != nil {
		return nil, false, nil
	}

	chunk := &Chunk{ID: uuid.NewString(), Model: parsed.Model}
	if parsed.Message != nil {
		chunk.Delta = Delta{Role: parsed.Message.Role, Content: parsed.Message.Content}
	}
	if parsed.Done {
		chunk.FinishReason = "stop"
	}
	return chunk, parsed.Done, nil
}

// DecodeError implements Vendor.
func (o *Ollama) DecodeError(statusCode int, body []byte) error {
	return &HTTPError{
		Vendor:     o.Name(),
		StatusCode: statusCode,
		Message:    vendorMessage(body),
		Body:       body,
	}
}
