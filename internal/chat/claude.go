package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/dshills/copilot-bridge/internal/chat/sse"
)

const (
	defaultClaudeBase      = "https://api.anthropic.com/v1"
	claudeAPIVersion       = "2023-06-01"
	defaultClaudeMaxTokens = 4000
)

// Claude streams completions from the Anthropic messages API.
type Claude struct {
	apiKey  string
	baseURL string
}

// NewClaude creates a Claude vendor. An empty baseURL uses the public
// API.
func NewClaude(apiKey, baseURL string) *Claude {
	if baseURL == "" {
		baseURL = defaultClaudeBase
	}
	return &Claude{apiKey: apiKey, baseURL: baseURL}
}

// Name implements Vendor.
func (c *Claude) Name() string { return "claude" }

type claudeTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Role    Role              `json:"role"`
	Content []claudeTextBlock `json:"content"`
}

type claudeRequest struct {
	Model         string            `json:"model"`
	System        []claudeTextBlock `json:"system,omitempty"`
	Messages      []claudeMessage   `json:"messages"`
	MaxTokens     int               `json:"max_tokens"`
	Temperature   float64           `json:"temperature,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        bool              `json:"stream"`
}

// BuildRequest implements Vendor. System messages move to the
// top-level system field; tool results become assistant turns; and
// consecutive same-role turns collapse into one message with several
// text blocks, which the API requires.
func (c *Claude) BuildRequest(ctx context.Context, req Request) (*http.Request, error) {
	var system []claudeTextBlock
	var messages []claudeMessage

	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, claudeTextBlock{Type: "text", Text: m.Content})
			continue
		}

		role := RoleUser
		if m.Role == RoleAssistant || m.Role == RoleTool {
			role = RoleAssistant
		}
		block := claudeTextBlock{Type: "text", Text: m.Content}

		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, block)
			continue
		}
		messages = append(messages, claudeMessage{
			Role:    role,
			Content: []claudeTextBlock{block},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	body, err := json.Marshal(claudeRequest{
		Model:         req.Model,
		System:        system,
		Messages:      messages,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		StopSequences: req.Stop,
		Stream:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode claude request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)
	httpReq.Header.Set("x-api-key", c.apiKey)
	return httpReq, nil
}

// ParseLine implements Vendor. The stream is typed events; only a few
// carry content, and message_stop ends the stream.
func (c *Claude) ParseLine(line []byte) (*Chunk, bool, error) {
	payload, ok := sse.Data(line)
	if !ok {
		// "event:" framing lines carry no payload.
		return nil, false, nil
	}

	switch gjson.GetBytes(payload, "type").String() {
	case "message_start":
		msg := gjson.GetBytes(payload, "message")
		return &Chunk{
			ID:    msg.Get("id").String(),
			Model: msg.Get("model").String(),
			Delta: Delta{Role: RoleAssistant},
		}, false, nil

	case "content_block_delta":
		return &Chunk{
			Delta: Delta{Content: gjson.GetBytes(payload, "delta.text").String()},
		}, false, nil

	case "message_delta":
		chunk := &Chunk{
			FinishReason: gjson.GetBytes(payload, "delta.stop_reason").String(),
		}
		if usage := gjson.GetBytes(payload, "usage"); usage.Exists() {
			chunk.Usage = &Usage{
				CompletionTokens: int(usage.Get("output_tokens").Int()),
			}
		}
		return chunk, false, nil

	case "message_stop":
		return nil, true, nil

	case "error":
		return nil, false, &VendorError{
			Vendor:  c.Name(),
			Message: gjson.GetBytes(payload, "error.message").String(),
		}

	default:
		// ping, content_block_start, content_block_stop, and anything
		// newer.
		return nil, false, nil
	}
}

// DecodeError implements Vendor.
func (c *Claude) DecodeError(statusCode int, body []byte) error {
	return &HTTPError{
		Vendor:     c.Name(),
		StatusCode: statusCode,
		Message:    vendorMessage(body),
		Body:       body,
	}
}
