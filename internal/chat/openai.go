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

const defaultOpenAIBase = "https://api.openai.com/v1"

var doneSentinel = []byte("[DONE]")

// OpenAI streams completions from the OpenAI chat completions API or
// any compatible endpoint.
type OpenAI struct {
	apiKey  string
	baseURL string
}

// NewOpenAI creates an OpenAI vendor. An empty baseURL uses the
// public API.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBase
	}
	return &OpenAI{apiKey: apiKey, baseURL: baseURL}
}

// Name implements Vendor.
func (o *OpenAI) Name() string { return "openai" }

type openAIMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream"`
}

// BuildRequest implements Vendor.
func (o *OpenAI) BuildRequest(ctx context.Context, req Request) (*http.Request, error) {
	body, err := json.Marshal(openAIRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("encode openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	return httpReq, nil
}

// ParseLine implements Vendor.
func (o *OpenAI) ParseLine(line []byte) (*Chunk, bool, error) {
	return parseOpenAILine(o.Name(), line)
}

// DecodeError implements Vendor.
func (o *OpenAI) DecodeError(statusCode int, body []byte) error {
	return &HTTPError{
		Vendor:     o.Name(),
		StatusCode: statusCode,
		Message:    vendorMessage(body),
		Body:       body,
	}
}

func openAIRequestBody(req Request) openAIRequest {
	messages := make([]openAIMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCalls,
		}
	}
	return openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      true,
	}
}

type openAIChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// parseOpenAILine handles the OpenAI stream dialect, shared with the
// compatible endpoints that speak it.
func parseOpenAILine(vendor string, line []byte) (*Chunk, bool, error) {
	payload, ok := sse.Data(line)
	if !ok {
		return nil, false, nil
	}
	if bytes.Equal(payload, doneSentinel) {
		return nil, true, nil
	}

	// An error envelope mid-stream is a real failure; anything else
	// unparseable is dropped.
	if msg := gjson.GetBytes(payload, "error.message"); msg.Exists() {
		return nil, false, &VendorError{Vendor: vendor, Message: msg.String()}
	}

	var parsed openAIChunk
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, false, nil
	}

	chunk := &Chunk{ID: parsed.ID, Model: parsed.Model}
	if len(parsed.Choices) > 0 {
		choice := parsed.Choices[0]
		chunk.Delta = Delta{Role: choice.Delta.Role, Content: choice.Delta.Content}
		chunk.FinishReason = choice.FinishReason
	}
	if parsed.Usage != nil {
		chunk.Usage = &Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return chunk, false, nil
}
