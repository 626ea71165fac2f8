package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/dshills/copilot-bridge/internal/chat/sse"
)

const defaultGoogleBase = "https://generativelanguage.googleapis.com/v1beta"

// googleAck is the synthetic model reply that pairs with a leading
// system prompt, since the API has no system role.
const googleAck = "Got it. Let's start our conversation."

// Google streams completions from the Gemini generateContent API.
type Google struct {
	apiKey  string
	baseURL string
}

// NewGoogle creates a Google vendor. An empty baseURL uses the public
// API.
func NewGoogle(apiKey, baseURL string) *Google {
	if baseURL == "" {
		baseURL = defaultGoogleBase
	}
	return &Google{apiKey: apiKey, baseURL: baseURL}
}

// Name implements Vendor.
func (g *Google) Name() string { return "google" }

// GooglePart is one content part.
type GooglePart struct {
	Text string `json:"text"`
}

// GoogleContent is one turn in the Gemini wire format. Role is
// "user" or "model".
type GoogleContent struct {
	Role  string       `json:"role"`
	Parts []GooglePart `json:"parts"`
}

type googleRequest struct {
	Contents         []GoogleContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64  `json:"temperature,omitempty"`
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
		StopSequences   []string `json:"stopSequences,omitempty"`
	} `json:"generationConfig"`
}

// BuildRequest implements Vendor.
func (g *Google) BuildRequest(ctx context.Context, req Request) (*http.Request, error) {
	var body googleRequest
	body.Contents = MergeHistory(req.Messages)
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	body.GenerationConfig.StopSequences = req.Stop

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode google request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		g.baseURL, url.PathEscape(req.Model), url.QueryEscape(g.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// ParseLine implements Vendor. The stream has no terminal marker; it
// simply ends.
func (g *Google) ParseLine(line []byte) (*Chunk, bool, error) {
	payload, ok := sse.Data(line)
	if !ok {
		return nil, false, nil
	}

	if msg := gjson.GetBytes(payload, "error.message"); msg.Exists() {
		return nil, false, &VendorError{Vendor: g.Name(), Message: msg.String()}
	}

	candidate := gjson.GetBytes(payload, "candidates.0")
	if !candidate.Exists() {
		return nil, false, nil
	}

	chunk := &Chunk{
		Delta: Delta{
			Role:    RoleAssistant,
			Content: candidate.Get("content.parts.0.text").String(),
		},
		FinishReason: candidate.Get("finishReason").String(),
	}
	if usage := gjson.GetBytes(payload, "usageMetadata"); usage.Exists() {
		chunk.Usage = &Usage{
			PromptTokens:     int(usage.Get("promptTokenCount").Int()),
			CompletionTokens: int(usage.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(usage.Get("totalTokenCount").Int()),
		}
	}
	return chunk, false, nil
}

// DecodeError implements Vendor.
func (g *Google) DecodeError(statusCode int, body []byte) error {
	return &HTTPError{
		Vendor:     g.Name(),
		StatusCode: statusCode,
		Message:    vendorMessage(body),
		Body:       body,
	}
}

// mergedMessage is an intermediate turn during history merging,
// before roles collapse to user/model.
type mergedMessage struct {
	role Role
	text string
}

// MergeHistory rewrites a conversation for the Gemini API, which only
// knows user and model roles and rejects consecutive turns with the
// same role:
//
//   - a leading system message becomes a user turn answered by a
//     synthetic acknowledgement from the model
//   - adjacent turns that map to the same role merge into one
//   - the final user message never merges with earlier turns; when the
//     preceding turn is also user-roled, a dummy "OK" model turn is
//     inserted between them
func MergeHistory(messages []Message) []GoogleContent {
	history := messages

	// The message being asked about stays on its own.
	var held *Message
	if n := len(history); n > 0 && history[n-1].Role == RoleUser {
		held = &history[n-1]
		history = history[:n-1]
	}

	var merged []mergedMessage
	for _, m := range history {
		if len(merged) == 0 {
			if m.Role == RoleSystem {
				merged = append(merged,
					mergedMessage{role: RoleUser, text: googleText(m)},
					mergedMessage{role: RoleAssistant, text: googleAck},
				)
				continue
			}
			merged = append(merged, mergedMessage{role: m.Role, text: googleText(m)})
			continue
		}

		last := &merged[len(merged)-1]
		if googleRole(last.role) == googleRole(m.Role) {
			last.text += "\n\n======\n\n" + googleText(m)
			if m.Role == RoleAssistant {
				last.role = RoleAssistant
			} else {
				last.role = RoleUser
			}
			continue
		}
		merged = append(merged, mergedMessage{role: m.Role, text: googleText(m)})
	}

	if held != nil {
		if n := len(merged); n > 0 && googleRole(merged[n-1].role) == "user" {
			merged = append(merged, mergedMessage{role: RoleAssistant, text: "OK"})
		}
		merged = append(merged, mergedMessage{role: held.Role, text: googleText(*held)})
	}

	contents := make([]GoogleContent, len(merged))
	for i, m := range merged {
		contents[i] = GoogleContent{
			Role:  googleRole(m.role),
			Parts: []GooglePart{{Text: m.text}},
		}
	}
	return contents
}

func googleRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

// googleText renders a message as plain text, labeling the turns the
// API has no role for.
func googleText(m Message) string {
	switch m.Role {
	case RoleSystem:
		return "System Prompt:\n" + m.Content
	case RoleTool:
		return fmt.Sprintf("Result of function ID: %s\n%s", m.ToolCallID, m.Content)
	case RoleAssistant:
		if len(m.ToolCalls) > 0 {
			var buf bytes.Buffer
			for i, call := range m.ToolCalls {
				if i > 0 {
					buf.WriteByte('\n')
				}
				args := call.Function.Arguments
				if args == "" {
					args = "{}"
				}
				fmt.Fprintf(&buf, "Function ID: %s\nCall function: %s\nArguments: %s",
					call.ID, call.Function.Name, args)
			}
			return buf.String()
		}
		return m.Content
	default:
		return m.Content
	}
}
