package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"
)

const copilotAPIVersion = "2023-07-07"

// CopilotToken is a short-lived API token together with the endpoint
// it is valid for.
type CopilotToken struct {
	Token   string
	APIBase string
}

// TokenSource produces tokens for the Copilot completion proxy,
// typically by asking a running language server.
type TokenSource interface {
	Token(ctx context.Context) (CopilotToken, error)
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func(ctx context.Context) (CopilotToken, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (CopilotToken, error) {
	return f(ctx)
}

// CopilotProxy streams completions through the Copilot API proxy. The
// stream dialect is the OpenAI one; only token acquisition and
// headers differ. Concurrent requests share a single in-flight token
// fetch.
type CopilotProxy struct {
	tokens        TokenSource
	editorVersion string
	group         singleflight.Group
}

// NewCopilotProxy creates a proxy vendor. editorVersion is sent as
// the Editor-Version header.
func NewCopilotProxy(tokens TokenSource, editorVersion string) *CopilotProxy {
	return &CopilotProxy{tokens: tokens, editorVersion: editorVersion}
}

// Name implements Vendor.
func (p *CopilotProxy) Name() string { return "copilot" }

// BuildRequest implements Vendor.
func (p *CopilotProxy) BuildRequest(ctx context.Context, req Request) (*http.Request, error) {
	token, err := p.fetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch copilot token: %w", err)
	}

	body, err := json.Marshal(openAIRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("encode copilot request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		token.APIBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token.Token)
	httpReq.Header.Set("Editor-Version", p.editorVersion)
	httpReq.Header.Set("Copilot-Integration-Id", "vscode-chat")
	httpReq.Header.Set("X-Github-Api-Version", copilotAPIVersion)
	return httpReq, nil
}

// ParseLine implements Vendor.
func (p *CopilotProxy) ParseLine(line []byte) (*Chunk, bool, error) {
	return parseOpenAILine(p.Name(), line)
}

// DecodeError implements Vendor.
func (p *CopilotProxy) DecodeError(statusCode int, body []byte) error {
	return &HTTPError{
		Vendor:     p.Name(),
		StatusCode: statusCode,
		Message:    vendorMessage(body),
		Body:       body,
	}
}

func (p *CopilotProxy) fetchToken(ctx context.Context) (CopilotToken, error) {
	v, err, _ := p.group.Do("token", func() (any, error) {
		return p.tokens.Token(ctx)
	})
	if err != nil {
		return CopilotToken{}, err
	}
	return v.(CopilotToken), nil
}
