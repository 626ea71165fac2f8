package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/copilot-bridge/internal/chat/sse"
	"github.com/dshills/copilot-bridge/internal/logging"
)

// maxErrorBody bounds how much of a failed response body is read for
// error decoding.
const maxErrorBody = 1024 * 1024

// Vendor is one chat completion API. Implementations are stateless
// with respect to individual requests and safe for concurrent use.
type Vendor interface {
	// Name identifies the vendor in errors and logs.
	Name() string

	// BuildRequest constructs the streaming HTTP request.
	BuildRequest(ctx context.Context, req Request) (*http.Request, error)

	// ParseLine interprets one stream line. A nil chunk with terminal
	// false means the line carried nothing useful and is skipped; a
	// returned error aborts the stream.
	ParseLine(line []byte) (chunk *Chunk, terminal bool, err error)

	// DecodeError turns a non-200 response into a vendor error.
	DecodeError(statusCode int, body []byte) error
}

// Adapter drives a Vendor over HTTP.
type Adapter struct {
	vendor Vendor
	client *http.Client
	logger *logging.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(a *Adapter) { a.client = c }
}

// WithAdapterLogger sets the adapter logger.
func WithAdapterLogger(l *logging.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an adapter for the given vendor.
func NewAdapter(v Vendor, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		vendor: v,
		client: &http.Client{Timeout: 0},
		logger: logging.Null,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("chat." + v.Name())
	return a
}

// Stream starts a completion and returns the chunk stream. Canceling
// ctx aborts the underlying request.
func (a *Adapter) Stream(ctx context.Context, req Request) (*Stream, error) {
	httpReq, err := a.vendor.BuildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusForbidden {
			return nil, &UnauthorizedError{
				Vendor:  a.vendor.Name(),
				Message: vendorMessage(body),
			}
		}
		return nil, a.vendor.DecodeError(resp.StatusCode, body)
	}

	stream := newStream()
	go a.consume(ctx, resp.Body, stream)
	return stream, nil
}

// Complete runs a streaming request to completion and returns the
// assembled response.
func (a *Adapter) Complete(ctx context.Context, req Request) (Response, error) {
	stream, err := a.Stream(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return stream.Collect()
}

func (a *Adapter) consume(ctx context.Context, body io.ReadCloser, stream *Stream) {
	defer body.Close()

	reader := sse.NewReader(body)
	for {
		line, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				stream.close(nil)
				return
			}
			if ctx.Err() != nil {
				stream.close(ctx.Err())
				return
			}
			stream.close(err)
			return
		}

		chunk, terminal, err := a.vendor.ParseLine(line)
		if err != nil {
			stream.close(err)
			return
		}
		if chunk != nil {
			if !stream.send(ctx, *chunk) {
				stream.close(ctx.Err())
				return
			}
		}
		if terminal {
			stream.close(nil)
			return
		}
	}
}

// vendorMessage pulls a human-readable message out of a vendor error
// body. The common envelope is {"error": {"message": ...}}; some APIs
// use a bare {"error": "..."} or a top-level array.
func vendorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "0.error.message", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return strings.TrimSpace(string(body))
}
