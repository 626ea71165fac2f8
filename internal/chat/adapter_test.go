package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	}
}

func TestStreamUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer server.Close()

	adapter := NewAdapter(NewOpenAI("nope", server.URL))
	_, err := adapter.Stream(context.Background(), Request{Model: "gpt-4", Messages: []Message{{Role: RoleUser, Content: "hi"}}})

	var uerr *UnauthorizedError
	if !errors.As(err, &uerr) {
		t.Fatalf("Stream() error = %v, want *UnauthorizedError", err)
	}
	if uerr.Message != "bad key" {
		t.Errorf("Message = %q, want bad key", uerr.Message)
	}
	if uerr.Vendor != "openai" {
		t.Errorf("Vendor = %q", uerr.Vendor)
	}
}

func TestStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	adapter := NewAdapter(NewOpenAI("key", server.URL))
	_, err := adapter.Stream(context.Background(), Request{Model: "gpt-4"})

	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("Stream() error = %v, want *HTTPError", err)
	}
	if herr.StatusCode != http.StatusTooManyRequests || herr.Message != "rate limited" {
		t.Errorf("HTTPError = %+v", herr)
	}
}

func TestStreamToleratesMalformedLines(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`data: {"id":"c1","choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
		`this line is garbage`,
		`data: {not json`,
		`: a comment`,
		`data: {"id":"c1","choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	))
	defer server.Close()

	adapter := NewAdapter(NewOpenAI("key", server.URL))
	resp, err := adapter.Complete(context.Background(), Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hello" {
		t.Errorf("Content = %q, want Hello", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
}

func TestStreamSurfacesErrorPayload(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`data: {"id":"c1","choices":[{"delta":{"content":"par"}}]}`,
		`data: {"error":{"message":"server melted"}}`,
	))
	defer server.Close()

	adapter := NewAdapter(NewOpenAI("key", server.URL))
	_, err := adapter.Complete(context.Background(), Request{Model: "gpt-4"})

	var verr *VendorError
	if !errors.As(err, &verr) {
		t.Fatalf("Complete() error = %v, want *VendorError", err)
	}
	if verr.Message != "server melted" {
		t.Errorf("Message = %q", verr.Message)
	}
}

func TestStreamEndsAtEOFWithoutDone(t *testing.T) {
	// Some dialects have no terminal marker; the body just ends.
	server := httptest.NewServer(sseHandler(
		`data: {"id":"c1","choices":[{"delta":{"content":"done"}}]}`,
	))
	defer server.Close()

	adapter := NewAdapter(NewOpenAI("key", server.URL))
	resp, err := adapter.Complete(context.Background(), Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestStreamContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	adapter := NewAdapter(NewOpenAI("key", server.URL))
	stream, err := adapter.Stream(ctx, Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	<-stream.Chunks()
	cancel()

	for range stream.Chunks() {
	}
	if err := stream.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", err)
	}
}
