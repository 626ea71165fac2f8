package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReaderSkipsBlankAndComments(t *testing.T) {
	r := NewReader(strings.NewReader("data: one\r\n\n: keepalive\ndata: two\n"))

	for _, want := range []string{"data: one", "data: two"} {
		line, err := r.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if string(line) != want {
			t.Errorf("Next() = %q, want %q", line, want)
		}
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestData(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"data: payload", "payload", true},
		{"data:payload", "payload", true},
		{"data: [DONE]", "[DONE]", true},
		{"event: message_start", "", false},
		{"id: 7", "", false},
		{"payload without field", "", false},
	}
	for _, tt := range tests {
		got, ok := Data([]byte(tt.line))
		if ok != tt.ok || string(got) != tt.want {
			t.Errorf("Data(%q) = %q, %v; want %q, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}
