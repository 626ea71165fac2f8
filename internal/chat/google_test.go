package chat

import (
	"errors"
	"reflect"
	"testing"
)

func text(c GoogleContent) string {
	if len(c.Parts) == 0 {
		return ""
	}
	return c.Parts[0].Text
}

func TestMergeHistorySystemPrompt(t *testing.T) {
	got := MergeHistory([]Message{
		{Role: RoleSystem, Content: "You are terse."},
		{Role: RoleUser, Content: "What is Go?"},
		{Role: RoleAssistant, Content: "A language."},
		{Role: RoleUser, Content: "Show me."},
	})

	wantRoles := []string{"user", "model", "user", "model", "user"}
	if len(got) != len(wantRoles) {
		t.Fatalf("MergeHistory() returned %d turns, want %d: %+v", len(got), len(wantRoles), got)
	}
	for i, role := range wantRoles {
		if got[i].Role != role {
			t.Errorf("turn %d role = %q, want %q", i, got[i].Role, role)
		}
	}

	if text(got[0]) != "System Prompt:\nYou are terse." {
		t.Errorf("system turn = %q", text(got[0]))
	}
	if text(got[1]) != googleAck {
		t.Errorf("acknowledgement turn = %q", text(got[1]))
	}
	if text(got[4]) != "Show me." {
		t.Errorf("final turn = %q", text(got[4]))
	}
}

func TestMergeHistoryAdjacentSameRole(t *testing.T) {
	got := MergeHistory([]Message{
		{Role: RoleUser, Content: "Run the tool."},
		{Role: RoleTool, ToolCallID: "call-1", Content: "done"},
		{Role: RoleUser, Content: "Now what?"},
	})

	// The user turn and the tool result collapse; a dummy model turn
	// separates them from the final user message.
	wantRoles := []string{"user", "model", "user"}
	if len(got) != len(wantRoles) {
		t.Fatalf("MergeHistory() returned %d turns, want %d: %+v", len(got), len(wantRoles), got)
	}
	for i, role := range wantRoles {
		if got[i].Role != role {
			t.Errorf("turn %d role = %q, want %q", i, got[i].Role, role)
		}
	}

	wantMerged := "Run the tool.\n\n======\n\nResult of function ID: call-1\ndone"
	if text(got[0]) != wantMerged {
		t.Errorf("merged turn = %q, want %q", text(got[0]), wantMerged)
	}
	if text(got[1]) != "OK" {
		t.Errorf("dummy turn = %q, want OK", text(got[1]))
	}
	if text(got[2]) != "Now what?" {
		t.Errorf("final turn = %q", text(got[2]))
	}
}

func TestMergeHistorySingleUserMessage(t *testing.T) {
	got := MergeHistory([]Message{{Role: RoleUser, Content: "hi"}})
	want := []GoogleContent{{Role: "user", Parts: []GooglePart{{Text: "hi"}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeHistory() = %+v, want %+v", got, want)
	}
}

func TestMergeHistoryEmpty(t *testing.T) {
	if got := MergeHistory(nil); len(got) != 0 {
		t.Errorf("MergeHistory(nil) = %+v, want empty", got)
	}
}

func TestMergeHistoryAssistantToolCalls(t *testing.T) {
	got := MergeHistory([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:       "call-9",
			Function: FunctionCall{Name: "search", Arguments: `{"q":"go"}`},
		}}},
		{Role: RoleUser, Content: "result?"},
	})

	if len(got) != 2 {
		t.Fatalf("MergeHistory() returned %d turns, want 2", len(got))
	}
	want := "Function ID: call-9\nCall function: search\nArguments: {\"q\":\"go\"}"
	if text(got[0]) != want {
		t.Errorf("tool call turn = %q, want %q", text(got[0]), want)
	}
	if got[0].Role != "model" {
		t.Errorf("tool call role = %q, want model", got[0].Role)
	}
}

func TestGoogleParseLine(t *testing.T) {
	g := NewGoogle("key", "")

	chunk, terminal, err := g.ParseLine([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"hello"}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":1,"totalTokenCount":4}}`))
	if err != nil || terminal {
		t.Fatalf("ParseLine() = %v, %v", terminal, err)
	}
	if chunk.Delta.Content != "hello" || chunk.FinishReason != "STOP" {
		t.Errorf("chunk = %+v", chunk)
	}
	if chunk.Usage == nil || chunk.Usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", chunk.Usage)
	}
}

func TestGoogleParseLineError(t *testing.T) {
	g := NewGoogle("key", "")

	_, _, err := g.ParseLine([]byte(`data: {"error":{"code":400,"message":"invalid argument"}}`))
	var verr *VendorError
	if !errors.As(err, &verr) || verr.Message != "invalid argument" {
		t.Errorf("ParseLine() error = %v, want VendorError", err)
	}
}
