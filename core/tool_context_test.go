package core

import (
	"context"
	"fmt"
	"testing"
)

func TestToolContext_Accessors(t *testing.T) {
	opts := ConversationOptions{System: "sys", Messages: alternating(1), Tools: []Tool{stubTool{"a"}}}
	rc, _ := newRunContextForTest(opts)
	rc.Limiter.Increment()

	tc := NewToolContext(rc, "tu_1", "a")

	if tc.ConversationID() != "conv" || tc.ToolUseID() != "tu_1" || tc.ToolName() != "a" {
		t.Fatalf("unexpected identifiers: %s %s %s", tc.ConversationID(), tc.ToolUseID(), tc.ToolName())
	}
	if tc.Turn() != 1 {
		t.Fatalf("turn = %d", tc.Turn())
	}
	if tc.Options().System != "sys" {
		t.Fatal("options not exposed")
	}
	if len(tc.Messages()) != 1 {
		t.Fatal("messages not exposed")
	}
	if tc.Context() == nil || tc.Logger() == nil {
		t.Fatal("context and logger must be non-nil")
	}
}

func TestToolContext_StateSharedWithRun(t *testing.T) {
	rc, _ := newRunContextForTest(ConversationOptions{Messages: alternating(1)})
	NewToolContext(rc, "1", "a").SetState("count", 3)

	v, ok := NewToolContext(rc, "2", "b").GetState("count")
	if !ok || v.(int) != 3 {
		t.Fatalf("state not shared: %v %v", v, ok)
	}
}

type recordingLogger struct {
	testLogger
	records []string
}

func (r *recordingLogger) Info(msg string, args ...any) {
	r.records = append(r.records, fmt.Sprint(append([]any{msg}, args...)...))
}

func TestToolContext_LogsCarryToolScope(t *testing.T) {
	rec := &recordingLogger{}
	rc := NewRunContext(context.Background(), "conv", ConversationOptions{Messages: alternating(1)}, 0, nil, rec)
	rc.LogInfo("run.event", "k", 1)
	NewToolContext(rc, "tu_9", "lookup").LogInfo("tool.event", "k", 2)

	want := []string{
		fmt.Sprint("run.event", "k", 1),
		fmt.Sprint("tool.event", "tool", "lookup", "tool_use_id", "tu_9", "k", 2),
	}
	if len(rec.records) != 2 || rec.records[0] != want[0] || rec.records[1] != want[1] {
		t.Fatalf("records = %q, want %q", rec.records, want)
	}
	if NewToolContext(rc, "x", "y").Logger() != rec {
		t.Fatal("Logger must return the unscoped logger")
	}
}
