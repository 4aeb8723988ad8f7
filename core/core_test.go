package core

import (
	"context"
	"encoding/json"
)

type testLogger struct{}

func (l testLogger) Debug(string, ...any) {}
func (l testLogger) Info(string, ...any)  {}
func (l testLogger) Warn(string, ...any)  {}
func (l testLogger) Error(string, ...any) {}

type stubTool struct {
	name string
}

func (s stubTool) Name() string                          { return s.name }
func (s stubTool) Description() string                   { return "stub" }
func (s stubTool) InputSchema() map[string]any           { return map[string]any{"type": "object"} }
func (s stubTool) Parse(raw json.RawMessage) (any, error) { return raw, nil }
func (s stubTool) Execute(*ToolContext, any) (ToolAction, error) {
	return Result("ok"), nil
}

func newRunContextForTest(opts ConversationOptions) (*RunContext, chan Event) {
	emit := make(chan Event, 16)
	return NewRunContext(context.Background(), "conv", opts, 0, emit, testLogger{}), emit
}

func alternating(n int) []Message {
	msgs := make([]Message, n)
	for i := range msgs {
		if i%2 == 0 {
			msgs[i] = NewUserMessage("u")
		} else {
			msgs[i] = NewAssistantMessage(TextBlock{Text: "a"})
		}
	}
	return msgs
}
