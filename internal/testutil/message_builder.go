package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// MessageBuilder provides a fluent helper for constructing assistant replies in tests.
// Example:
//
//	msg := NewMessageBuilder().Text("adding").ToolUse("t1", "add", `{"a":2,"b":3}`).Build()
type MessageBuilder struct {
	role   core.Role
	blocks []core.Block
}

// NewMessageBuilder creates a builder for an assistant message.
func NewMessageBuilder() *MessageBuilder { return &MessageBuilder{role: core.RoleAssistant} }

// Role overrides the role (chainable).
func (b *MessageBuilder) Role(r core.Role) *MessageBuilder { b.role = r; return b }

// Text appends a text block (chainable).
func (b *MessageBuilder) Text(t string) *MessageBuilder {
	b.blocks = append(b.blocks, core.TextBlock{Text: t})
	return b
}

// ToolUse appends a tool use with a raw JSON input (chainable).
func (b *MessageBuilder) ToolUse(id, name, input string) *MessageBuilder {
	b.blocks = append(b.blocks, core.ToolUseBlock{ID: id, Name: name, Input: json.RawMessage(input)})
	return b
}

// ToolResult appends a tool result block (chainable).
func (b *MessageBuilder) ToolResult(id, content string, isError bool) *MessageBuilder {
	b.blocks = append(b.blocks, core.ToolResultBlock{ToolUseID: id, Content: content, IsError: isError})
	return b
}

// Blocks returns the accumulated blocks.
func (b *MessageBuilder) Blocks() []core.Block {
	return append([]core.Block(nil), b.blocks...)
}

// Build constructs the message.
func (b *MessageBuilder) Build() core.Message {
	return core.Message{Role: b.role, Content: b.Blocks()}
}

// DrainEvents reads ch until it is closed.
func DrainEvents(ch <-chan core.Event) []core.Event {
	var out []core.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// EventTypes projects events onto their types.
func EventTypes(events []core.Event) []core.EventType {
	out := make([]core.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// CheckBatch verifies that results answers uses one to one, in order.
func CheckBatch(uses []core.ToolUseBlock, results []core.ToolResultBlock) error {
	if len(uses) != len(results) {
		return fmt.Errorf("expected %d tool results, got %d", len(uses), len(results))
	}
	for i := range uses {
		if uses[i].ID != results[i].ToolUseID {
			return fmt.Errorf("result %d answers %q, expected %q", i, results[i].ToolUseID, uses[i].ID)
		}
	}
	return nil
}
