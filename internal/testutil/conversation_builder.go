package testutil

import (
	"context"

	"github.com/hupe1980/agentloop/core"
)

// ConversationBuilder helps construct ConversationOptions with fluent chaining for tests.
// Example:
//
//	opts := NewConversationBuilder().System("be brief").User("hello").Tools(add).Build()
type ConversationBuilder struct {
	opts core.ConversationOptions
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder {
	return &ConversationBuilder{}
}

// System sets the system prompt (chainable).
func (b *ConversationBuilder) System(s string) *ConversationBuilder {
	b.opts.System = s
	return b
}

// Model sets the model name (chainable).
func (b *ConversationBuilder) Model(name string) *ConversationBuilder {
	b.opts.Model.Model = name
	return b
}

// User appends a plain-text user message (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.opts.Messages = append(b.opts.Messages, core.NewUserMessage(text))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *ConversationBuilder) Assistant(blocks ...core.Block) *ConversationBuilder {
	b.opts.Messages = append(b.opts.Messages, core.NewAssistantMessage(blocks...))
	return b
}

// Message appends an arbitrary message (chainable).
func (b *ConversationBuilder) Message(m core.Message) *ConversationBuilder {
	b.opts.Messages = append(b.opts.Messages, m)
	return b
}

// Tools appends tools (chainable).
func (b *ConversationBuilder) Tools(tools ...core.Tool) *ConversationBuilder {
	b.opts.Tools = append(b.opts.Tools, tools...)
	return b
}

// MaxTurns sets the per-conversation turn cap (chainable).
func (b *ConversationBuilder) MaxTurns(n int) *ConversationBuilder {
	b.opts.MaxTurns = n
	return b
}

// OnNoToolUse sets the no-tool-use fallback (chainable).
func (b *ConversationBuilder) OnNoToolUse(fn core.NoToolUseHandler) *ConversationBuilder {
	b.opts.OnNoToolUse = fn
	return b
}

// RespondWith sets a fallback that always answers with a TextResponse (chainable).
func (b *ConversationBuilder) RespondWith(text string) *ConversationBuilder {
	b.opts.OnNoToolUse = func(context.Context, []core.Message) (core.NoToolUseAction, error) {
		return core.TextResponse{Content: text}, nil
	}
	return b
}

// Build returns the assembled options. The message slice is copied.
func (b *ConversationBuilder) Build() core.ConversationOptions {
	opts := b.opts
	opts.Messages = append([]core.Message(nil), b.opts.Messages...)
	opts.Tools = append([]core.Tool(nil), b.opts.Tools...)
	return opts
}
