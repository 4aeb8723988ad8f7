package tool

import (
	"encoding/json"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// Finish builds a tool that hands its validated input to fn and then ends
// the conversation. It is the usual way to collect a structured final answer.
func Finish[T any](name, description string, fn func(tc *core.ToolContext, in T) error) *Typed[T] {
	return New(name, description, func(tc *core.ToolContext, in T) (core.ToolAction, error) {
		if err := fn(tc, in); err != nil {
			return nil, err
		}
		tc.LogInfo("tool.finish")
		return core.EndConversation{}, nil
	})
}

// Handoff builds a tool that replaces the running conversation with the
// options returned by fn, e.g. to switch system prompt and tool set.
func Handoff[T any](name, description string, fn func(tc *core.ToolContext, in T) (core.ConversationOptions, error)) *Typed[T] {
	return New(name, description, func(tc *core.ToolContext, in T) (core.ToolAction, error) {
		opts, err := fn(tc, in)
		if err != nil {
			return nil, err
		}
		tc.LogInfo("tool.handoff", "messages", len(opts.Messages))
		return core.NewConversation{Options: opts}, nil
	})
}

// endConversationTool ends the conversation without collecting any input.
type endConversationTool struct {
	description string
}

// NewEndConversationTool returns a tool named "end_conversation" that stops the loop.
func NewEndConversationTool(description string) core.Tool {
	if description == "" {
		description = "End the conversation once the task is complete."
	}
	return &endConversationTool{description: description}
}

func (t *endConversationTool) Name() string { return "end_conversation" }

func (t *endConversationTool) Description() string { return t.description }

func (t *endConversationTool) InputSchema() map[string]any { return util.ObjectSchema(nil) }

func (t *endConversationTool) Parse(raw json.RawMessage) (any, error) {
	return util.ValidateInput(raw, t.InputSchema())
}

func (t *endConversationTool) Execute(tc *core.ToolContext, _ any) (core.ToolAction, error) {
	tc.LogInfo("tool.end_conversation")
	return core.EndConversation{}, nil
}
