package core

import (
	"context"

	"github.com/hupe1980/agentloop/logging"
)

// ToolContext is the surface a tool sees while it executes one tool use:
// cancellation, identifiers, a read-only view of the conversation and the
// shared per-conversation state.
type ToolContext struct {
	runCtx    *RunContext
	toolUseID string
	toolName  string

	*scopedLog
}

// NewToolContext constructs a tool context bound to a parent RunContext and
// the tool use being served. Its Log methods tag records with the tool name
// and tool use id.
func NewToolContext(runCtx *RunContext, toolUseID, toolName string) *ToolContext {
	return &ToolContext{
		runCtx:    runCtx,
		toolUseID: toolUseID,
		toolName:  toolName,
		scopedLog: newScopedLog(runCtx.Logger(), "tool", toolName, "tool_use_id", toolUseID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// ConversationID returns the identifier of the running conversation.
func (tc *ToolContext) ConversationID() string { return tc.runCtx.ConversationID }

// ToolUseID returns the id of the tool use being answered.
func (tc *ToolContext) ToolUseID() string { return tc.toolUseID }

// ToolName returns the name of the tool being executed.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// Turn returns the number of assistant turns taken so far.
func (tc *ToolContext) Turn() int { return tc.runCtx.Limiter.Count() }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.scopedLog.Logger() }

// Messages returns a copy of the conversation history, ending with the
// assistant message that requested this tool.
func (tc *ToolContext) Messages() []Message { return tc.runCtx.Messages() }

// Options returns the active conversation options. Tools that hand off to a
// new conversation typically derive the replacement from them.
func (tc *ToolContext) Options() ConversationOptions { return tc.runCtx.Options }

// GetState retrieves a value stored earlier in this conversation.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.runCtx.GetState(k) }

// SetState stores a value for later tool calls of this conversation.
func (tc *ToolContext) SetState(k string, v any) {
	tc.runCtx.SetState(k, v)
	tc.LogDebug("tool.state.set", "key", k)
}

// StateKeys lists the keys stored in this conversation's state.
func (tc *ToolContext) StateKeys() []string { return tc.runCtx.StateKeys() }
