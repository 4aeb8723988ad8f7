package core

// ToolAction is what a tool hands back to the driver after execution.
// Variants: ToolResult, EndConversation, NewConversation.
type ToolAction interface {
	isToolAction()
}

// NoToolUseAction is what an OnNoToolUse handler hands back when the model
// replied without requesting any tool. Variants: TextResponse,
// EndConversation, NewConversation.
type NoToolUseAction interface {
	isNoToolUseAction()
}

// ToolResult is fed back to the model as a ToolResultBlock.
type ToolResult struct {
	Content string
	IsError bool
}

// TextResponse is appended as a user message and the loop continues.
type TextResponse struct {
	Content string
}

// EndConversation terminates the active conversation normally.
type EndConversation struct{}

// NewConversation replaces the active conversation with a fresh one.
type NewConversation struct {
	Options ConversationOptions
}

func (ToolResult) isToolAction()      {}
func (EndConversation) isToolAction() {}
func (NewConversation) isToolAction() {}

func (TextResponse) isNoToolUseAction()    {}
func (EndConversation) isNoToolUseAction() {}
func (NewConversation) isNoToolUseAction() {}

// Result is a shorthand for a successful ToolResult.
func Result(content string) ToolResult { return ToolResult{Content: content} }

// ErrorResult is a shorthand for a ToolResult the model should treat as a failure.
func ErrorResult(content string) ToolResult { return ToolResult{Content: content, IsError: true} }
