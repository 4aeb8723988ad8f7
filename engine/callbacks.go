package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/model"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Callbacks provide a flexible mechanism for hooking into the engine's execution
// pipeline without modifying core logic. Each type represents a specific point
// in the conversation lifecycle where custom logic can be injected.
//
// Available callback types:
//   - BeforeConversation/AfterConversation: Around a complete conversation
//   - BeforeModel/AfterModel: Around every assistant turn
//   - BeforeTool/AfterTool: Around individual tool executions
//   - OnEvent: For every event delivered to the caller
//   - OnError: When a conversation fails
//
// Callbacks are executed synchronously. Except for AfterConversation and
// OnError, a callback returning an error aborts the conversation.
type CallbackType string

const (
	// CallbackBeforeConversation is triggered before the first model call.
	// Use for setup, validation, or instrumentation.
	CallbackBeforeConversation CallbackType = "before_conversation"

	// CallbackAfterConversation is triggered after a conversation ended cleanly.
	CallbackAfterConversation CallbackType = "after_conversation"

	// CallbackBeforeModel is triggered before every model call.
	// Use for request modification, caching, or rate limiting.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered after every completed model call.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool is triggered before tool execution.
	// Use for parameter validation, security checks, or auditing.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered after tool execution.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnEvent is triggered for every event before it is delivered.
	CallbackOnEvent CallbackType = "on_event"

	// CallbackOnError is triggered when a conversation fails.
	// Use for error handling or alerting.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext provides the context information for one callback execution.
// Only the fields relevant to the CallbackType are set.
type CallbackContext struct {
	ConversationID string
	CallbackType   CallbackType

	// RunContext is set for conversation and model callbacks.
	RunContext *core.RunContext
	// ToolContext, ToolUse and Action are set for tool callbacks; Action only after the tool ran.
	ToolContext *core.ToolContext
	ToolUse     *core.ToolUseBlock
	Action      core.ToolAction
	// Request is set for BeforeModel, Response for AfterModel.
	Request  *model.Request
	Response *model.Response
	// Event is set for OnEvent.
	Event *core.Event
	// Err is set for OnError.
	Err error

	// Metadata is free for callbacks to share values within one execution.
	Metadata map[string]any
}

// Callback defines the interface for lifecycle callbacks.
type Callback interface {
	// Type returns the lifecycle point this callback is registered for.
	Type() CallbackType

	// Execute runs the callback.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts an ordinary function to the Callback interface.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback from a function.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeTool, func(ctx context.Context, cc *CallbackContext) error {
//	    if cc.ToolUse.Name == "delete_everything" {
//	        return errors.New("not allowed")
//	    }
//	    return nil
//	})
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute runs the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager manages registration and execution of callbacks.
//
// Callbacks run in registration order; the first error stops the chain.
// The manager is safe for concurrent use, so callbacks may be registered
// while conversations are running.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// Has reports whether any callback is registered for callbackType.
func (cm *CallbackManager) Has(callbackType CallbackType) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.callbacks[callbackType]) > 0
}

// ExecuteCallbacks runs every callback registered for callbackType.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	if len(callbacks) == 0 {
		return nil
	}

	callbackCtx.CallbackType = callbackType
	if callbackCtx.Metadata == nil {
		callbackCtx.Metadata = map[string]any{}
	}

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// Hooks bridges the model and tool callbacks into the driver's hooks.
func (cm *CallbackManager) Hooks() flow.Hooks {
	return flow.Hooks{
		BeforeModel: func(rc *core.RunContext, req *model.Request) error {
			return cm.ExecuteCallbacks(rc.Context, CallbackBeforeModel, &CallbackContext{
				ConversationID: rc.ConversationID,
				RunContext:     rc,
				Request:        req,
			})
		},
		AfterModel: func(rc *core.RunContext, resp *model.Response) error {
			return cm.ExecuteCallbacks(rc.Context, CallbackAfterModel, &CallbackContext{
				ConversationID: rc.ConversationID,
				RunContext:     rc,
				Response:       resp,
			})
		},
		BeforeTool: func(tc *core.ToolContext, use core.ToolUseBlock) error {
			return cm.ExecuteCallbacks(tc.Context(), CallbackBeforeTool, &CallbackContext{
				ConversationID: tc.ConversationID(),
				ToolContext:    tc,
				ToolUse:        &use,
			})
		},
		AfterTool: func(tc *core.ToolContext, use core.ToolUseBlock, action core.ToolAction) error {
			return cm.ExecuteCallbacks(tc.Context(), CallbackAfterTool, &CallbackContext{
				ConversationID: tc.ConversationID(),
				ToolContext:    tc,
				ToolUse:        &use,
				Action:         action,
			})
		},
	}
}

// LoggingCallback writes a one-line summary of every execution.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a logging callback for the given type.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the callback invocation.
func (c *LoggingCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] Conversation: %s", c.callbackType, callbackCtx.ConversationID)
	switch {
	case callbackCtx.ToolUse != nil:
		message += ", Tool: " + callbackCtx.ToolUse.Name
	case callbackCtx.Event != nil:
		message += ", Event: " + string(callbackCtx.Event.Type)
	case callbackCtx.Err != nil:
		message += ", Error: " + callbackCtx.Err.Error()
	}
	c.logger(message)
	return nil
}

// StateValidationCallback checks the conversation scratch state after every
// tool execution and aborts the conversation when it is rejected.
type StateValidationCallback struct {
	validator func(state map[string]any) error
}

// NewStateValidationCallback creates a state validation callback.
func NewStateValidationCallback(validator func(state map[string]any) error) *StateValidationCallback {
	return &StateValidationCallback{
		validator: validator,
	}
}

// Type returns CallbackAfterTool.
func (c *StateValidationCallback) Type() CallbackType {
	return CallbackAfterTool
}

// Execute validates a snapshot of the tool's conversation state.
func (c *StateValidationCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil || callbackCtx.ToolContext == nil {
		return nil
	}
	tc := callbackCtx.ToolContext
	state := make(map[string]any)
	for _, k := range tc.StateKeys() {
		v, _ := tc.GetState(k)
		state[k] = v
	}
	return c.validator(state)
}
