// Package flow implements the conversation loop.
//
// The Driver validates a conversation, asks the model for the next assistant
// turn, dispatches the requested tool uses through the Dispatcher, folds the
// resulting control actions through the resolver and repeats until the
// conversation ends, is replaced by a new one, or exhausts its turn budget.
//
// Requests are assembled by a pipeline of RequestProcessors, so callers can
// inject extra context without touching the loop itself.
package flow

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// RequestProcessor processes the request before sending it to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before the model call.
	ProcessRequest(rc *core.RunContext, req *model.Request) error
}

// Hooks observe the loop at its suspension points. Any hook returning an
// error aborts the conversation with that error.
type Hooks struct {
	BeforeModel func(rc *core.RunContext, req *model.Request) error
	AfterModel  func(rc *core.RunContext, resp *model.Response) error
	BeforeTool  func(tc *core.ToolContext, use core.ToolUseBlock) error
	AfterTool   func(tc *core.ToolContext, use core.ToolUseBlock, action core.ToolAction) error
}
