package flow

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// Dispatcher resolves the tool uses of one assistant turn against the active
// tool set. Tool uses are dispatched strictly in order: tool side effects may
// depend on each other.
type Dispatcher struct {
	hooks Hooks
}

// NewDispatcher constructs a Dispatcher invoking the given hooks around every tool execution.
func NewDispatcher(hooks Hooks) *Dispatcher {
	return &Dispatcher{hooks: hooks}
}

// Batch is the outcome of dispatching every tool use of a turn.
type Batch struct {
	// Results holds one result per tool use, in tool-use order. It is nil
	// when Control is set.
	Results []core.ToolResultBlock
	// Control is the EndConversation or NewConversation action that stopped
	// the batch, if any.
	Control core.ToolAction
}

// DispatchAll dispatches uses in order. A control action stops the batch
// immediately; results collected so far are discarded. Tool result events are
// held back until every use has been dispatched, so a discarded result is
// never observed. The returned error is fatal to the conversation.
func (d *Dispatcher) DispatchAll(rc *core.RunContext, uses []core.ToolUseBlock) (Batch, error) {
	results := make([]core.ToolResultBlock, 0, len(uses))
	for i, use := range uses {
		if err := rc.Err(); err != nil {
			return Batch{}, err
		}

		action, err := d.Dispatch(rc, use)
		if err != nil {
			return Batch{}, err
		}

		outcome, err := ResolveToolAction(action)
		if err != nil {
			return Batch{}, fmt.Errorf("tool %s: %w", use.Name, err)
		}
		if outcome.Kind != OutcomeContinue {
			if skipped := len(uses) - i - 1; skipped > 0 || len(results) > 0 {
				rc.LogInfo(
					"tool.dispatch.short_circuit",
					"tool", use.Name,
					"discarded_results", len(results),
					"skipped_tool_uses", skipped,
				)
			}
			return Batch{Control: action}, nil
		}

		block := core.ToolResultBlock{
			ToolUseID: use.ID,
			Content:   outcome.Result.Content,
			IsError:   outcome.Result.IsError,
		}
		results = append(results, block)
	}

	for i := range results {
		ev := rc.NewEvent(core.EventToolResult)
		ev.ToolResult = &results[i]
		if err := rc.EmitEvent(ev); err != nil {
			return Batch{}, err
		}
	}
	return Batch{Results: results}, nil
}

// Dispatch resolves a single tool use into an action. Unknown tools and
// invalid input become error results the model can correct; a failure inside
// the tool itself is returned as a *core.ToolExecutionError.
func (d *Dispatcher) Dispatch(rc *core.RunContext, use core.ToolUseBlock) (core.ToolAction, error) {
	ev := rc.NewEvent(core.EventToolCall)
	ev.ToolUse = &use
	if err := rc.EmitEvent(ev); err != nil {
		return nil, err
	}

	t, ok := rc.Options.FindTool(use.Name)
	if !ok {
		rc.LogWarn("tool.dispatch.unknown", "tool", use.Name, "tool_use_id", use.ID)
		return core.ErrorResult("No tool with name: " + use.Name), nil
	}

	input, err := t.Parse(use.Input)
	if err != nil {
		rc.LogWarn("tool.dispatch.invalid_input", "tool", use.Name, "tool_use_id", use.ID, "error", err.Error())
		return core.ErrorResult(invalidInputMessage(err)), nil
	}

	tc := core.NewToolContext(rc, use.ID, use.Name)

	if d.hooks.BeforeTool != nil {
		if err := d.hooks.BeforeTool(tc, use); err != nil {
			return nil, fmt.Errorf("before tool hook: %w", err)
		}
	}

	start := time.Now()
	action, err := execute(t, tc, input)
	dur := time.Since(start)
	if err != nil {
		if cl, ok := callLogger(rc); ok {
			cl.LogToolCall(use.Name, use.ID, dur, true, err)
		} else {
			rc.LogError("tool.dispatch.failed", "tool", use.Name, "tool_use_id", use.ID, "duration_ms", dur.Milliseconds(), "error", err.Error())
		}
		return nil, &core.ToolExecutionError{Tool: use.Name, ToolUseID: use.ID, Err: err}
	}

	if cl, ok := callLogger(rc); ok {
		result, _ := action.(core.ToolResult)
		cl.LogToolCall(use.Name, use.ID, dur, result.IsError, nil)
	}
	rc.LogDebug("tool.dispatch.executed", "tool", use.Name, "tool_use_id", use.ID, "duration_ms", dur.Milliseconds(), "action", actionName(action))

	if d.hooks.AfterTool != nil {
		if err := d.hooks.AfterTool(tc, use, action); err != nil {
			return nil, fmt.Errorf("after tool hook: %w", err)
		}
	}
	return action, nil
}

func invalidInputMessage(err error) string {
	var verrs *core.ValidationErrors
	if errors.As(err, &verrs) {
		return "Invalid input:\n" + verrs.Error()
	}
	return "Invalid input:\n" + err.Error()
}

// execute runs the tool, converting a panic into an error.
func execute(t core.Tool, tc *core.ToolContext, input any) (action core.ToolAction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.Execute(tc, input)
}

// PanicError reports a panic recovered inside a tool's Execute.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", p.Value) }

func actionName(a core.ToolAction) string {
	switch v := a.(type) {
	case core.ToolResult:
		if v.IsError {
			return "error_result"
		}
		return "result"
	case core.EndConversation:
		return "end_conversation"
	case core.NewConversation:
		return "new_conversation"
	default:
		return fmt.Sprintf("%T", a)
	}
}
