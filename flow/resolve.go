package flow

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// OutcomeKind tells the driver how to proceed after an action.
type OutcomeKind int

const (
	// OutcomeContinue keeps the current conversation running.
	OutcomeContinue OutcomeKind = iota
	// OutcomeEnd terminates the conversation cleanly.
	OutcomeEnd
	// OutcomeReplace swaps in a new conversation.
	OutcomeReplace
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeEnd:
		return "end"
	case OutcomeReplace:
		return "replace"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the resolved form of a ToolAction or NoToolUseAction.
type Outcome struct {
	Kind OutcomeKind
	// Result is set for a continued tool action.
	Result *core.ToolResult
	// Message is the synthetic user message for a continued TextResponse.
	Message *core.Message
	// Options is set for OutcomeReplace. They are not validated here.
	Options *core.ConversationOptions
}

// ResolveToolAction maps an action returned by a tool.
func ResolveToolAction(a core.ToolAction) (Outcome, error) {
	return resolve(a)
}

// ResolveNoToolUse maps an action returned by the no-tool-use fallback.
func ResolveNoToolUse(a core.NoToolUseAction) (Outcome, error) {
	return resolve(a)
}

func resolve(a any) (Outcome, error) {
	switch v := a.(type) {
	case core.ToolResult:
		return Outcome{Kind: OutcomeContinue, Result: &v}, nil
	case core.TextResponse:
		msg := core.NewUserMessage(v.Content)
		return Outcome{Kind: OutcomeContinue, Message: &msg}, nil
	case core.EndConversation:
		return Outcome{Kind: OutcomeEnd}, nil
	case core.NewConversation:
		opts := v.Options
		return Outcome{Kind: OutcomeReplace, Options: &opts}, nil
	case nil:
		return Outcome{}, fmt.Errorf("%w: nil action", core.ErrUnknownAction)
	default:
		return Outcome{}, fmt.Errorf("%w: %T", core.ErrUnknownAction, a)
	}
}
