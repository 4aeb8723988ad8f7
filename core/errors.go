package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConversation is wrapped by every InvariantError.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrConversationExhausted is wrapped by ExhaustedError.
	ErrConversationExhausted = errors.New("conversation exhausted")

	// ErrNoToolUseFallback is returned when the model answers without tool
	// uses while neither tools nor an OnNoToolUse handler are configured.
	ErrNoToolUseFallback = errors.New("no onNoToolUse and no tools")

	// ErrUnknownAction is returned when a tool or handler yields an action
	// outside the known variant set.
	ErrUnknownAction = errors.New("unknown action")
)

// InvariantError describes a violated message-list or tool-set invariant.
// Index is the offending message position, or -1 when the list as a whole is at fault.
type InvariantError struct {
	Index  int
	Reason string
}

func (e *InvariantError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid conversation: %s", e.Reason)
	}
	return fmt.Sprintf("invalid conversation: message %d: %s", e.Index, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidConversation).
func (e *InvariantError) Unwrap() error { return ErrInvalidConversation }

// ExhaustedError reports that the turn cap was hit before termination.
type ExhaustedError struct {
	Turns int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("Conversation not ended after %d assistant messages", e.Turns)
}

// Unwrap allows errors.Is(err, ErrConversationExhausted).
func (e *ExhaustedError) Unwrap() error { return ErrConversationExhausted }

// ToolExecutionError wraps an error returned (or a panic raised) by a tool
// implementation. It is fatal to the conversation.
type ToolExecutionError struct {
	Tool      string
	ToolUseID string
	Err       error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (%s) failed: %v", e.Tool, e.ToolUseID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ModelError wraps a failure reported by the model backend adapter.
type ModelError struct {
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// ValidationError is a single input validation failure located by a dotted path.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every failure found while validating one tool input.
type ValidationErrors struct {
	Errors []ValidationError
}

// Add appends a failure.
func (v *ValidationErrors) Add(path, message string) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: message})
}

// Len returns the number of collected failures.
func (v *ValidationErrors) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Errors)
}

// ErrOrNil returns v as an error when it holds at least one failure.
func (v *ValidationErrors) ErrOrNil() error {
	if v.Len() == 0 {
		return nil
	}
	return v
}

// Error renders one "path: message" line per failure.
func (v *ValidationErrors) Error() string {
	lines := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}
