package core

import (
	"context"
	"encoding/json"
)

const (
	// DefaultMaxTurns caps the number of assistant messages per conversation.
	DefaultMaxTurns = 40
	// DefaultMaxTokens is the output token budget used when ModelOptions leaves it unset.
	DefaultMaxTokens int64 = 8192
	// DefaultTemperature is the sampling temperature used when ModelOptions leaves it unset.
	DefaultTemperature = 0.0
)

// ModelOptions selects the model and its sampling parameters. Zero values
// fall back to the adapter defaults.
type ModelOptions struct {
	Model       string   `json:"model,omitempty" yaml:"model"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   int64    `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// TemperatureOr returns the configured temperature or def.
func (o ModelOptions) TemperatureOr(def float64) float64 {
	if o.Temperature == nil {
		return def
	}
	return *o.Temperature
}

// MaxTokensOr returns the configured max tokens or def.
func (o ModelOptions) MaxTokensOr(def int64) int64 {
	if o.MaxTokens <= 0 {
		return def
	}
	return o.MaxTokens
}

// Tool is a named capability the model may invoke. InputSchema and Parse are
// two views of one declaration: the schema advertised to the model and the
// validator applied to the input it sends back.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns the JSON schema (type object) describing the input.
	InputSchema() map[string]any
	// Parse validates a raw input and converts it into the value passed to
	// Execute. Validation failures are reported as *ValidationErrors.
	Parse(raw json.RawMessage) (any, error)
	// Execute runs the tool. A returned error is fatal to the conversation;
	// failures the model should see belong in a ToolResult with IsError set.
	Execute(tc *ToolContext, input any) (ToolAction, error)
}

// NoToolUseHandler decides what happens when the model replies without tool uses.
// It receives the history including the assistant reply.
type NoToolUseHandler func(ctx context.Context, messages []Message) (NoToolUseAction, error)

// ConversationOptions fully describes one conversation. It is built once by
// the caller or freshly by a NewConversation action.
type ConversationOptions struct {
	Model    ModelOptions
	System   string
	Messages []Message
	Tools    []Tool
	// OnNoToolUse is optional; without it the driver reminds the model of its tools.
	OnNoToolUse NoToolUseHandler
	// MaxTurns overrides the driver's turn cap when > 0.
	MaxTurns int
}

// ToolNames returns the names of the configured tools in order.
func (o ConversationOptions) ToolNames() []string {
	names := make([]string, len(o.Tools))
	for i, t := range o.Tools {
		names[i] = t.Name()
	}
	return names
}

// FindTool looks a tool up by name.
func (o ConversationOptions) FindTool(name string) (Tool, bool) {
	for _, t := range o.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
