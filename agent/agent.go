package agent

import (
	"context"
	"fmt"
	"maps"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	Description string
	Instruction Instruction
	Model       core.ModelOptions
	Tools       []core.Tool
	MaxTurns    int
	OnNoToolUse core.NoToolUseHandler
	// Data holds template values available to the instruction. Per-call data
	// passed to Conversation takes precedence.
	Data map[string]any
}

// Agent is a named conversation template.
type Agent struct {
	name      string
	opts      Options
	subAgents []*Agent
}

// New creates an agent with a default instruction naming it.
func New(name string, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{name: name, opts: opts}
}

// WithDescription sets the description shown to other agents handing over to this one.
func WithDescription(d string) func(o *Options) {
	return func(o *Options) { o.Description = d }
}

// WithInstruction sets a static instruction template.
func WithInstruction(text string) func(o *Options) {
	return func(o *Options) { o.Instruction = NewInstructionFromText(text) }
}

// WithInstructionFunc sets a dynamic instruction.
func WithInstructionFunc(fn func(ctx context.Context, data map[string]any) (string, error)) func(o *Options) {
	return func(o *Options) { o.Instruction = NewInstructionFromFunc(fn) }
}

// WithModel selects the model name.
func WithModel(name string) func(o *Options) {
	return func(o *Options) { o.Model.Model = name }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) func(o *Options) {
	return func(o *Options) { o.Model.Temperature = &t }
}

// WithMaxTokens caps the tokens of one assistant turn.
func WithMaxTokens(n int64) func(o *Options) {
	return func(o *Options) { o.Model.MaxTokens = n }
}

// WithTools adds tools.
func WithTools(tools ...core.Tool) func(o *Options) {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithMaxTurns sets the per-conversation turn cap.
func WithMaxTurns(n int) func(o *Options) {
	return func(o *Options) { o.MaxTurns = n }
}

// WithNoToolUse sets the fallback used when the model answers without a tool.
func WithNoToolUse(h core.NoToolUseHandler) func(o *Options) {
	return func(o *Options) { o.OnNoToolUse = h }
}

// WithData sets default template data.
func WithData(data map[string]any) func(o *Options) {
	return func(o *Options) { o.Data = data }
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.opts.Description }

// RegisterTool adds a tool to the agent's capability set.
func (a *Agent) RegisterTool(t core.Tool) {
	a.opts.Tools = append(a.opts.Tools, t)
}

// Tools returns the agent's own tools, without hand-off tools.
func (a *Agent) Tools() []core.Tool {
	return append([]core.Tool(nil), a.opts.Tools...)
}

// SetSubAgents sets the agents this one may hand the conversation over to.
// Each becomes a transfer_to_<name> tool.
func (a *Agent) SetSubAgents(agents ...*Agent) {
	a.subAgents = append([]*Agent(nil), agents...)
}

// SubAgents returns the direct sub-agents.
func (a *Agent) SubAgents() []*Agent {
	return append([]*Agent(nil), a.subAgents...)
}

// FindAgent performs a depth-first search over the subtree rooted at this
// agent (including itself) returning the first agent whose Name matches.
// Returns nil if no match is found.
func (a *Agent) FindAgent(name string) *Agent {
	return a.find(name, map[*Agent]bool{})
}

func (a *Agent) find(name string, seen map[*Agent]bool) *Agent {
	if seen[a] {
		return nil
	}
	seen[a] = true
	if a.name == name {
		return a
	}
	for _, child := range a.subAgents {
		if found := child.find(name, seen); found != nil {
			return found
		}
	}
	return nil
}

// Start renders a conversation opened by a single user message.
func (a *Agent) Start(ctx context.Context, input string, data map[string]any) (core.ConversationOptions, error) {
	return a.Conversation(ctx, []core.Message{core.NewUserMessage(input)}, data)
}

// Conversation renders the agent into options for a conversation over
// messages. The result is validated, so it can be returned straight from a
// hand-off tool.
func (a *Agent) Conversation(ctx context.Context, messages []core.Message, data map[string]any) (core.ConversationOptions, error) {
	td := map[string]any{"agent_name": a.name}
	maps.Copy(td, a.opts.Data)
	maps.Copy(td, data)

	system, err := a.opts.Instruction.Resolve(ctx, td)
	if err != nil {
		return core.ConversationOptions{}, fmt.Errorf("agent %s: instruction: %w", a.name, err)
	}

	tools := a.Tools()
	for _, sub := range a.subAgents {
		tools = append(tools, TransferTool(sub))
	}

	opts := core.ConversationOptions{
		Model:       a.opts.Model,
		System:      system,
		Messages:    append([]core.Message(nil), messages...),
		Tools:       tools,
		OnNoToolUse: a.opts.OnNoToolUse,
		MaxTurns:    a.opts.MaxTurns,
	}
	if err := core.CheckOptions(opts); err != nil {
		return core.ConversationOptions{}, fmt.Errorf("agent %s: %w", a.name, err)
	}
	return opts, nil
}

// TransferInput is what the model supplies when handing over to another agent.
type TransferInput struct {
	Task string `json:"task" jsonschema_description:"The task for the other agent, including every detail it needs" validate:"required"`
}

// TransferToolName returns the name of the hand-off tool for target.
func TransferToolName(target *Agent) string { return "transfer_to_" + target.Name() }

// TransferTool returns a tool that replaces the running conversation with a
// fresh conversation of target, opened by the task the model describes.
func TransferTool(target *Agent) core.Tool {
	desc := fmt.Sprintf("Hand the conversation over to %s.", target.Name())
	if target.Description() != "" {
		desc += " " + target.Description()
	}
	return tool.Handoff(TransferToolName(target), desc, func(tc *core.ToolContext, in TransferInput) (core.ConversationOptions, error) {
		tc.LogInfo("agent.transfer", "from_tool", tc.ToolName(), "to", target.Name())
		return target.Start(tc.Context(), in.Task, map[string]any{"task": in.Task})
	})
}
