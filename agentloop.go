// Package agentloop provides a high-level façade over the conversation
// driver and engine, for running multi-turn, tool-augmented conversations
// with a language model. Most applications interact with this package by:
//  1. Creating a Loop via New() around a model adapter
//  2. Describing a conversation with core.ConversationOptions or an agent.Agent
//  3. Running it synchronously (Run), asynchronously (Start) or, for a single
//     question, through Ask
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. Retry with exponential backoff around the model
// is enabled by default and can be tuned or switched off.
package agentloop

import (
	"context"
	"errors"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// ErrNoAnswer is returned by Ask when the conversation ended without the
// model calling the answer tool.
var ErrNoAnswer = errors.New("conversation ended without an answer")

// AnswerToolName is the tool Ask offers the model for its final answer.
const AnswerToolName = "answer_question"

// Options configures the Loop instance.
type Options struct {
	// Engine configuration (concurrency, streaming, buffers, turn cap)
	EngineConfig engine.Config

	// Retry configures retries around the model. Nil disables them.
	Retry *model.RetryOptions

	// Callbacks receives lifecycle callbacks. Optional.
	Callbacks *engine.CallbackManager

	Logger logging.Logger
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithEngineConfig replaces the engine configuration.
func WithEngineConfig(cfg engine.Config) func(o *Options) {
	return func(o *Options) { o.EngineConfig = cfg }
}

// WithMaxTurns sets the default turn cap.
func WithMaxTurns(n int) func(o *Options) {
	return func(o *Options) { o.EngineConfig.MaxTurns = n }
}

// WithStreaming enables text-delta events.
func WithStreaming(enabled bool) func(o *Options) {
	return func(o *Options) { o.EngineConfig.Stream = enabled }
}

// WithMaxConcurrentConversations bounds concurrently running conversations.
func WithMaxConcurrentConversations(n int) func(o *Options) {
	return func(o *Options) { o.EngineConfig.MaxConcurrentConversations = n }
}

// WithRetry sets the retry policy around the model.
func WithRetry(r model.RetryOptions) func(o *Options) {
	return func(o *Options) { o.Retry = &r }
}

// WithoutRetry disables retries around the model.
func WithoutRetry() func(o *Options) {
	return func(o *Options) { o.Retry = nil }
}

// WithCallbacks sets the engine callback manager.
func WithCallbacks(cm *engine.CallbackManager) func(o *Options) {
	return func(o *Options) { o.Callbacks = cm }
}

// Loop runs conversations against one model.
type Loop struct {
	opts   Options
	model  model.Model
	engine *engine.Engine
}

// New creates a Loop for m. The model handle is injected so tests can pass
// a model.ScriptedModel and applications any adapter.
func New(m model.Model, optFns ...func(o *Options)) *Loop {
	retry := model.DefaultRetryOptions
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Retry:        &retry,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Retry != nil {
		r := *opts.Retry
		m = model.WithRetry(m, func(o *model.RetryOptions) {
			*o = r
			if o.Logger == nil {
				o.Logger = opts.Logger
			}
		})
	}

	eng := engine.New(m, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return &Loop{opts: opts, model: m, engine: eng}
}

// Model returns the model conversations talk to, including the retry decorator.
func (l *Loop) Model() model.Model { return l.model }

// Engine returns the underlying engine.
func (l *Loop) Engine() *engine.Engine { return l.engine }

// RegisterAgent adds an agent that can be started by name with StartAgent.
func (l *Loop) RegisterAgent(a *agent.Agent) { l.engine.Register(a) }

// Run drives a conversation to completion and returns its events.
func (l *Loop) Run(ctx context.Context, opts core.ConversationOptions) ([]core.Event, error) {
	_, events, err := l.engine.Run(ctx, opts)
	return events, err
}

// Start launches a conversation asynchronously. See engine.Engine.Start.
func (l *Loop) Start(
	ctx context.Context,
	opts core.ConversationOptions,
) (string, <-chan core.Event, <-chan error, error) {
	return l.engine.Start(ctx, opts)
}

// StartAgent launches a conversation of a registered agent.
func (l *Loop) StartAgent(
	ctx context.Context,
	agentName, input string,
	data map[string]any,
) (string, <-chan core.Event, <-chan error, error) {
	return l.engine.StartAgent(ctx, agentName, input, data)
}

// Stop cancels a running conversation.
func (l *Loop) Stop(conversationID string) error { return l.engine.Stop(conversationID) }

// AskOptions configures Ask.
type AskOptions struct {
	System string
	Model  core.ModelOptions
	// Tools are offered next to the answer tool, e.g. for lookups.
	Tools    []core.Tool
	MaxTurns int
}

type answerInput struct {
	Answer string `json:"answer"`
}

// Ask runs a conversation whose only way to finish is an answer_question
// tool and returns the answer the model gave.
func (l *Loop) Ask(ctx context.Context, question string, optFns ...func(o *AskOptions)) (string, error) {
	var ao AskOptions
	for _, fn := range optFns {
		fn(&ao)
	}

	var (
		answer   string
		answered bool
	)
	answerTool := tool.Finish(AnswerToolName, "Provide answer to the user", func(tc *core.ToolContext, in answerInput) error {
		answer, answered = in.Answer, true
		return nil
	})

	opts := core.ConversationOptions{
		Model:    ao.Model,
		System:   ao.System,
		Messages: []core.Message{core.NewUserMessage(question)},
		Tools:    append([]core.Tool{answerTool}, ao.Tools...),
		MaxTurns: ao.MaxTurns,
	}

	if _, err := l.Run(ctx, opts); err != nil {
		return "", err
	}
	if !answered {
		return "", ErrNoAnswer
	}
	return answer, nil
}
