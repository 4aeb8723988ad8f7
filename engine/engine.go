package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// ErrConversationNotFound is returned by Stop for unknown or finished conversations.
var ErrConversationNotFound = errors.New("conversation not found")

// Config defines tuning parameters for the Engine's operational behavior.
//
// Example:
//
//	cfg := Config{
//	    MaxConcurrentConversations: 50,
//	    EventBufferSize: 256,
//	}
type Config struct {
	// MaxConcurrentConversations limits the number of conversations that
	// talk to the model simultaneously. Further conversations wait for a
	// free slot. Set to 0 for unlimited (not recommended).
	MaxConcurrentConversations int

	// EventBufferSize sets the channel buffer size for event delivery.
	// A full buffer blocks the conversation until the caller catches up.
	EventBufferSize int

	// MaxTurns is the default turn cap; <= 0 means core.DefaultMaxTurns.
	MaxTurns int

	// Stream requests text deltas from the model.
	Stream bool
}

// DefaultConfig provides default configuration values.
//
// Configuration values:
//   - MaxConcurrentConversations: 10 (safe for most rate limits)
//   - EventBufferSize: 100
//   - MaxTurns: core.DefaultMaxTurns
//   - Stream: false
var DefaultConfig = Config{
	MaxConcurrentConversations: 10,
	EventBufferSize:            100,
	MaxTurns:                   core.DefaultMaxTurns,
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng := engine.New(m,
//	    engine.WithConfig(customConfig),
//	    engine.WithLogger(myLogger),
//	)
type Options struct {
	// Config contains operational parameters for the engine behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Callbacks receives lifecycle callbacks. A fresh manager is created if nil.
	Callbacks *CallbackManager

	// RequestProcessors run after the driver's default pipeline.
	RequestProcessors []flow.RequestProcessor

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil to ensure no logging dependencies.
	Logger logging.Logger
}

// WithConfig replaces the operational configuration.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithCallbacks sets the callback manager.
func WithCallbacks(cm *CallbackManager) func(o *Options) {
	return func(o *Options) { o.Callbacks = cm }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithRequestProcessors appends request processors to the driver pipeline.
func WithRequestProcessors(p ...flow.RequestProcessor) func(o *Options) {
	return func(o *Options) { o.RequestProcessors = append(o.RequestProcessors, p...) }
}

// Engine runs many independent conversations against one model.
//
// Responsibilities:
//   - Bounded concurrency across conversations
//   - Event streaming per conversation with configurable buffering
//   - Cancellation by conversation id
//   - Lifecycle callbacks
//   - A registry of named agents to start conversations from
//
// Engine is safe for concurrent use.
type Engine struct {
	driver    *flow.Driver
	callbacks *CallbackManager
	logger    logging.Logger
	config    Config
	sem       chan struct{}

	agents map[string]*agent.Agent
	mu     sync.RWMutex

	active   map[string]context.CancelFunc
	activeMu sync.RWMutex
}

// New creates an engine for m.
func New(m model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Config.EventBufferSize < 0 {
		opts.Config.EventBufferSize = 0
	}

	var sem chan struct{}
	if opts.Config.MaxConcurrentConversations > 0 {
		sem = make(chan struct{}, opts.Config.MaxConcurrentConversations)
	}

	driver := flow.NewDriver(m, func(o *flow.DriverOptions) {
		o.MaxTurns = opts.Config.MaxTurns
		o.Stream = opts.Config.Stream
		o.Logger = opts.Logger
		o.Hooks = opts.Callbacks.Hooks()
		o.RequestProcessors = opts.RequestProcessors
	})

	return &Engine{
		driver:    driver,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
		config:    opts.Config,
		sem:       sem,
		agents:    make(map[string]*agent.Agent),
		active:    make(map[string]context.CancelFunc),
	}
}

// Callbacks returns the callback manager.
func (e *Engine) Callbacks() *CallbackManager { return e.callbacks }

// Register adds an agent to the registry, replacing one with the same name.
func (e *Engine) Register(a *agent.Agent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[a.Name()] = a
}

// GetAgent returns a registered agent.
func (e *Engine) GetAgent(name string) (*agent.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	return a, ok
}

// StartAgent starts a conversation rendered from a registered agent.
func (e *Engine) StartAgent(
	ctx context.Context,
	agentName string,
	input string,
	data map[string]any,
) (string, <-chan core.Event, <-chan error, error) {
	a, ok := e.GetAgent(agentName)
	if !ok {
		return "", nil, nil, fmt.Errorf("agent %s not found", agentName)
	}
	opts, err := a.Start(ctx, input, data)
	if err != nil {
		return "", nil, nil, err
	}
	return e.Start(ctx, opts)
}

// Start launches a conversation asynchronously.
//
// It returns the conversation id, an event channel and an error channel.
// Both channels are closed once the conversation finished; the error channel
// carries at most one fatal error. Invalid options are rejected immediately.
//
// The caller must drain the event channel or cancel ctx: a full buffer
// blocks the conversation.
func (e *Engine) Start(
	ctx context.Context,
	opts core.ConversationOptions,
) (string, <-chan core.Event, <-chan error, error) {
	if err := core.CheckOptions(opts); err != nil {
		return "", nil, nil, err
	}

	conversationID := uuid.NewString()

	eventsCh := make(chan core.Event, e.config.EventBufferSize)
	errorsCh := make(chan error, 1)
	driverEmit := make(chan core.Event, e.config.EventBufferSize)
	resultCh := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)

	e.activeMu.Lock()
	e.active[conversationID] = cancel
	e.activeMu.Unlock()

	go func() {
		defer close(driverEmit)
		resultCh <- e.run(runCtx, conversationID, opts, driverEmit)
	}()

	go func() {
		defer func() {
			e.activeMu.Lock()
			delete(e.active, conversationID)
			e.activeMu.Unlock()
			cancel()
			close(eventsCh)
			close(errorsCh)
		}()

		err := e.processEvents(runCtx, conversationID, driverEmit, eventsCh)
		if err != nil {
			cancel()
			for range driverEmit {
			}
		}
		if runErr := <-resultCh; err == nil {
			err = runErr
		}
		if err != nil {
			errorsCh <- err
		}
	}()

	return conversationID, eventsCh, errorsCh, nil
}

// Run executes a conversation synchronously and returns every event.
func (e *Engine) Run(ctx context.Context, opts core.ConversationOptions) (string, []core.Event, error) {
	conversationID, eventsCh, errorsCh, err := e.Start(ctx, opts)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}
	if err := <-errorsCh; err != nil {
		return conversationID, events, err
	}
	return conversationID, events, nil
}

// Stop cancels a running conversation.
func (e *Engine) Stop(conversationID string) error {
	e.activeMu.RLock()
	cancel, exists := e.active[conversationID]
	e.activeMu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	e.logger.Info("engine.conversation.stop", "conversation_id", conversationID)
	cancel()
	return nil
}

// Active returns the ids of the running conversations in sorted order.
func (e *Engine) Active() []string {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()

	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// run waits for a concurrency slot and drives the conversation.
func (e *Engine) run(ctx context.Context, conversationID string, opts core.ConversationOptions, emit chan<- core.Event) error {
	if e.sem != nil {
		wait := time.Now()
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-e.sem }()
		e.logger.Debug("engine.conversation.slot", "conversation_id", conversationID, "waited_ms", time.Since(wait).Milliseconds())
	}

	rc := core.NewRunContext(ctx, conversationID, opts, e.config.MaxTurns, emit, logging.ForConversation(e.logger, "engine", conversationID))

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeConversation, &CallbackContext{
		ConversationID: conversationID,
		RunContext:     rc,
	}); err != nil {
		return e.fail(rc, err)
	}

	if err := e.driver.RunWithContext(rc); err != nil {
		return e.fail(rc, err)
	}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterConversation, &CallbackContext{
		ConversationID: conversationID,
		RunContext:     rc,
	}); err != nil {
		e.logger.Warn("engine.callback.failed", "conversation_id", conversationID, "callback", CallbackAfterConversation, "error", err.Error())
	}
	return nil
}

func (e *Engine) fail(rc *core.RunContext, err error) error {
	cbErr := e.callbacks.ExecuteCallbacks(context.WithoutCancel(rc.Context), CallbackOnError, &CallbackContext{
		ConversationID: rc.ConversationID,
		RunContext:     rc,
		Err:            err,
	})
	if cbErr != nil {
		e.logger.Warn("engine.callback.failed", "conversation_id", rc.ConversationID, "callback", CallbackOnError, "error", cbErr.Error())
	}
	return err
}

// processEvents runs the event callbacks and forwards events to the caller.
// Events are dropped once the conversation is cancelled; the driver notices
// the cancellation on its next step.
func (e *Engine) processEvents(
	ctx context.Context,
	conversationID string,
	driverEmit <-chan core.Event,
	eventsCh chan<- core.Event,
) error {
	withCallbacks := e.callbacks.Has(CallbackOnEvent)
	for ev := range driverEmit {
		if withCallbacks {
			if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnEvent, &CallbackContext{
				ConversationID: conversationID,
				Event:          &ev,
			}); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
		case eventsCh <- ev:
			if !ev.IsPartial() {
				e.logger.Debug("engine.event.delivered", "event_id", ev.ID, "type", string(ev.Type), "conversation_id", conversationID)
			}
		}
	}
	return nil
}
