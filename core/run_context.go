package core

import (
	"context"
	"sort"

	"github.com/hupe1980/agentloop/logging"
)

// RunContext carries the mutable, per-conversation execution scope handed
// through the driver, the dispatcher and every tool. It aggregates:
//   - The ambient cancellation Context
//   - The conversation identifier
//   - The active ConversationOptions and its growing message history
//   - The turn limiter
//   - An optional event sink
//   - A scratch state map tools can share during one conversation
//
// A NewConversation action resets options, history and limiter in place
// while the identifier, state and event sink survive.
type RunContext struct {
	Context        context.Context
	ConversationID string
	Options        ConversationOptions
	Limiter        *TurnLimiter
	Emit           chan<- Event
	Replacements   int

	messages []Message
	state    map[string]any

	*scopedLog
}

// NewRunContext constructs a RunContext for opts. The caller's message slice
// is copied so appends never alias it.
func NewRunContext(
	ctx context.Context,
	conversationID string,
	opts ConversationOptions,
	maxTurns int,
	emit chan<- Event,
	logger logging.Logger,
) *RunContext {
	if conversationID == "" {
		conversationID = NewID()
	}
	if opts.MaxTurns > 0 {
		maxTurns = opts.MaxTurns
	}
	return &RunContext{
		Context:        ctx,
		ConversationID: conversationID,
		Options:        opts,
		Limiter:        NewTurnLimiter(maxTurns),
		Emit:           emit,
		messages:       append([]Message(nil), opts.Messages...),
		state:          map[string]any{},
		scopedLog:      newScopedLog(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Messages returns a copy of the current history.
func (rc *RunContext) Messages() []Message {
	return append([]Message(nil), rc.messages...)
}

// Len returns the current history length.
func (rc *RunContext) Len() int { return len(rc.messages) }

// Append adds a message to the history.
func (rc *RunContext) Append(m Message) { rc.messages = append(rc.messages, m) }

// Replace swaps in a new conversation. The turn counter restarts and the
// history becomes a copy of opts.Messages.
func (rc *RunContext) Replace(opts ConversationOptions, defaultMaxTurns int) {
	maxTurns := defaultMaxTurns
	if opts.MaxTurns > 0 {
		maxTurns = opts.MaxTurns
	}
	rc.Options = opts
	rc.messages = append([]Message(nil), opts.Messages...)
	rc.Limiter.Reset(maxTurns)
	rc.Replacements++
}

// GetState returns a value previously stored by a tool of this conversation.
func (rc *RunContext) GetState(k string) (any, bool) {
	v, ok := rc.state[k]
	return v, ok
}

// SetState stores a value visible to later tool calls of this conversation.
func (rc *RunContext) SetState(k string, v any) { rc.state[k] = v }

// StateKeys returns the stored state keys in sorted order.
func (rc *RunContext) StateKeys() []string {
	keys := make([]string, 0, len(rc.state))
	for k := range rc.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EmitEvent forwards ev to the event sink, if any. It blocks until the sink
// accepts the event or the context is cancelled.
func (rc *RunContext) EmitEvent(ev Event) error {
	if rc.Emit == nil {
		return nil
	}
	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
		return nil
	}
}

// NewEvent creates an event stamped with this conversation and its current turn.
func (rc *RunContext) NewEvent(typ EventType) Event {
	return NewEvent(rc.ConversationID, typ, rc.Limiter.Count())
}
