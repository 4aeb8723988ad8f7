package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// DriverOptions configures a Driver.
type DriverOptions struct {
	// MaxTurns caps assistant turns per conversation; <= 0 means core.DefaultMaxTurns.
	// ConversationOptions.MaxTurns takes precedence when set.
	MaxTurns int
	// Stream requests text deltas from the model and emits them as events.
	Stream bool
	Logger logging.Logger
	Hooks  Hooks
	// RequestProcessors run after the default pipeline, in order.
	RequestProcessors []RequestProcessor
}

// Driver runs conversations against one model. It holds no per-conversation
// state and is safe for concurrent use.
type Driver struct {
	model      model.Model
	opts       DriverOptions
	processors []RequestProcessor
	dispatcher *Dispatcher
}

// NewDriver creates a Driver for m.
func NewDriver(m model.Model, optFns ...func(o *DriverOptions)) *Driver {
	opts := DriverOptions{
		MaxTurns: core.DefaultMaxTurns,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	processors := append(DefaultRequestProcessors(), opts.RequestProcessors...)

	return &Driver{
		model:      m,
		opts:       opts,
		processors: processors,
		dispatcher: NewDispatcher(opts.Hooks),
	}
}

// WithMaxTurns sets the driver-wide turn cap.
func WithMaxTurns(n int) func(o *DriverOptions) {
	return func(o *DriverOptions) { o.MaxTurns = n }
}

// WithStreaming enables text-delta streaming.
func WithStreaming(enabled bool) func(o *DriverOptions) {
	return func(o *DriverOptions) { o.Stream = enabled }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *DriverOptions) {
	return func(o *DriverOptions) { o.Logger = l }
}

// WithHooks sets the lifecycle hooks.
func WithHooks(h Hooks) func(o *DriverOptions) {
	return func(o *DriverOptions) { o.Hooks = h }
}

// Model returns the model the driver talks to.
func (d *Driver) Model() model.Model { return d.model }

// MaxTurns returns the driver-wide turn cap.
func (d *Driver) MaxTurns() int { return d.opts.MaxTurns }

// Logger returns the driver's logger.
func (d *Driver) Logger() logging.Logger { return d.opts.Logger }

// Run drives the conversation described by opts until it ends. It returns nil
// on clean termination and a fatal error otherwise. Completion results are
// observed through the tools themselves.
func (d *Driver) Run(ctx context.Context, opts core.ConversationOptions) error {
	id := core.NewID()
	rc := core.NewRunContext(ctx, id, opts, d.opts.MaxTurns, nil, logging.ForConversation(d.opts.Logger, "driver", id))
	return d.RunWithContext(rc)
}

// RunWithContext drives a prepared RunContext. Events are emitted through
// rc.Emit when set.
func (d *Driver) RunWithContext(rc *core.RunContext) error {
	start := time.Now()
	rc.LogInfo("conversation.start", "conversation_id", rc.ConversationID, "model", d.model.Info().Name, "max_turns", rc.Limiter.Max())

	err := d.trampoline(rc)

	args := []any{
		"conversation_id", rc.ConversationID,
		"turns", rc.Limiter.Count(),
		"replacements", rc.Replacements,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if cl, ok := callLogger(rc); ok {
		cl.LogConversation(rc.Limiter.Count(), rc.Replacements, time.Since(start), err)
	} else if err != nil {
		rc.LogError("conversation.failed", append(args, "error", err.Error())...)
	} else {
		rc.LogInfo("conversation.completed", args...)
	}
	if err != nil {
		return err
	}
	return rc.EmitEvent(rc.NewEvent(core.EventConversationEnded))
}

// trampoline re-enters the loop for every NewConversation action instead of
// recursing, so chains of replacements run in constant stack space.
func (d *Driver) trampoline(rc *core.RunContext) error {
	if err := core.CheckOptions(rc.Options); err != nil {
		return err
	}
	for {
		outcome, err := d.loop(rc)
		if err != nil {
			return err
		}
		if outcome.Kind != OutcomeReplace {
			return nil
		}

		next := *outcome.Options
		if err := core.CheckOptions(next); err != nil {
			return fmt.Errorf("replacement conversation: %w", err)
		}
		rc.Replace(next, d.opts.MaxTurns)
		rc.LogInfo("conversation.replaced", "conversation_id", rc.ConversationID, "replacements", rc.Replacements, "tools", strings.Join(next.ToolNames(), ","))
		if err := rc.EmitEvent(rc.NewEvent(core.EventConversationReplaced)); err != nil {
			return err
		}
	}
}

// loop runs the active conversation until it ends, asks to be replaced, or fails.
func (d *Driver) loop(rc *core.RunContext) (Outcome, error) {
	for {
		if err := rc.Err(); err != nil {
			return Outcome{}, err
		}
		if err := rc.Limiter.Allow(); err != nil {
			return Outcome{}, err
		}
		if err := core.CheckMessages(rc.Messages()); err != nil {
			return Outcome{}, err
		}

		msg, err := d.generate(rc)
		if err != nil {
			return Outcome{}, err
		}

		rc.Append(msg)
		rc.Limiter.Increment()

		ev := rc.NewEvent(core.EventAssistantMessage)
		ev.Message = &msg
		if err := rc.EmitEvent(ev); err != nil {
			return Outcome{}, err
		}

		uses := msg.ToolUses()
		for _, u := range uses {
			rc.LogDebug("conversation.tool_use", "tool", u.Name, "input", string(u.Input))
		}

		if len(uses) > 0 && len(rc.Options.Tools) > 0 {
			batch, err := d.dispatcher.DispatchAll(rc, uses)
			if err != nil {
				return Outcome{}, err
			}
			if batch.Control != nil {
				return ResolveToolAction(batch.Control)
			}
			if err := d.appendUser(rc, core.NewToolResultMessage(batch.Results...)); err != nil {
				return Outcome{}, err
			}
			continue
		}

		outcome, err := d.noToolUse(rc)
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Kind != OutcomeContinue {
			return outcome, nil
		}
		if err := d.appendUser(rc, *outcome.Message); err != nil {
			return Outcome{}, err
		}
	}
}

// noToolUse decides how to continue after a reply without tool uses.
func (d *Driver) noToolUse(rc *core.RunContext) (Outcome, error) {
	if rc.Options.OnNoToolUse != nil {
		action, err := rc.Options.OnNoToolUse(rc.Context, rc.Messages())
		if err != nil {
			return Outcome{}, fmt.Errorf("no tool use handler: %w", err)
		}
		return ResolveNoToolUse(action)
	}
	if len(rc.Options.Tools) > 0 {
		rc.LogDebug("conversation.tool_reminder", "tools", len(rc.Options.Tools))
		msg := core.NewUserMessage("Please use one of the following tools:\n" + strings.Join(rc.Options.ToolNames(), ", "))
		return Outcome{Kind: OutcomeContinue, Message: &msg}, nil
	}
	return Outcome{}, core.ErrNoToolUseFallback
}

func (d *Driver) appendUser(rc *core.RunContext, msg core.Message) error {
	rc.Append(msg)
	ev := rc.NewEvent(core.EventUserMessage)
	ev.Message = &msg
	return rc.EmitEvent(ev)
}

// generate requests and drains one assistant turn.
func (d *Driver) generate(rc *core.RunContext) (core.Message, error) {
	req := model.Request{Stream: d.opts.Stream}
	for _, p := range d.processors {
		if err := p.ProcessRequest(rc, &req); err != nil {
			return core.Message{}, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}

	if d.opts.Hooks.BeforeModel != nil {
		if err := d.opts.Hooks.BeforeModel(rc, &req); err != nil {
			return core.Message{}, fmt.Errorf("before model hook: %w", err)
		}
	}

	if err := rc.EmitEvent(rc.NewEvent(core.EventTurnStarted)); err != nil {
		return core.Message{}, err
	}

	info := d.model.Info()
	rc.LogDebug("model.call.start", "model", info.Name, "turn", rc.Limiter.Count()+1, "messages", len(req.Messages), "tools", len(req.Tools))

	start := time.Now()
	respCh, errCh := d.model.Generate(rc.Context, req)
	resp, err := model.Collect(rc.Context, respCh, errCh, func(delta string) error {
		ev := rc.NewEvent(core.EventTextDelta)
		ev.Delta = delta
		return rc.EmitEvent(ev)
	})
	dur := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return core.Message{}, err
		}
		if cl, ok := callLogger(rc); ok {
			cl.LogModelCall(info.Name, 0, 0, dur, err)
		} else {
			rc.LogError("model.call.failed", "model", info.Name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		}
		return core.Message{}, &core.ModelError{Model: info.Name, Err: err}
	}

	if cl, ok := callLogger(rc); ok {
		var in, out int
		if resp.Usage != nil {
			in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
		}
		cl.LogModelCall(info.Name, in, out, dur, nil)
	} else {
		usage := []any{"model", info.Name, "duration_ms", dur.Milliseconds()}
		if resp.Usage != nil {
			usage = append(usage, "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
		}
		rc.LogInfo("model.call.completed", usage...)
	}
	rc.LogDebug("model.call.stop", "model", info.Name, "stop_reason", resp.StopReason)

	if d.opts.Hooks.AfterModel != nil {
		if err := d.opts.Hooks.AfterModel(rc, &resp); err != nil {
			return core.Message{}, fmt.Errorf("after model hook: %w", err)
		}
	}
	return resp.Message, nil
}

// callLogger returns the dedicated call records of the conversation logger, if any.
func callLogger(rc *core.RunContext) (logging.CallLogger, bool) {
	cl, ok := rc.Logger().(logging.CallLogger)
	return cl, ok
}
