package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

type addInput struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func newAddTool(calls *int32) core.Tool {
	return tool.New("add", "Add two numbers", func(tc *core.ToolContext, in addInput) (core.ToolAction, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return core.Result(strconv.FormatFloat(in.A+in.B, 'f', -1, 64)), nil
	})
}

func newStopTool() core.Tool {
	return tool.NewEndConversationTool("Stop the conversation")
}

// runConversation drives opts to completion and returns the final context
// together with every emitted event.
func runConversation(t *testing.T, d *Driver, opts core.ConversationOptions) (*core.RunContext, []core.Event, error) {
	t.Helper()
	ch := make(chan core.Event, 1024)
	rc := core.NewRunContext(context.Background(), "conv-test", opts, d.MaxTurns(), ch, logging.NoOpLogger{})
	err := d.RunWithContext(rc)
	close(ch)
	return rc, testutil.DrainEvents(ch), err
}

func TestDriver_FallbackTextResponseContinues(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddText("first").
		AddText("second")

	var fallbackCalls int
	opts := testutil.NewConversationBuilder().
		User("hello").
		OnNoToolUse(func(ctx context.Context, messages []core.Message) (core.NoToolUseAction, error) {
			fallbackCalls++
			if fallbackCalls == 1 {
				return core.TextResponse{Content: "hi"}, nil
			}
			return core.EndConversation{}, nil
		}).
		Build()

	rc, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Calls())
	assert.Equal(t, 2, fallbackCalls)

	msgs := rc.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleUser, msgs[2].Role)
	assert.Equal(t, "hi", msgs[2].Text())

	// The second request carries the synthetic reply.
	second := m.Requests()[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "hi", second.Messages[2].Text())
	assert.Empty(t, second.Tools)
}

func TestDriver_ToolResultFedBack(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddToolUse("add", map[string]any{"a": 2, "b": 3}).
		AddToolUse("end_conversation", map[string]any{})

	opts := testutil.NewConversationBuilder().
		User("what is 2+3?").
		Tools(newAddTool(nil), newStopTool()).
		Build()

	rc, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)

	msgs := rc.Messages()
	require.Len(t, msgs, 4)

	results := msgs[2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "5", results[0].Content)
	assert.False(t, results[0].IsError)
	assert.Equal(t, msgs[1].ToolUses()[0].ID, results[0].ToolUseID)
}

type pointInput struct {
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"point"`
}

func TestDriver_InvalidInputReportedToModel(t *testing.T) {
	var executed int32
	plot := tool.New("plot", "Plot a point", func(tc *core.ToolContext, in pointInput) (core.ToolAction, error) {
		atomic.AddInt32(&executed, 1)
		return core.Result("ok"), nil
	})

	m := model.NewScriptedModel("scripted").
		AddToolUse("plot", map[string]any{"point": map[string]any{"x": 1}}).
		AddToolUse("end_conversation", map[string]any{})

	opts := testutil.NewConversationBuilder().
		User("plot it").
		Tools(plot, newStopTool()).
		Build()

	rc, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&executed))

	results := rc.Messages()[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.True(t, strings.HasPrefix(results[0].Content, "Invalid input:\n"))
	assert.Contains(t, results[0].Content, "point.y: Required")
}

func TestDriver_EndConversationShortCircuits(t *testing.T) {
	var addCalls int32
	m := model.NewScriptedModel("scripted").
		AddResponse(
			model.ToolUse("end_conversation", map[string]any{}),
			model.ToolUse("add", map[string]any{"a": 1, "b": 1}),
		)

	opts := testutil.NewConversationBuilder().
		User("stop").
		Tools(newAddTool(&addCalls), newStopTool()).
		Build()

	rc, events, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)

	assert.Zero(t, atomic.LoadInt32(&addCalls))
	assert.Equal(t, 1, m.Calls())
	assert.Len(t, rc.Messages(), 2)
	assert.NotContains(t, testutil.EventTypes(events), core.EventToolResult)
}

func TestDriver_UnknownToolIsCorrectable(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddToolUse("multiply", map[string]any{"a": 2}).
		AddToolUse("end_conversation", map[string]any{})

	opts := testutil.NewConversationBuilder().
		User("multiply").
		Tools(newAddTool(nil), newStopTool()).
		Build()

	rc, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)

	results := rc.Messages()[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "No tool with name: multiply", results[0].Content)
}

func TestDriver_OneResultPerToolUseInOrder(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddResponse(
			core.TextBlock{Text: "Let me compute both."},
			model.ToolUse("add", map[string]any{"a": 1, "b": 2}),
			model.ToolUse("missing", map[string]any{}),
			model.ToolUse("add", map[string]any{"a": 10, "b": 20}),
		).
		AddToolUse("end_conversation", map[string]any{})

	opts := testutil.NewConversationBuilder().
		User("go").
		Tools(newAddTool(nil), newStopTool()).
		Build()

	rc, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)

	msgs := rc.Messages()
	uses := msgs[1].ToolUses()
	results := msgs[2].ToolResults()
	require.NoError(t, testutil.CheckBatch(uses, results))
	assert.Equal(t, "3", results[0].Content)
	assert.True(t, results[1].IsError)
	assert.Equal(t, "30", results[2].Content)
}

func TestDriver_ToolReminder(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddText("I will just chat.").
		AddToolUse("end_conversation", map[string]any{})

	opts := testutil.NewConversationBuilder().
		User("hello").
		Tools(newAddTool(nil), newStopTool()).
		Build()

	rc, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)

	msgs := rc.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Please use one of the following tools:\nadd, end_conversation", msgs[2].Text())
}

func TestDriver_NoToolsNoFallback(t *testing.T) {
	m := model.NewScriptedModel("scripted").AddText("hello there")

	opts := testutil.NewConversationBuilder().User("hello").Build()

	_, _, err := runConversation(t, NewDriver(m), opts)
	require.ErrorIs(t, err, core.ErrNoToolUseFallback)
	assert.Equal(t, 1, m.Calls())
}

func TestDriver_ToolUseWithoutToolsUsesFallback(t *testing.T) {
	m := model.NewScriptedModel("scripted").AddToolUse("add", map[string]any{"a": 1, "b": 1})

	var fallback bool
	opts := testutil.NewConversationBuilder().
		User("hello").
		OnNoToolUse(func(context.Context, []core.Message) (core.NoToolUseAction, error) {
			fallback = true
			return core.EndConversation{}, nil
		}).
		Build()

	_, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)
	assert.True(t, fallback)
}

func TestDriver_FallbackErrors(t *testing.T) {
	t.Run("handler error", func(t *testing.T) {
		boom := errors.New("boom")
		m := model.NewScriptedModel("scripted").AddText("x")
		opts := testutil.NewConversationBuilder().
			User("hello").
			OnNoToolUse(func(context.Context, []core.Message) (core.NoToolUseAction, error) { return nil, boom }).
			Build()

		_, _, err := runConversation(t, NewDriver(m), opts)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "no tool use handler")
	})

	t.Run("nil action", func(t *testing.T) {
		m := model.NewScriptedModel("scripted").AddText("x")
		opts := testutil.NewConversationBuilder().
			User("hello").
			OnNoToolUse(func(context.Context, []core.Message) (core.NoToolUseAction, error) { return nil, nil }).
			Build()

		_, _, err := runConversation(t, NewDriver(m), opts)
		require.ErrorIs(t, err, core.ErrUnknownAction)
	})
}

func TestDriver_Exhaustion(t *testing.T) {
	loopingOpts := func(maxTurns int) core.ConversationOptions {
		return testutil.NewConversationBuilder().
			User("loop forever").
			Tools(newAddTool(nil)).
			MaxTurns(maxTurns).
			Build()
	}
	looping := func() *model.ScriptedModel {
		return model.NewScriptedModel("scripted").RepeatLast(model.ToolUse("add", `{"a":1,"b":1}`))
	}

	t.Run("default cap", func(t *testing.T) {
		m := looping()
		_, _, err := runConversation(t, NewDriver(m), loopingOpts(0))

		var exhausted *core.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, core.DefaultMaxTurns, exhausted.Turns)
		assert.Equal(t, "Conversation not ended after 40 assistant messages", err.Error())
		assert.Equal(t, 40, m.Calls())
	})

	t.Run("driver cap", func(t *testing.T) {
		m := looping()
		_, _, err := runConversation(t, NewDriver(m, WithMaxTurns(3)), loopingOpts(0))

		require.ErrorIs(t, err, core.ErrConversationExhausted)
		assert.Equal(t, 3, m.Calls())
	})

	t.Run("conversation cap wins", func(t *testing.T) {
		m := looping()
		_, _, err := runConversation(t, NewDriver(m, WithMaxTurns(5)), loopingOpts(2))

		require.ErrorIs(t, err, core.ErrConversationExhausted)
		assert.Equal(t, "Conversation not ended after 2 assistant messages", err.Error())
		assert.Equal(t, 2, m.Calls())
	})
}

type handoffInput struct {
	Topic string `json:"topic"`
}

func TestDriver_HandoffReplacesConversation(t *testing.T) {
	var handoffs int32
	handoff := tool.Handoff("handoff", "Hand over to a specialist", func(tc *core.ToolContext, in handoffInput) (core.ConversationOptions, error) {
		atomic.AddInt32(&handoffs, 1)
		return testutil.NewConversationBuilder().
			System("You are a specialist in " + in.Topic).
			User("Continue with " + in.Topic).
			Tools(newAddTool(nil), newStopTool()).
			Build(), nil
	})

	// Two turns before and two after the handoff fit only if the counter restarts.
	m := model.NewScriptedModel("scripted").
		AddToolUse("add", map[string]any{"a": 1, "b": 1}).
		AddToolUse("handoff", map[string]any{"topic": "math"}).
		AddToolUse("add", map[string]any{"a": 2, "b": 2}).
		AddToolUse("end_conversation", map[string]any{})

	opts := testutil.NewConversationBuilder().
		System("You are a router").
		User("route me").
		Tools(newAddTool(nil), handoff).
		Build()

	rc, events, err := runConversation(t, NewDriver(m, WithMaxTurns(2)), opts)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&handoffs))
	assert.Equal(t, 1, rc.Replacements)
	assert.Equal(t, 4, m.Calls())
	assert.Equal(t, "You are a specialist in math", rc.Options.System)

	msgs := rc.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Continue with math", msgs[0].Text())

	reqs := m.Requests()
	assert.Equal(t, "You are a router", reqs[1].System)
	assert.Equal(t, "You are a specialist in math", reqs[2].System)
	require.Len(t, reqs[2].Messages, 1)

	assert.Contains(t, testutil.EventTypes(events), core.EventConversationReplaced)
}

func TestDriver_InvalidReplacement(t *testing.T) {
	handoff := tool.Handoff("handoff", "Hand over", func(tc *core.ToolContext, in handoffInput) (core.ConversationOptions, error) {
		return core.ConversationOptions{System: "empty"}, nil
	})
	m := model.NewScriptedModel("scripted").AddToolUse("handoff", map[string]any{"topic": "x"})

	opts := testutil.NewConversationBuilder().User("go").Tools(handoff).Build()

	_, _, err := runConversation(t, NewDriver(m), opts)
	require.ErrorIs(t, err, core.ErrInvalidConversation)
	assert.Contains(t, err.Error(), "replacement conversation")

	var inv *core.InvariantError
	assert.ErrorAs(t, err, &inv)
}

func TestDriver_FallbackCanReplaceConversation(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddText("nothing to do").
		AddToolUse("end_conversation", map[string]any{})

	next := testutil.NewConversationBuilder().User("fresh start").Tools(newStopTool()).Build()
	opts := testutil.NewConversationBuilder().
		User("hello").
		OnNoToolUse(func(context.Context, []core.Message) (core.NoToolUseAction, error) {
			return core.NewConversation{Options: next}, nil
		}).
		Build()

	rc, _, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, rc.Replacements)
	assert.Equal(t, "fresh start", rc.Messages()[0].Text())
}

func TestDriver_InvalidStartingConversation(t *testing.T) {
	m := model.NewScriptedModel("scripted")

	tests := []struct {
		name string
		opts core.ConversationOptions
	}{
		{"empty", core.ConversationOptions{}},
		{"even length", testutil.NewConversationBuilder().User("a").Assistant(core.TextBlock{Text: "b"}).Build()},
		{"starts with assistant", testutil.NewConversationBuilder().Assistant(core.TextBlock{Text: "a"}).Build()},
		{"duplicate tools", testutil.NewConversationBuilder().User("a").Tools(newStopTool(), newStopTool()).Build()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDriver(m).Run(context.Background(), tt.opts)
			require.ErrorIs(t, err, core.ErrInvalidConversation)
		})
	}
	assert.Zero(t, m.Calls())
}

func TestDriver_ToolFailuresAreFatal(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		boom := errors.New("disk full")
		failing := tool.NewFunctionTool("save", "Save", nil, func(tc *core.ToolContext, args map[string]any) (core.ToolAction, error) {
			return nil, boom
		})
		m := model.NewScriptedModel("scripted").AddToolUse("save", map[string]any{})
		opts := testutil.NewConversationBuilder().User("save").Tools(failing).Build()

		_, _, err := runConversation(t, NewDriver(m), opts)

		var te *core.ToolExecutionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "save", te.Tool)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("panic", func(t *testing.T) {
		panicking := tool.NewFunctionTool("explode", "Explode", nil, func(tc *core.ToolContext, args map[string]any) (core.ToolAction, error) {
			panic("kaboom")
		})
		m := model.NewScriptedModel("scripted").AddToolUse("explode", map[string]any{})
		opts := testutil.NewConversationBuilder().User("explode").Tools(panicking).Build()

		_, _, err := runConversation(t, NewDriver(m), opts)

		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "kaboom", pe.Value)
		assert.NotEmpty(t, pe.Stack)

		var te *core.ToolExecutionError
		assert.ErrorAs(t, err, &te)
	})
}

func TestDriver_ModelErrorIsWrapped(t *testing.T) {
	boom := errors.New("backend down")
	m := model.NewScriptedModel("scripted-x").AddError(boom)

	opts := testutil.NewConversationBuilder().User("hello").RespondWith("ok").Build()

	_, _, err := runConversation(t, NewDriver(m), opts)

	var me *core.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "scripted-x", me.Model)
	assert.ErrorIs(t, err, boom)
}

func TestDriver_ContextCancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		m := model.NewScriptedModel("scripted").AddText("never")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewDriver(m).Run(ctx, testutil.NewConversationBuilder().User("hi").RespondWith("x").Build())
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, m.Calls())
	})

	t.Run("inside a tool", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var secondCalled int32
		cancelTool := tool.NewFunctionTool("cancel", "Cancel", nil, func(tc *core.ToolContext, args map[string]any) (core.ToolAction, error) {
			cancel()
			return core.Result("cancelled"), nil
		})
		m := model.NewScriptedModel("scripted").
			AddResponse(
				model.ToolUse("cancel", map[string]any{}),
				model.ToolUse("add", map[string]any{"a": 1, "b": 2}),
			)
		opts := testutil.NewConversationBuilder().User("hi").Tools(cancelTool, newAddTool(&secondCalled)).Build()

		err := NewDriver(m).Run(ctx, opts)
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, atomic.LoadInt32(&secondCalled))
		assert.Equal(t, 1, m.Calls())
	})
}

func TestDriver_HistoryAlternatesBeforeEveryCall(t *testing.T) {
	var checked int
	hooks := Hooks{
		BeforeModel: func(rc *core.RunContext, req *model.Request) error {
			checked++
			return core.CheckMessages(req.Messages)
		},
	}

	m := model.NewScriptedModel("scripted").
		AddText("thinking").
		AddToolUse("add", map[string]any{"a": 1, "b": 2}).
		AddResponse(core.TextBlock{Text: "  "}, model.ToolUse("add", map[string]any{"a": 3, "b": 4})).
		AddToolUse("end_conversation", map[string]any{})

	opts := testutil.NewConversationBuilder().User("go").Tools(newAddTool(nil), newStopTool()).Build()

	rc, _, err := runConversation(t, NewDriver(m, WithHooks(hooks)), opts)
	require.NoError(t, err)
	assert.Equal(t, 4, checked)
	assert.Len(t, rc.Messages(), 8)

	// The whitespace-only block stays in history but never reaches the model.
	last := m.Requests()[3]
	require.Len(t, last.Messages[5].Content, 1)
	assert.Len(t, rc.Messages()[5].Content, 2)
}

func TestDriver_Hooks(t *testing.T) {
	var trace []string
	hooks := Hooks{
		BeforeModel: func(rc *core.RunContext, req *model.Request) error {
			trace = append(trace, "before_model")
			return nil
		},
		AfterModel: func(rc *core.RunContext, resp *model.Response) error {
			trace = append(trace, "after_model:"+resp.StopReason)
			return nil
		},
		BeforeTool: func(tc *core.ToolContext, use core.ToolUseBlock) error {
			trace = append(trace, "before_tool:"+use.Name)
			return nil
		},
		AfterTool: func(tc *core.ToolContext, use core.ToolUseBlock, action core.ToolAction) error {
			trace = append(trace, "after_tool:"+use.Name)
			return nil
		},
	}

	m := model.NewScriptedModel("scripted").
		AddToolUse("add", map[string]any{"a": 1, "b": 2}).
		AddToolUse("end_conversation", map[string]any{})
	opts := testutil.NewConversationBuilder().User("go").Tools(newAddTool(nil), newStopTool()).Build()

	_, _, err := runConversation(t, NewDriver(m, WithHooks(hooks)), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"before_model", "after_model:tool_use", "before_tool:add", "after_tool:add",
		"before_model", "after_model:tool_use", "before_tool:end_conversation", "after_tool:end_conversation",
	}, trace)
}

func TestDriver_HookErrorAborts(t *testing.T) {
	denied := errors.New("denied")
	hooks := Hooks{
		BeforeTool: func(tc *core.ToolContext, use core.ToolUseBlock) error { return denied },
	}
	m := model.NewScriptedModel("scripted").AddToolUse("add", map[string]any{"a": 1, "b": 2})
	opts := testutil.NewConversationBuilder().User("go").Tools(newAddTool(nil)).Build()

	_, _, err := runConversation(t, NewDriver(m, WithHooks(hooks)), opts)
	require.ErrorIs(t, err, denied)
}

func TestDriver_EventOrder(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddToolUse("add", map[string]any{"a": 2, "b": 3}).
		AddToolUse("end_conversation", map[string]any{})
	opts := testutil.NewConversationBuilder().User("go").Tools(newAddTool(nil), newStopTool()).Build()

	_, events, err := runConversation(t, NewDriver(m), opts)
	require.NoError(t, err)

	assert.Equal(t, []core.EventType{
		core.EventTurnStarted,
		core.EventAssistantMessage,
		core.EventToolCall,
		core.EventToolResult,
		core.EventUserMessage,
		core.EventTurnStarted,
		core.EventAssistantMessage,
		core.EventToolCall,
		core.EventConversationEnded,
	}, testutil.EventTypes(events))

	for _, ev := range events {
		assert.Equal(t, "conv-test", ev.ConversationID)
	}
	assert.True(t, events[len(events)-1].IsTerminal())
}

func TestDriver_StreamingEmitsDeltas(t *testing.T) {
	m := model.NewScriptedModel("scripted").AddText("Hello brave world")
	opts := testutil.NewConversationBuilder().
		User("greet").
		OnNoToolUse(func(context.Context, []core.Message) (core.NoToolUseAction, error) {
			return core.EndConversation{}, nil
		}).
		Build()

	_, events, err := runConversation(t, NewDriver(m, WithStreaming(true)), opts)
	require.NoError(t, err)

	var text strings.Builder
	var deltas int
	for _, ev := range events {
		if ev.IsPartial() {
			deltas++
			text.WriteString(ev.Delta)
		}
	}
	assert.Equal(t, 3, deltas)
	assert.Equal(t, "Hello brave world", text.String())
	assert.True(t, m.Requests()[0].Stream)

	types := testutil.EventTypes(events)
	assert.Equal(t, core.EventTurnStarted, types[0])
	assert.Equal(t, core.EventAssistantMessage, types[4])
}

func TestDriver_RequestCarriesConversationSettings(t *testing.T) {
	temp := 0.3
	m := model.NewScriptedModel("scripted").AddToolUse("end_conversation", map[string]any{})
	opts := testutil.NewConversationBuilder().
		System("be brief").
		Model("claude-test").
		User("hi").
		Tools(newAddTool(nil), newStopTool()).
		Build()
	opts.Model.Temperature = &temp

	require.NoError(t, NewDriver(m).Run(context.Background(), opts))

	req := m.Requests()[0]
	assert.Equal(t, "be brief", req.System)
	assert.Equal(t, "claude-test", req.Options.Model)
	assert.InDelta(t, 0.3, req.Options.TemperatureOr(0), 1e-9)
	require.Len(t, req.Tools, 2)
	assert.Equal(t, "add", req.Tools[0].Name)
	assert.Equal(t, "object", req.Tools[0].InputSchema["type"])
}

func TestDriver_StructuredLoggerRecordsCalls(t *testing.T) {
	m := model.NewScriptedModel("scripted").
		AddToolUse("add", map[string]any{"a": 2, "b": 3}).
		AddToolUse("end_conversation", map[string]any{})

	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: &buf})

	opts := testutil.NewConversationBuilder().User("add 2 and 3").Tools(newAddTool(nil), newStopTool()).Build()
	require.NoError(t, NewDriver(m, WithLogger(logger)).Run(context.Background(), opts))

	var records []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		records = append(records, rec)
	}

	byMsg := map[string][]map[string]any{}
	for _, rec := range records {
		byMsg[rec["msg"].(string)] = append(byMsg[rec["msg"].(string)], rec)
	}

	require.Len(t, byMsg["model.call.completed"], 2)
	require.Len(t, byMsg["tool.call.completed"], 2)
	assert.Equal(t, "add", byMsg["tool.call.completed"][0]["tool_name"])
	assert.Equal(t, false, byMsg["tool.call.completed"][0]["is_error"])

	require.Len(t, byMsg["conversation.completed"], 1)
	done := byMsg["conversation.completed"][0]
	assert.Equal(t, float64(2), done["turns"])
	assert.Equal(t, "driver", done["component"])

	id, _ := done["conversation_id"].(string)
	require.NotEmpty(t, id)
	for _, rec := range records {
		assert.Equal(t, id, rec["conversation_id"], rec["msg"])
	}
}
