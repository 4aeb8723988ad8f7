package model

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/agentloop/core"
)

// ErrScriptExhausted is returned when a ScriptedModel is asked for more turns than scripted.
var ErrScriptExhausted = errors.New("scripted model has no more responses")

type scriptStep struct {
	message core.Message
	err     error
}

// ScriptedModel replays canned assistant turns in order and records every
// request it receives. It is safe for concurrent use.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	steps    []scriptStep
	next     int
	requests []Request
	fallback *core.Message
}

// NewScriptedModel constructs an empty ScriptedModel.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{
		info: Info{
			Name:          name,
			Provider:      "scripted",
			SupportsTools: true,
		},
	}
}

// AddResponse queues a complete assistant message. Tool uses without an ID get one assigned.
func (m *ScriptedModel) AddResponse(blocks ...core.Block) *ScriptedModel {
	out := make([]core.Block, len(blocks))
	for i, b := range blocks {
		if tu, ok := b.(core.ToolUseBlock); ok && tu.ID == "" {
			tu.ID = "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			b = tu
		}
		out[i] = b
	}
	m.mu.Lock()
	m.steps = append(m.steps, scriptStep{message: core.NewAssistantMessage(out...)})
	m.mu.Unlock()
	return m
}

// AddText queues a text-only assistant turn.
func (m *ScriptedModel) AddText(text string) *ScriptedModel {
	return m.AddResponse(core.TextBlock{Text: text})
}

// AddToolUse queues an assistant turn with a single tool use whose input is
// the JSON encoding of input.
func (m *ScriptedModel) AddToolUse(name string, input any) *ScriptedModel {
	return m.AddResponse(ToolUse(name, input))
}

// AddError queues a failing turn.
func (m *ScriptedModel) AddError(err error) *ScriptedModel {
	m.mu.Lock()
	m.steps = append(m.steps, scriptStep{err: err})
	m.mu.Unlock()
	return m
}

// RepeatLast makes the model answer every request beyond the script with
// the given blocks instead of failing.
func (m *ScriptedModel) RepeatLast(blocks ...core.Block) *ScriptedModel {
	msg := core.NewAssistantMessage(blocks...)
	m.mu.Lock()
	m.fallback = &msg
	m.mu.Unlock()
	return m
}

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns how many requests were received.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Generate implements Model. With req.Stream set, text blocks are emitted as
// word-sized partial deltas before the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	req.Messages = append([]core.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	var step scriptStep
	switch {
	case m.next < len(m.steps):
		step = m.steps[m.next]
		m.next++
	case m.fallback != nil:
		step = scriptStep{message: *m.fallback}
	default:
		step = scriptStep{err: ErrScriptExhausted}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if step.err != nil {
			errCh <- step.err
			return
		}
		if req.Stream {
			for _, d := range deltas(step.message) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Delta: d}:
				}
			}
		}
		stop := "end_turn"
		if len(step.message.ToolUses()) > 0 {
			stop = "tool_use"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Message: step.message.Clone(), StopReason: stop}:
		}
	}()
	return respCh, errCh
}

func deltas(msg core.Message) []string {
	var out []string
	for _, b := range msg.Content {
		tb, ok := b.(core.TextBlock)
		if !ok {
			continue
		}
		words := strings.SplitAfter(tb.Text, " ")
		for _, w := range words {
			if w != "" {
				out = append(out, w)
			}
		}
	}
	return out
}

// ToolUse builds a ToolUseBlock whose input is the JSON encoding of input.
// The ID is left empty; ScriptedModel assigns one.
func ToolUse(name string, input any) core.ToolUseBlock {
	var raw json.RawMessage
	switch v := input.(type) {
	case json.RawMessage:
		raw = v
	case string:
		raw = json.RawMessage(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte("{}")
		}
		raw = data
	}
	return core.ToolUseBlock{Name: name, Input: raw}
}
