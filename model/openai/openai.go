// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming + function/tool calling). It
// adapts the block-based conversation history into the SDK's message format
// and back.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// DefaultModel is used when neither Options nor the request name a model.
const DefaultModel = openai.ChatModelGPT4oMini

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool uses when the finish reason is emitted.
type aggCall struct {
	index          int64
	id, name, args string
}

// Options configure the OpenAI model adapter. Request-level
// core.ModelOptions take precedence over these defaults.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	// MaxRetries is passed to the SDK client; -1 keeps the SDK default.
	MaxRetries int
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	conf := Options{MaxRetries: -1}
	for _, fn := range optFns {
		fn(&conf)
	}

	var clientOpts []option.RequestOption
	if conf.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(conf.APIKey))
	}
	if conf.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(conf.BaseURL))
	}
	if conf.MaxRetries >= 0 {
		clientOpts = append(clientOpts, option.WithMaxRetries(conf.MaxRetries))
	}

	client := openai.NewClient(clientOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               DefaultModel,
		Temperature:         core.DefaultTemperature,
		MaxCompletionTokens: core.DefaultMaxTokens,
		MaxRetries:          -1,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		messages, err := buildMessages(req)
		if err != nil {
			errCh <- err
			return
		}
		params := m.buildParams(req, messages)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts the history into OpenAI chat messages. Tool results
// carried by a user message become tool messages placed before any user text
// so they directly follow the assistant tool calls they answer.
func buildMessages(req model.Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for i, msg := range req.Messages {
		switch msg.Role {
		case core.RoleUser:
			for _, tr := range msg.ToolResults() {
				messages = append(messages, openai.ToolMessage(tr.Content, tr.ToolUseID))
			}
			if text := msg.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		case core.RoleAssistant:
			toolCalls := extractToolCalls(msg)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text()))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text := msg.Text(); text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			return nil, fmt.Errorf("openai: message %d: unsupported role %q", i, msg.Role)
		}
	}
	return messages, nil
}

// extractToolCalls returns the OpenAI formatted tool calls of an assistant message.
func extractToolCalls(msg core.Message) []openai.ChatCompletionMessageToolCallParam {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, tu := range msg.ToolUses() {
		args := string(tu.Input)
		if args == "" {
			args = "{}"
		}
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tu.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tu.Name,
				Arguments: args,
			},
		})
	}
	return toolCalls
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	modelName := req.Options.Model
	if modelName == "" {
		modelName = m.opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               modelName,
		Temperature:         openai.Float(req.Options.TemperatureOr(m.opts.Temperature)),
		MaxCompletionTokens: openai.Int(req.Options.MaxTokensOr(m.opts.MaxCompletionTokens)),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  openai.FunctionParameters(tdef.InputSchema),
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming forwards text deltas and emits one final response when the
// finish reason arrives.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var textBuilder strings.Builder
	toolAgg := map[int64]*aggCall{}
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if !emitTextDelta(ctx, ch, &textBuilder, out) {
				errCh <- ctx.Err()
				return
			}
			aggregateToolCalls(ch, toolAgg)
			if ch.FinishReason != "" {
				out <- finalResponse(ck.ID, ch.FinishReason, textBuilder.String(), toolAgg)
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- wrapError(err)
	}
}

func emitTextDelta(
	ctx context.Context,
	ch openai.ChatCompletionChunkChoice,
	builder *strings.Builder,
	out chan<- model.Response,
) bool {
	if ch.Delta.Content == "" {
		return true
	}
	builder.WriteString(ch.Delta.Content)
	select {
	case out <- model.Response{Partial: true, Delta: ch.Delta.Content}:
		return true
	case <-ctx.Done():
		return false
	}
}

func aggregateToolCalls(ch openai.ChatCompletionChunkChoice, agg map[int64]*aggCall) {
	for _, tc := range ch.Delta.ToolCalls {
		ac, ok := agg[tc.Index]
		if !ok {
			ac = &aggCall{index: tc.Index}
			agg[tc.Index] = ac
		}
		if tc.ID != "" {
			ac.id = tc.ID
		}
		if tc.Function.Name != "" {
			ac.name = tc.Function.Name
		}
		ac.args += tc.Function.Arguments
	}
}

func finalResponse(id, finishReason, text string, toolAgg map[int64]*aggCall) model.Response {
	calls := make([]*aggCall, 0, len(toolAgg))
	for _, ac := range toolAgg {
		calls = append(calls, ac)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].index < calls[j].index })

	blocks := make([]core.Block, 0, len(calls)+1)
	if text != "" {
		blocks = append(blocks, core.TextBlock{Text: text})
	}
	for _, ac := range calls {
		blocks = append(blocks, toolUse(ac.id, ac.name, ac.args))
	}
	return model.Response{
		ID:         id,
		Message:    core.NewAssistantMessage(blocks...),
		StopReason: finishReason,
	}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- wrapError(err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- errors.New("openai: no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	blocks := make([]core.Block, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		blocks = append(blocks, core.TextBlock{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		blocks = append(blocks, toolUse(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	out <- model.Response{
		ID:         resp.ID,
		Message:    core.NewAssistantMessage(blocks...),
		StopReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
}

func toolUse(id, name, args string) core.ToolUseBlock {
	raw := json.RawMessage(args)
	if strings.TrimSpace(args) == "" {
		raw = json.RawMessage("{}")
	}
	return core.ToolUseBlock{ID: id, Name: name, Input: raw}
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.APIError{Provider: "openai", StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &model.APIError{Provider: "openai", Err: err}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
