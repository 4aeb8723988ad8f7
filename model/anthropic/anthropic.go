// Package anthropic adapts the Anthropic Messages API to model.Model.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// DefaultModel is used when neither Options nor the request name a model.
const DefaultModel = "claude-3-5-sonnet-20241022"

// Options configures the Anthropic model adapter. Request-level
// core.ModelOptions take precedence over these defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	// MaxRetries is passed to the SDK client; -1 keeps the SDK default.
	MaxRetries int
}

func defaultOptions() Options {
	return Options{
		Model:       DefaultModel,
		Temperature: core.DefaultTemperature,
		MaxTokens:   core.DefaultMaxTokens,
		MaxRetries:  -1,
	}
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries >= 0 {
		clientOpts = append(clientOpts, option.WithMaxRetries(opts.MaxRetries))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate implements model.Model. With req.Stream set, text deltas are
// forwarded as partial responses while the final message is accumulated.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params, err := m.buildParams(req)
		if err != nil {
			errCh <- err
			return
		}

		var msg *anthropic.Message
		if req.Stream {
			msg, err = m.stream(ctx, params, out)
		} else {
			msg, err = m.client.Messages.New(ctx, params)
		}
		if err != nil {
			errCh <- wrapError(err)
			return
		}

		select {
		case out <- convertResponse(msg):
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	return out, errCh
}

func (m *Model) stream(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response) (*anthropic.Message, error) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	acc := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic: accumulate stream: %w", err)
		}

		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		select {
		case out <- model.Response{Partial: true, Delta: delta.Text}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (m *Model) buildParams(req model.Request) (anthropic.MessageNewParams, error) {
	modelName := req.Options.Model
	if modelName == "" {
		modelName = m.opts.Model
	}

	messages, err := buildMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelName),
		Messages:    messages,
		MaxTokens:   req.Options.MaxTokensOr(m.opts.MaxTokens),
		Temperature: anthropic.Float(req.Options.TemperatureOr(m.opts.Temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params, nil
}

// buildMessages converts the conversation history block by block. Roles map
// one to one; tool results stay inside user messages as the API expects.
func buildMessages(msgs []core.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for i, msg := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, b := range msg.Content {
			switch block := b.(type) {
			case core.TextBlock:
				if block.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(block.Text))
				}
			case core.ToolUseBlock:
				var input any = map[string]any{}
				if len(block.Input) > 0 {
					if err := json.Unmarshal(block.Input, &input); err != nil {
						return nil, fmt.Errorf("anthropic: message %d: tool use %s: %w", i, block.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, input, block.Name))
			case core.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolUseID, block.Content, block.IsError))
			}
		}

		switch msg.Role {
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: message %d: unsupported role %q", i, msg.Role)
		}
	}
	return out, nil
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		extra := map[string]any{}
		for k, v := range tool.InputSchema {
			switch k {
			case "type":
			case "properties":
				inputSchema.Properties = v
			case "required":
				inputSchema.Required = toStrings(v)
			default:
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			inputSchema.ExtraFields = extra
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return out
}

func toStrings(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func convertResponse(msg *anthropic.Message) model.Response {
	blocks := make([]core.Block, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, core.TextBlock{Text: block.Text})
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, core.ToolUseBlock{ID: block.ID, Name: block.Name, Input: input})
		}
	}

	return model.Response{
		ID:         msg.ID,
		Message:    core.NewAssistantMessage(blocks...),
		StopReason: string(msg.StopReason),
		Usage: &model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.APIError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &model.APIError{Provider: "anthropic", Err: err}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
