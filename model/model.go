package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// InputSchema is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request captures the normalized model input produced by the driver.
type Request struct {
	System   string            `json:"system,omitempty"`
	Messages []core.Message    `json:"messages"`
	Tools    []ToolDefinition  `json:"tools,omitempty"`
	Options  core.ModelOptions `json:"options"`
	Stream   bool              `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
// Partial responses carry only a text Delta; the final response carries the
// complete assistant Message including every tool use.
type Response struct {
	ID         string       `json:"id,omitempty"`
	Partial    bool         `json:"partial"`
	Delta      string       `json:"delta,omitempty"`
	Message    core.Message `json:"message"`
	StopReason string       `json:"stop_reason,omitempty"` // "end_turn", "tool_use", "max_tokens", ...
	Usage      *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the backend adapter contract: produce the next assistant turn for
// a system prompt, a message history and a set of tool schemas.
//
// Implementations close both channels when done. At most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoFinalResponse is returned by Collect when the stream ends without a final response.
var ErrNoFinalResponse = errors.New("model stream ended without a final response")

// APIError wraps a provider failure with its HTTP status so retry policies
// can tell transient failures from permanent ones.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the status denotes a transient failure.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 408, e.StatusCode == 409, e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Collect drains the channels returned by Generate. onDelta, if non-nil, is
// invoked for every partial text fragment in order. The final response is
// returned once both channels are closed.
func Collect(ctx context.Context, respCh <-chan Response, errCh <-chan error, onDelta func(string) error) (Response, error) {
	var (
		final    Response
		hasFinal bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if onDelta != nil && r.Delta != "" {
					if err := onDelta(r.Delta); err != nil {
						return Response{}, err
					}
				}
				continue
			}
			final = r
			hasFinal = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}
	if !hasFinal {
		return Response{}, ErrNoFinalResponse
	}
	final.Message.Role = core.RoleAssistant
	return final, nil
}
