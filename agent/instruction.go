package agent

import (
	"context"

	"github.com/hupe1980/agentloop/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the template data, environment, etc.
type Provider interface {
	Instruction(ctx context.Context, data map[string]any) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, data map[string]any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, data map[string]any) (string, error) {
	return f(ctx, data)
}

// Instruction represents either a static template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
// Placeholders such as {{.agent_name}} are filled from the template data.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, data map[string]any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the system prompt, invoking the provider or rendering the
// template as needed.
func (i Instruction) Resolve(ctx context.Context, data map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, data)
	}
	return util.RenderTemplate(i.text, data)
}
