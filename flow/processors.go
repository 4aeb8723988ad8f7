package flow

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// InstructionsProcessor copies the system prompt and model options of the
// active conversation into the request.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the system prompt and model options.
func (p *InstructionsProcessor) ProcessRequest(rc *core.RunContext, req *model.Request) error {
	req.System = rc.Options.System
	req.Options = rc.Options.Model
	return nil
}

// ContentsProcessor adds the sanitized history. The stored history keeps the
// raw assistant messages; only the copy sent to the model is sanitized.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets the message history.
func (p *ContentsProcessor) ProcessRequest(rc *core.RunContext, req *model.Request) error {
	req.Messages = core.SanitizeMessages(rc.Messages())
	return nil
}

// ToolsProcessor advertises the active tool set.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets the tool definitions.
func (p *ToolsProcessor) ProcessRequest(rc *core.RunContext, req *model.Request) error {
	if len(rc.Options.Tools) == 0 {
		req.Tools = nil
		return nil
	}
	req.Tools = tool.Definitions(rc.Options.Tools)
	return nil
}

// DefaultRequestProcessors returns the pipeline every driver starts with.
func DefaultRequestProcessors() []RequestProcessor {
	return []RequestProcessor{
		NewInstructionsProcessor(),
		NewContentsProcessor(),
		NewToolsProcessor(),
	}
}
