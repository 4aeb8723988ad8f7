// Package tool provides constructors for core.Tool implementations: plain
// functions with an explicit JSON schema, typed tools whose schema and
// validation are derived from one Go struct, and control tools that end or
// replace the running conversation.
package tool

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Tool is re-exported for convenience so callers rarely need to import core.
type Tool = core.Tool

// Definitions returns the declarations advertised to the model, in order.
func Definitions(tools []core.Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()}
	}
	return defs
}

// Names returns the tool names in order.
func Names(tools []core.Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}
