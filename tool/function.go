package tool

import (
	"encoding/json"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// FunctionTool exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a JSON schema describing the accepted input object
//   - Validates model supplied input against that schema before execution
//   - Invokes the wrapped function with a *core.ToolContext and the decoded arguments
//
// Numbers in args are json.Number values; use NumberArg / StringArg to read them.
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(tc *core.ToolContext, args map[string]any) (core.ToolAction, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	add := tool.NewFunctionTool(
//	  "add",
//	  "Add two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (core.ToolAction, error) {
//	    a, _ := tool.NumberArg(args, "a")
//	    b, _ := tool.NumberArg(args, "b")
//	    return core.Result(strconv.FormatFloat(a+b, 'f', -1, 64)), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	schema map[string]any,
	fn func(tc *core.ToolContext, args map[string]any) (core.ToolAction, error),
) *FunctionTool {
	if schema == nil {
		schema = util.ObjectSchema(nil)
	}
	return &FunctionTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the schema from a struct using reflection.
// Prefer New for tools that want the input decoded into that struct.
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(tc *core.ToolContext, args map[string]any) (core.ToolAction, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.ReflectSchema(structType), fn)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// InputSchema returns the JSON schema describing the expected input.
func (t *FunctionTool) InputSchema() map[string]any { return t.schema }

// Parse validates raw against the schema and returns the argument map.
func (t *FunctionTool) Parse(raw json.RawMessage) (any, error) {
	v, err := util.ValidateInput(raw, t.schema)
	if err != nil {
		return nil, err
	}
	args, ok := v.(map[string]any)
	if !ok {
		errs := &core.ValidationErrors{}
		errs.Add("", "Expected object")
		return nil, errs
	}
	return args, nil
}

// Execute invokes the wrapped function with the parsed argument map.
func (t *FunctionTool) Execute(tc *core.ToolContext, input any) (core.ToolAction, error) {
	args, _ := input.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	tc.LogDebug("tool.call.start")

	action, err := t.fn(tc, args)
	if err != nil {
		tc.LogError("tool.call.error", "error", err.Error())
		return nil, err
	}

	tc.LogDebug("tool.call.success", "duration_ms", time.Since(start).Milliseconds())
	return action, nil
}

// NumberArg reads a numeric argument decoded by Parse.
func NumberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// StringArg reads a string argument decoded by Parse.
func StringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok
}
