package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
)

// ScratchpadInput is the input of the scratchpad tool.
type ScratchpadInput struct {
	Operation string `json:"operation" jsonschema:"enum=get,enum=set,enum=list" jsonschema_description:"get reads a note, set stores one, list shows all keys"`
	Key       string `json:"key,omitempty" jsonschema_description:"Note key for get and set"`
	Value     string `json:"value,omitempty" jsonschema_description:"Note text for set"`
}

// NewScratchpadTool returns a tool that lets the model keep notes in the
// conversation state across turns. Notes survive a NewConversation
// replacement of the same run.
func NewScratchpadTool() *Typed[ScratchpadInput] {
	return New(
		"scratchpad",
		"Store and recall short notes during this conversation. Operations: get, set, list.",
		func(tc *core.ToolContext, in ScratchpadInput) (core.ToolAction, error) {
			switch in.Operation {
			case "set":
				if in.Key == "" {
					return core.ErrorResult("key is required for set"), nil
				}
				tc.SetState(scratchKey(in.Key), in.Value)
				return core.Result(fmt.Sprintf("stored %q", in.Key)), nil
			case "get":
				if in.Key == "" {
					return core.ErrorResult("key is required for get"), nil
				}
				v, ok := tc.GetState(scratchKey(in.Key))
				if !ok {
					return core.ErrorResult(fmt.Sprintf("no note named %q", in.Key)), nil
				}
				return core.Result(fmt.Sprint(v)), nil
			case "list":
				var keys []string
				for _, k := range tc.StateKeys() {
					if name, ok := strings.CutPrefix(k, scratchPrefix); ok {
						keys = append(keys, name)
					}
				}
				data, err := json.Marshal(keys)
				if err != nil {
					return nil, err
				}
				return core.Result(string(data)), nil
			default:
				return core.ErrorResult(fmt.Sprintf("unsupported operation %q", in.Operation)), nil
			}
		},
	)
}

const scratchPrefix = "scratchpad:"

func scratchKey(k string) string { return scratchPrefix + k }
