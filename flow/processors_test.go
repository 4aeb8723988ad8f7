package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

func TestProcessorNames(t *testing.T) {
	var names []string
	for _, p := range DefaultRequestProcessors() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"instructions", "contents", "tools"}, names)
}

func TestInstructionsProcessor(t *testing.T) {
	opts := testutil.NewConversationBuilder().System("be terse").Model("m1").User("hi").Build()
	rc := core.NewRunContext(context.Background(), "", opts, 0, nil, logging.NoOpLogger{})

	var req model.Request
	require.NoError(t, NewInstructionsProcessor().ProcessRequest(rc, &req))
	assert.Equal(t, "be terse", req.System)
	assert.Equal(t, "m1", req.Options.Model)
}

func TestContentsProcessor_SanitizesCopy(t *testing.T) {
	opts := testutil.NewConversationBuilder().
		User("hi").
		Message(testutil.NewMessageBuilder().Text("  padded  ").Text("\n").ToolUse("t1", "add", `{}`).Build()).
		User("more").
		Build()
	rc := core.NewRunContext(context.Background(), "", opts, 0, nil, logging.NoOpLogger{})

	var req model.Request
	require.NoError(t, NewContentsProcessor().ProcessRequest(rc, &req))

	require.Len(t, req.Messages, 3)
	assert.Equal(t, []core.Block{
		core.TextBlock{Text: "padded"},
		core.ToolUseBlock{ID: "t1", Name: "add", Input: []byte(`{}`)},
	}, req.Messages[1].Content)

	assert.Len(t, rc.Messages()[1].Content, 3)
}

func TestToolsProcessor(t *testing.T) {
	rc := core.NewRunContext(context.Background(), "", testutil.NewConversationBuilder().User("hi").Build(), 0, nil, nil)

	req := model.Request{Tools: []model.ToolDefinition{{Name: "stale"}}}
	require.NoError(t, NewToolsProcessor().ProcessRequest(rc, &req))
	assert.Nil(t, req.Tools)

	rc.Options.Tools = []core.Tool{newAddTool(nil)}
	require.NoError(t, NewToolsProcessor().ProcessRequest(rc, &req))
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "add", req.Tools[0].Name)
	assert.Equal(t, "Add two numbers", req.Tools[0].Description)
}

type failingProcessor struct{}

func (failingProcessor) Name() string { return "failing" }

func (failingProcessor) ProcessRequest(*core.RunContext, *model.Request) error {
	return errors.New("no context")
}

type noteProcessor struct{}

func (noteProcessor) Name() string { return "note" }

func (noteProcessor) ProcessRequest(rc *core.RunContext, req *model.Request) error {
	req.System += "\nAlways answer in English."
	return nil
}

func TestDriver_CustomProcessors(t *testing.T) {
	t.Run("appended after defaults", func(t *testing.T) {
		m := model.NewScriptedModel("scripted").AddToolUse("end_conversation", map[string]any{})
		d := NewDriver(m, func(o *DriverOptions) {
			o.RequestProcessors = []RequestProcessor{noteProcessor{}}
		})
		opts := testutil.NewConversationBuilder().System("Be brief.").User("hi").Tools(newStopTool()).Build()

		require.NoError(t, d.Run(context.Background(), opts))
		assert.Equal(t, "Be brief.\nAlways answer in English.", m.Requests()[0].System)
	})

	t.Run("failure aborts", func(t *testing.T) {
		m := model.NewScriptedModel("scripted")
		d := NewDriver(m, func(o *DriverOptions) {
			o.RequestProcessors = []RequestProcessor{failingProcessor{}}
		})

		err := d.Run(context.Background(), testutil.NewConversationBuilder().User("hi").RespondWith("x").Build())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "request processor failing failed")
		assert.Zero(t, m.Calls())
	})
}
