package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
)

func TestResolveToolAction(t *testing.T) {
	next := testutil.NewConversationBuilder().User("again").Build()

	tests := []struct {
		name   string
		action core.ToolAction
		kind   OutcomeKind
	}{
		{"result", core.Result("ok"), OutcomeContinue},
		{"error result", core.ErrorResult("bad"), OutcomeContinue},
		{"end", core.EndConversation{}, OutcomeEnd},
		{"replace", core.NewConversation{Options: next}, OutcomeReplace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ResolveToolAction(tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, out.Kind)
		})
	}

	out, err := ResolveToolAction(core.ErrorResult("bad"))
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.IsError)

	out, err = ResolveToolAction(core.NewConversation{Options: next})
	require.NoError(t, err)
	require.NotNil(t, out.Options)
	assert.Equal(t, "again", out.Options.Messages[0].Text())
}

func TestResolveNoToolUse(t *testing.T) {
	out, err := ResolveNoToolUse(core.TextResponse{Content: "keep going"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, out.Kind)
	require.NotNil(t, out.Message)
	assert.Equal(t, core.RoleUser, out.Message.Role)
	assert.Equal(t, "keep going", out.Message.Text())

	out, err = ResolveNoToolUse(core.EndConversation{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnd, out.Kind)
}

func TestResolve_Nil(t *testing.T) {
	_, err := ResolveToolAction(nil)
	require.ErrorIs(t, err, core.ErrUnknownAction)

	_, err = ResolveNoToolUse(nil)
	require.ErrorIs(t, err, core.ErrUnknownAction)
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "continue", OutcomeContinue.String())
	assert.Equal(t, "end", OutcomeEnd.String())
	assert.Equal(t, "replace", OutcomeReplace.String())
	assert.Equal(t, "OutcomeKind(7)", OutcomeKind(7).String())
}
