package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain <b>text</b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain <b>text</b>", out)

	out, err = RenderTemplate(`You are {{.role}} for {{upper .org}}. Tools: {{join ", " .tools}}.`, map[string]any{
		"role":  "an auditor",
		"org":   "dao",
		"tools": []string{"read", "vote"},
	})
	require.NoError(t, err)
	assert.Equal(t, "You are an auditor for DAO. Tools: read, vote.", out)

	out, err = RenderTemplate(`Hi {{default "there" .name}}{{.missing}}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
