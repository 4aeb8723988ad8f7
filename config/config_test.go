package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, core.DefaultMaxTurns, cfg.MaxTurns)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
provider: openai
model: gpt-4o-mini
temperature: 0.2
max_tokens: 1024
max_turns: 12
system: Be brief.
retry:
  max_tries: 5
  initial_interval: 100ms
  max_interval: 2s
log:
  level: debug
  format: json
engine:
  max_concurrent: 3
  stream: true
`))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-9)
	assert.Equal(t, int64(1024), cfg.MaxTokens)
	assert.Equal(t, "Be brief.", cfg.System)
	assert.Equal(t, uint(5), cfg.Retry.MaxTries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxInterval)
	// untouched keys keep their defaults
	assert.Equal(t, model.DefaultRetryOptions.MaxElapsedTime, cfg.Retry.MaxElapsedTime)

	ec := cfg.EngineConfig()
	assert.Equal(t, 3, ec.MaxConcurrentConversations)
	assert.True(t, ec.Stream)
	assert.Equal(t, 12, ec.MaxTurns)

	mo := cfg.ModelOptions()
	assert.Equal(t, "gpt-4o-mini", mo.Model)
	assert.InDelta(t, 0.2, mo.TemperatureOr(0), 1e-9)
	assert.Equal(t, int64(1024), mo.MaxTokens)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("provider: anthropic\nmax_turn: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_turn")
}

func TestValidateReportsEveryFailure(t *testing.T) {
	_, err := Parse([]byte(`
provider: gemini
temperature: 3
base_url: not a url
retry:
  initial_interval: 2s
  max_interval: 1s
log:
  level: loud
`))
	require.Error(t, err)

	var verrs *core.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	byPath := map[string]string{}
	for _, e := range verrs.Errors {
		byPath[e.Path] = e.Message
	}
	assert.Equal(t, "must be one of [anthropic openai]", byPath["provider"])
	assert.Equal(t, "must be <= 2", byPath["temperature"])
	assert.Equal(t, "must be a valid URL", byPath["base_url"])
	assert.Equal(t, "must not be below initial_interval", byPath["retry.max_interval"])
	assert.Equal(t, "must be one of [debug info warn error]", byPath["log.level"])
	assert.Len(t, verrs.Errors, 5)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_turns: 7\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxTurns)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestRetryOptions(t *testing.T) {
	cfg := Default()
	ro := cfg.RetryOptions()
	require.NotNil(t, ro)
	assert.Equal(t, model.DefaultRetryOptions.MaxTries, ro.MaxTries)

	cfg.Retry.Disabled = true
	assert.Nil(t, cfg.RetryOptions())

	cfg = Default()
	cfg.Retry.MaxTries = 1
	assert.Nil(t, cfg.RetryOptions())
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	l, err := cfg.Logger(&buf)
	require.NoError(t, err)

	l.Info("config.test.hidden")
	l.Warn("config.test.shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "config.test.hidden")
	assert.Contains(t, out, "config.test.shown")
}

func TestNewModel(t *testing.T) {
	cfg := Default()
	m, err := cfg.NewModel("test-key")
	require.NoError(t, err)
	assert.NotNil(t, m)

	cfg.Provider = ProviderOpenAI
	m, err = cfg.NewModel("test-key")
	require.NoError(t, err)
	assert.NotNil(t, m)

	cfg.Provider = "gemini"
	_, err = cfg.NewModel("test-key")
	require.Error(t, err)
}
