package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 200, cfg.LLM.MaxTokens)
	assert.Equal(t, 4*time.Second, cfg.Bot.SyncTimeout)
	assert.Equal(t, 25*time.Second, cfg.Bot.AsyncTimeout)
	assert.Equal(t, 3, cfg.Bot.MaxLines)
	assert.NotEmpty(t, cfg.Bot.Messages.Repeat)
	assert.NotEmpty(t, cfg.Bot.Messages.Fallback)
	assert.NotEmpty(t, cfg.Bot.Messages.MissingKey)
	assert.NotEmpty(t, cfg.Bot.Messages.Empty)

	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	yaml := `
server:
  port: 9090
bot:
  sync_timeout: 3500ms
  max_lines: 5
  messages:
    fallback: "custom fallback"
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3500*time.Millisecond, cfg.Bot.SyncTimeout)
	assert.Equal(t, 5, cfg.Bot.MaxLines)
	assert.Equal(t, "custom fallback", cfg.Bot.Messages.Fallback)

	// Unset messages keep their defaults.
	assert.Equal(t, DefaultConfig().Bot.Messages.Repeat, cfg.Bot.Messages.Repeat)
	// Unset sections keep their defaults.
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_DEARBOT_KEY", "sk-test-123")
	t.Setenv("TEST_DEARBOT_MODEL", "")

	yaml := `
llm:
  api_key: ${TEST_DEARBOT_KEY}
  model: ${TEST_DEARBOT_MODEL:-gpt-4o-mini}
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "sync timeout at platform ceiling",
			yaml: "bot:\n  sync_timeout: 5s\n",
		},
		{
			name: "async shorter than sync",
			yaml: "bot:\n  sync_timeout: 4s\n  async_timeout: 2s\n",
		},
		{
			name: "invalid port",
			yaml: "server:\n  port: 70000\n",
		},
		{
			name: "invalid log level",
			yaml: "logging:\n  level: loud\n",
		},
		{
			name: "zero max tokens",
			yaml: "llm:\n  max_tokens: 0\n",
		},
		{
			name: "max lines out of range",
			yaml: "bot:\n  max_lines: 11\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader("server: [not a map"))
	assert.Error(t, err)
}

func TestEmptyMessageOverridesFallBackToDefaults(t *testing.T) {
	yaml := `
bot:
  messages:
    repeat: "   "
    empty: ""
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	defaults := DefaultConfig().Bot.Messages
	assert.Equal(t, defaults.Repeat, cfg.Bot.Messages.Repeat)
	assert.Equal(t, defaults.Empty, cfg.Bot.Messages.Empty)
}
