package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 15*time.Second, cfg.DebounceWindow)
	assert.Equal(t, 600, cfg.MaxChunkLength)
	assert.Equal(t, "greeting", cfg.DefaultStage)
	assert.True(t, cfg.UpsellEnabled)
	assert.True(t, cfg.DownsellEnabled)
	assert.Equal(t, 24*time.Hour, cfg.MemoryCacheTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MESSAGE_DEBOUNCE_WINDOW", "5s")
	t.Setenv("UPSELL_ENABLED", "false")
	t.Setenv("LLM_TEMPERATURE", "0.4")
	t.Setenv("LLM_MAX_RETRIES", "5")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.DebounceWindow)
	assert.False(t, cfg.UpsellEnabled)
	assert.Equal(t, 0.4, cfg.LLMTemperature)
	assert.Equal(t, 5, cfg.LLMMaxRetries)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MESSAGE_DEBOUNCE_WINDOW", "soon")
	t.Setenv("LLM_MAX_RETRIES", "many")
	t.Setenv("UPSELL_ENABLED", "yep")

	cfg := Load()

	assert.Equal(t, 15*time.Second, cfg.DebounceWindow)
	assert.Equal(t, 3, cfg.LLMMaxRetries)
	assert.True(t, cfg.UpsellEnabled)
}

func TestLoadTrimsWhitespace(t *testing.T) {
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "  token-value  ")

	cfg := Load()

	assert.Equal(t, "token-value", cfg.WhatsAppAccessToken)
}
