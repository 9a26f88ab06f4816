package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"WAIVERN_LOG_LEVEL", "WAIVERN_STORE_TYPE", "WAIVERN_STORE_PATH",
		"WAIVERN_LLM_RPS", "WAIVERN_LLM_BATCH_SIZE", "LLM_PROVIDER",
		"WAIVERN_LLM_MODEL", "WAIVERN_REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "filesystem", cfg.StoreType)
	assert.Equal(t, ".wct", cfg.StorePath)
	assert.Equal(t, 2.0, cfg.RequestsPerSecond)
	assert.Zero(t, cfg.BatchSize)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WAIVERN_LOG_LEVEL", "debug")
	t.Setenv("WAIVERN_STORE_TYPE", "sqlite")
	t.Setenv("WAIVERN_STORE_PATH", "/tmp/wct.db")
	t.Setenv("WAIVERN_LLM_RPS", "0.5")
	t.Setenv("WAIVERN_LLM_BATCH_SIZE", "25")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("WAIVERN_REDIS_ADDR", "localhost:6379")

	cfg := Load()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.StoreType)
	assert.Equal(t, "/tmp/wct.db", cfg.StorePath)
	assert.Equal(t, 0.5, cfg.RequestsPerSecond)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("WAIVERN_LLM_RPS", "not-a-number")
	t.Setenv("WAIVERN_LLM_BATCH_SIZE", "-3")

	cfg := Load()
	assert.Equal(t, 2.0, cfg.RequestsPerSecond)
	assert.Zero(t, cfg.BatchSize)
}
