package webtoonquiz

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8180", cfg.Server.Port)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, DefaultGeminiModel, cfg.AI.Model)
	assert.Equal(t, 120*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, DefaultStorageKey, cfg.Storage.Key)
	assert.Equal(t, "local", cfg.Export.Type)
	assert.Equal(t, 3, cfg.Server.GenerateBurst)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("STORAGE_TYPE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("AI_TIMEOUT", "45s")
	t.Setenv("EXPORT_TYPE", "minio")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.AI.APIKey)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "cache:6380", cfg.Storage.RedisAddr)
	assert.Equal(t, 45*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "minio", cfg.Export.Type)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: "9090"
ai:
  provider: openai
  model: gpt-4o-mini
  locale: English
storage:
  type: memory
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, "English", cfg.AI.Locale)
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestLoadConfigShortSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "short")
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
