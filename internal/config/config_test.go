package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, 1536, cfg.Qdrant.VectorDimension)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 5000, cfg.Chat.MaxQueryLength)
	assert.Equal(t, 5, cfg.Chat.SearchLimit)
	assert.InDelta(t, 0.6, cfg.Chat.MinScore, 1e-9)
	assert.InDelta(t, 0.7, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, 1000, cfg.Chat.MaxOutputTokens)
	assert.Equal(t, 200, cfg.Chat.ExcerptLength)
	assert.Equal(t, 60*time.Second, cfg.Chat.PipelineTimeout)
	assert.Empty(t, cfg.Redis.Addr, "cache is disabled by default")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("CHAT_MIN_SCORE", "0.75")
	t.Setenv("CHAT_PIPELINE_TIMEOUT", "5s")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.InDelta(t, 0.75, cfg.Chat.MinScore, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Chat.PipelineTimeout)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "tutor.yaml")
	content := []byte("chat:\n  search_limit: 8\nqdrant:\n  collection: custom\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Chat.SearchLimit)
	assert.Equal(t, "custom", cfg.Qdrant.Collection)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestValidate_Production(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "QDRANT_API_KEY")

	t.Setenv("AUTH_JWT_SECRET", "prod-secret")
	t.Setenv("OPENAI_API_KEY", "sk-prod")
	t.Setenv("QDRANT_API_KEY", "qd-prod")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidate_Ranges(t *testing.T) {
	cfg := &Config{
		Chat: ChatConfig{
			MaxQueryLength:  0,
			SearchLimit:     5,
			MinScore:        1.5,
			Temperature:     0.7,
			MaxOutputTokens: 1000,
			MaxSources:      0,
			ExcerptLength:   -1,
			PipelineTimeout: time.Second,
		},
		Qdrant: QdrantConfig{VectorDimension: 1536},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_query_length")
	assert.Contains(t, err.Error(), "min_score")
	assert.Contains(t, err.Error(), "chat.max_sources must be > 0")
	assert.Contains(t, err.Error(), "chat.excerpt_length must be > 0")
	assert.NotContains(t, err.Error(), "max_output_tokens")
}
